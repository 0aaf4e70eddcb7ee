package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/enph353/labeller/internal/db"
	"github.com/enph353/labeller/internal/labels"
)

func setupTestDB(t *testing.T) (*db.DB, *SQLiteStore) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	database, err := db.Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	return database, NewSQLiteStore(database.Conn())
}

func sampleDocument() *labels.Document {
	doc := labels.NewDocument()
	doc.Plates[1] = "ABC123"
	doc.Plates[3] = "ZZ9"
	doc.Frames[0] = json.RawMessage(`[1,3]`)
	doc.Frames[14] = json.RawMessage(`null`)
	return doc
}

func assertSameDocument(t *testing.T, got, want *labels.Document) {
	t.Helper()
	g, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("marshal got: %v", err)
	}
	w, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal want: %v", err)
	}
	if string(g) != string(w) {
		t.Errorf("document = %s, want %s", g, w)
	}
}

func TestFileStore_LoadMissing(t *testing.T) {
	s := NewFileStore("")
	video := filepath.Join(t.TempDir(), "run1.avi")

	doc, err := s.Load(context.Background(), video)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc != nil {
		t.Errorf("Load() = %v, want nil", doc)
	}
}

func TestFileStore_SaveLoad(t *testing.T) {
	s := NewFileStore(".labels.json")
	video := filepath.Join(t.TempDir(), "run1.avi")

	if err := s.Save(context.Background(), video, sampleDocument()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, err := os.Stat(video + ".labels.json"); err != nil {
		t.Fatalf("label file not written: %v", err)
	}

	doc, err := s.Load(context.Background(), video)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	assertSameDocument(t, doc, sampleDocument())
}

func TestFileStore_SaveOverwrites(t *testing.T) {
	s := NewFileStore("")
	dir := t.TempDir()
	video := filepath.Join(dir, "run1.avi")
	ctx := context.Background()

	if err := s.Save(ctx, video, sampleDocument()); err != nil {
		t.Fatalf("first Save() error = %v", err)
	}
	if err := s.Save(ctx, video, labels.NewDocument()); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	doc, err := s.Load(ctx, video)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(doc.Frames) != 0 || len(doc.Plates) != 0 {
		t.Errorf("Load() = %+v, want empty document", doc)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want only the label file", len(entries))
	}
}

func TestFileStore_LoadMalformed(t *testing.T) {
	s := NewFileStore("")
	video := filepath.Join(t.TempDir(), "run1.avi")
	if err := os.WriteFile(s.Path(video), []byte(`{"frames": [1, 2`), 0644); err != nil {
		t.Fatalf("write error = %v", err)
	}

	_, err := s.Load(context.Background(), video)
	if !errors.Is(err, labels.ErrMalformedDocument) {
		t.Errorf("Load() error = %v, want ErrMalformedDocument", err)
	}
}

func TestSQLiteStore_LoadMissing(t *testing.T) {
	database, s := setupTestDB(t)
	defer database.Close()

	doc, err := s.Load(context.Background(), "/videos/none.avi")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc != nil {
		t.Errorf("Load() = %v, want nil", doc)
	}
}

func TestSQLiteStore_SaveLoad(t *testing.T) {
	database, s := setupTestDB(t)
	defer database.Close()
	ctx := context.Background()

	if err := s.Save(ctx, "/videos/run1.avi", sampleDocument()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	doc, err := s.Load(ctx, "/videos/run1.avi")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	assertSameDocument(t, doc, sampleDocument())

	replacement := labels.NewDocument()
	replacement.Frames[2] = json.RawMessage(`[2]`)
	if err := s.Save(ctx, "/videos/run1.avi", replacement); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}
	doc, err = s.Load(ctx, "/videos/run1.avi")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	assertSameDocument(t, doc, replacement)

	var videos int
	if err := database.Conn().QueryRow("SELECT COUNT(*) FROM videos").Scan(&videos); err != nil {
		t.Fatalf("count videos error = %v", err)
	}
	if videos != 1 {
		t.Errorf("videos = %d, want 1", videos)
	}
}

func TestSQLiteStore_Scans(t *testing.T) {
	database, s := setupTestDB(t)
	defer database.Close()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	scan := &Scan{
		ID:        "scan-1",
		VideoPath: "/videos/run1.avi",
		Threshold: 0.95,
		Status:    ScanRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateScan(ctx, scan); err != nil {
		t.Fatalf("CreateScan() error = %v", err)
	}

	scan.Status = ScanCompleted
	scan.Frames = 5
	scan.Total = 5
	scan.Keyframes = []int{0, 2, 4}
	if err := s.FinishScan(ctx, scan); err != nil {
		t.Fatalf("FinishScan() error = %v", err)
	}

	got, err := s.GetScan(ctx, "scan-1")
	if err != nil {
		t.Fatalf("GetScan() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetScan() = nil")
	}
	if got.Status != ScanCompleted {
		t.Errorf("Status = %s, want %s", got.Status, ScanCompleted)
	}
	if len(got.Keyframes) != 3 || got.Keyframes[2] != 4 {
		t.Errorf("Keyframes = %v, want [0 2 4]", got.Keyframes)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, now)
	}

	missing, err := s.GetScan(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("GetScan(missing) = %v, %v, want nil, nil", missing, err)
	}

	list, err := s.ListScans(ctx, 10)
	if err != nil {
		t.Fatalf("ListScans() error = %v", err)
	}
	if len(list) != 1 {
		t.Errorf("ListScans() len = %d, want 1", len(list))
	}
}

func TestSQLiteStore_Config(t *testing.T) {
	database, s := setupTestDB(t)
	defer database.Close()
	ctx := context.Background()

	value, err := s.GetConfig(ctx, "auth_token")
	if err != nil {
		t.Fatalf("GetConfig() error = %v", err)
	}
	if value != "" {
		t.Errorf("GetConfig(unset) = %q, want empty", value)
	}

	if err := s.SetConfig(ctx, "auth_token", "first"); err != nil {
		t.Fatalf("SetConfig() error = %v", err)
	}
	if err := s.SetConfig(ctx, "auth_token", "second"); err != nil {
		t.Fatalf("SetConfig() overwrite error = %v", err)
	}

	value, err = s.GetConfig(ctx, "auth_token")
	if err != nil {
		t.Fatalf("GetConfig() error = %v", err)
	}
	if value != "second" {
		t.Errorf("GetConfig() = %q, want second", value)
	}
}

func TestSQLiteStore_FailInterruptedScans(t *testing.T) {
	database, s := setupTestDB(t)
	defer database.Close()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	for _, sc := range []*Scan{
		{ID: "running", VideoPath: "/videos/run1.avi", Threshold: 0.95, Status: ScanRunning, CreatedAt: now, UpdatedAt: now},
		{ID: "done", VideoPath: "/videos/run2.avi", Threshold: 0.95, Status: ScanCompleted, CreatedAt: now, UpdatedAt: now},
	} {
		if err := s.CreateScan(ctx, sc); err != nil {
			t.Fatalf("CreateScan(%s) error = %v", sc.ID, err)
		}
	}

	n, err := s.FailInterruptedScans(ctx)
	if err != nil {
		t.Fatalf("FailInterruptedScans() error = %v", err)
	}
	if n != 1 {
		t.Errorf("FailInterruptedScans() = %d, want 1", n)
	}

	got, err := s.GetScan(ctx, "running")
	if err != nil || got == nil {
		t.Fatalf("GetScan() = %v, %v", got, err)
	}
	if got.Status != ScanFailed || got.Error != "interrupted by restart" {
		t.Errorf("scan = %s %q, want failed with restart error", got.Status, got.Error)
	}
	if done, _ := s.GetScan(ctx, "done"); done.Status != ScanCompleted {
		t.Errorf("completed scan status = %s, want %s", done.Status, ScanCompleted)
	}
}
