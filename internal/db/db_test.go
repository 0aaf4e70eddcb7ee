package db

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func openTestDB(t *testing.T, path string) *DB {
	t.Helper()
	d, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return d
}

func TestOpen_Schema(t *testing.T) {
	d := openTestDB(t, filepath.Join(t.TempDir(), "nested", "labeller.db"))
	defer d.Close()

	for _, table := range []string{"videos", "frame_labels", "plates", "scans", "config", "_migrations"} {
		var n int
		if err := d.Conn().QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&n); err != nil || n != 1 {
			t.Errorf("table %s: count %d, err %v", table, n, err)
		}
	}
}

func TestOpen_ConnectionPragmas(t *testing.T) {
	d := openTestDB(t, filepath.Join(t.TempDir(), "labeller.db"))
	defer d.Close()

	cases := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"foreign_keys", "1"},
		{"busy_timeout", "5000"},
	}
	for _, tc := range cases {
		var got string
		if err := d.Conn().QueryRow("PRAGMA " + tc.pragma).Scan(&got); err != nil {
			t.Fatalf("PRAGMA %s error = %v", tc.pragma, err)
		}
		if got != tc.want {
			t.Errorf("PRAGMA %s = %s, want %s", tc.pragma, got, tc.want)
		}
	}
}

func TestOpen_ReopenAppliesNothingNew(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labeller.db")
	openTestDB(t, path).Close()

	d := openTestDB(t, path)
	defer d.Close()

	applied, err := d.Applied(context.Background())
	if err != nil {
		t.Fatalf("Applied() error = %v", err)
	}
	all, err := migrations()
	if err != nil {
		t.Fatalf("migrations() error = %v", err)
	}
	if len(applied) != len(all) {
		t.Fatalf("Applied() = %v, want %d entries", applied, len(all))
	}
	for i, m := range all {
		if applied[i] != m.name {
			t.Errorf("applied[%d] = %s, want %s", i, applied[i], m.name)
		}
	}
}

func TestMigrations_OrderedByName(t *testing.T) {
	all, err := migrations()
	if err != nil {
		t.Fatalf("migrations() error = %v", err)
	}
	if len(all) < 3 || all[0].name != "001_init.sql" {
		t.Fatalf("migrations() = %d files starting %q", len(all), all[0].name)
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].name >= all[i].name {
			t.Errorf("migration %s sorts after %s", all[i-1].name, all[i].name)
		}
		if strings.TrimSpace(all[i].sql) == "" {
			t.Errorf("migration %s is empty", all[i].name)
		}
	}
}

func TestApply_FailedMigrationRollsBack(t *testing.T) {
	d := openTestDB(t, filepath.Join(t.TempDir(), "labeller.db"))
	defer d.Close()
	ctx := context.Background()

	bad := migration{name: "999_bad.sql", sql: "CREATE TABLE half (id INTEGER); SELECT * FROM missing_table;"}
	if err := d.apply(ctx, bad); err == nil {
		t.Fatal("apply() of a broken migration should fail")
	}

	var n int
	d.Conn().QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE name = 'half'").Scan(&n)
	if n != 0 {
		t.Error("table from the failed migration was left behind")
	}
	applied, _ := d.Applied(ctx)
	for _, name := range applied {
		if name == bad.name {
			t.Error("failed migration was recorded as applied")
		}
	}
}

func TestOpen_ForeignKeysCascade(t *testing.T) {
	d := openTestDB(t, filepath.Join(t.TempDir(), "labeller.db"))
	defer d.Close()

	conn := d.Conn()
	res, err := conn.Exec(`INSERT INTO videos (path, created_at, updated_at) VALUES ('/v.avi', datetime('now'), datetime('now'))`)
	if err != nil {
		t.Fatalf("insert video error = %v", err)
	}
	id, _ := res.LastInsertId()
	if _, err := conn.Exec(`INSERT INTO frame_labels (video_id, frame, label) VALUES (?, 0, 'null')`, id); err != nil {
		t.Fatalf("insert label error = %v", err)
	}
	if _, err := conn.Exec(`DELETE FROM videos WHERE id = ?`, id); err != nil {
		t.Fatalf("delete video error = %v", err)
	}

	var count int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM frame_labels`).Scan(&count); err != nil {
		t.Fatalf("count labels error = %v", err)
	}
	if count != 0 {
		t.Errorf("frame_labels count = %d, want 0", count)
	}
}
