package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/enph353/labeller/internal/labels"
	"github.com/enph353/labeller/internal/store"
)

func TestIsVideoFile(t *testing.T) {
	cases := map[string]bool{
		"run1.avi":      true,
		"RUN2.AVI":      true,
		"clip.mp4":      true,
		"run1.avi.json": false,
		"notes.txt":     false,
		"noext":         false,
	}
	for name, want := range cases {
		if got := IsVideoFile(name); got != want {
			t.Errorf("IsVideoFile(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestService_ListVideos(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"run2.avi",
		"run1.avi",
		"run1.avi.json",
		filepath.Join("day2", "run3.mp4"),
		filepath.Join(".trash", "old.avi"),
	} {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	st := store.NewFileStore("")
	if err := st.Save(context.Background(), filepath.Join(dir, "run1.avi"), labels.NewDocument()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	policy, _ := labels.NewPolicy("set", 4)
	svc, err := NewService(Options{Opener: memoryOpener(scenario), Store: st, Policy: policy, VideoDir: dir})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	defer svc.Close()

	videos, err := svc.ListVideos(context.Background())
	if err != nil {
		t.Fatalf("ListVideos() error = %v", err)
	}

	want := []string{filepath.Join("day2", "run3.mp4"), "run1.avi", "run2.avi"}
	if len(videos) != len(want) {
		t.Fatalf("ListVideos() = %+v, want %v", videos, want)
	}
	for i, v := range videos {
		if v.Path != want[i] {
			t.Errorf("videos[%d].Path = %s, want %s", i, v.Path, want[i])
		}
		if v.Labelled != (v.Path == "run1.avi") {
			t.Errorf("videos[%d].Labelled = %v", i, v.Labelled)
		}
	}
}

func TestService_ListVideos_MissingDir(t *testing.T) {
	policy, _ := labels.NewPolicy("set", 4)
	svc, err := NewService(Options{
		Opener:   memoryOpener(scenario),
		Store:    store.NewFileStore(""),
		Policy:   policy,
		VideoDir: filepath.Join(t.TempDir(), "missing"),
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	defer svc.Close()

	if _, err := svc.ListVideos(context.Background()); !errors.Is(err, ErrVideoNotFound) {
		t.Errorf("ListVideos() error = %v, want ErrVideoNotFound", err)
	}
}
