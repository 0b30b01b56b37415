package capture

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDirSourceReplaysExistingSorted(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, filepath.Join(dir, "b-second.jpg"), 200)
	writeJPEG(t, filepath.Join(dir, "a-first.jpg"), 50)

	s := NewDirSource(dir)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	first := readFrame(t, s.Frames(), 2*time.Second)
	if got := frameShade(first); !nearShade(got, 50) {
		t.Errorf("first replayed frame shade %d, want ~50 (name order)", got)
	}
	second := readFrame(t, s.Frames(), 2*time.Second)
	if got := frameShade(second); !nearShade(got, 200) {
		t.Errorf("second replayed frame shade %d, want ~200", got)
	}
	if first.Seq != 1 || second.Seq != 2 {
		t.Errorf("seq %d,%d want 1,2", first.Seq, second.Seq)
	}
}

func TestDirSourceEmitsNewFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewDirSource(dir)
	s.settle = 20 * time.Millisecond
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	writeJPEG(t, filepath.Join(dir, "snap.jpg"), 130)

	f := readFrame(t, s.Frames(), 3*time.Second)
	if got := frameShade(f); !nearShade(got, 130) {
		t.Errorf("frame shade %d, want ~130", got)
	}
}

func TestDirSourceSkipsNonImages(t *testing.T) {
	dir := t.TempDir()
	s := NewDirSource(dir)
	s.settle = 20 * time.Millisecond
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "corrupt.jpg"), []byte("not a jpeg"), 0644); err != nil {
		t.Fatal(err)
	}
	writeJPEG(t, filepath.Join(dir, "real.jpg"), 90)

	f := readFrame(t, s.Frames(), 3*time.Second)
	if got := frameShade(f); !nearShade(got, 90) {
		t.Errorf("frame shade %d, want ~90 (junk files skipped)", got)
	}

	select {
	case extra, ok := <-s.Frames():
		if ok {
			t.Errorf("unexpected extra frame seq %d", extra.Seq)
		}
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDirSourceMissingDir(t *testing.T) {
	s := NewDirSource(filepath.Join(t.TempDir(), "nope"))
	if err := s.Open(context.Background()); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
