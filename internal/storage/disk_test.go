package storage

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hyperjump/tutor/internal/config"
)

func TestDiskUsageBytes_knowledgeBase(t *testing.T) {
	dir := t.TempDir()
	st := &config.StorageConfig{
		DatabasePath: filepath.Join(dir, "kb.db"),
		IndexPath:    filepath.Join(dir, "vectors.index"),
		IDMapPath:    filepath.Join(dir, "vector_ids.json"),
	}
	files := map[string]int{st.DatabasePath: 4096, st.DatabasePath + "-wal": 100, st.IndexPath: 1540, st.IDMapPath: 32}
	for path, size := range files {
		if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
			t.Fatal(err)
		}
	}

	// -shm is absent and counts as zero.
	got, err := DiskUsageBytes(KnowledgeBaseFiles(st)...)
	if err != nil {
		t.Fatal(err)
	}
	if got != 4096+100+1540+32 {
		t.Errorf("got %d bytes, want %d", got, 4096+100+1540+32)
	}
}

func TestDiskUsageBytes_skipsEmptyAndMissing(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "vector_ids.json")
	if err := os.WriteFile(f, []byte(`{"0":"a_0"}`), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := DiskUsageBytes("", f, filepath.Join(dir, "nonexistent"))
	if err != nil {
		t.Fatal(err)
	}
	if got != 11 {
		t.Errorf("got %d bytes, want 11", got)
	}
}

func TestDiskUsageBytes_rejectsDirectory(t *testing.T) {
	if _, err := DiskUsageBytes(t.TempDir()); err == nil {
		t.Error("expected error for a directory")
	}
}

func TestKnowledgeBaseFiles(t *testing.T) {
	st := &config.StorageConfig{DatabasePath: "/kb/kb.db", IndexPath: "/kb/v.index", IDMapPath: "/kb/ids.json"}
	want := []string{"/kb/kb.db", "/kb/kb.db-journal", "/kb/kb.db-wal", "/kb/kb.db-shm", "/kb/v.index", "/kb/ids.json"}
	if got := KnowledgeBaseFiles(st); !reflect.DeepEqual(got, want) {
		t.Errorf("KnowledgeBaseFiles = %v, want %v", got, want)
	}
}
