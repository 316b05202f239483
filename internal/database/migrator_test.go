package database

import (
	"reflect"
	"testing"
	"testing/fstest"
)

func TestPendingFiles(t *testing.T) {
	files := fstest.MapFS{
		"002_b.sql":     {Data: []byte("SELECT 2")},
		"001_a.sql":     {Data: []byte("SELECT 1")},
		"003_c.sql":     {Data: []byte("SELECT 3")},
		"README.md":     {Data: []byte("notes")},
		"embed.go":      {Data: []byte("package migrations")},
		"sub/004_d.sql": {Data: []byte("SELECT 4")},
	}

	got, err := pendingFiles(files, map[string]bool{"002_b.sql": true})
	if err != nil {
		t.Fatalf("pendingFiles: %v", err)
	}

	want := []string{"001_a.sql", "003_c.sql"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("pendingFiles() = %v, want %v", got, want)
	}
}
