// Package yomichantest builds dictionary archives for tests.
package yomichantest

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/japaniel/yomiport/pkg/yomichan"
)

// File is an archive member. Members are written in the order given.
type File struct {
	Name string
	Body string
}

// Index returns an index.json member with the given title and revision.
func Index(title, revision string) File {
	return File{Name: yomichan.ManifestName, Body: `{"title":"` + title + `","revision":"` + revision + `","format":3}`}
}

// Archive returns the bytes of a zip archive holding files.
func Archive(t testing.TB, files ...File) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f.Name)
		if err != nil {
			t.Fatalf("create %s: %v", f.Name, err)
		}
		if _, err := w.Write([]byte(f.Body)); err != nil {
			t.Fatalf("write %s: %v", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	return buf.Bytes()
}

// Write stores an archive named name in a temporary directory and returns its path.
func Write(t testing.TB, name string, files ...File) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, Archive(t, files...), 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	return path
}

// Load builds an archive from files and ingests it.
func Load(t testing.TB, files ...File) *yomichan.Dictionary {
	t.Helper()
	data := Archive(t, files...)
	d, _, err := yomichan.NewLoader(yomichan.Options{}).LoadReader(context.Background(), bytes.NewReader(data), int64(len(data)), "test.zip")
	if err != nil {
		t.Fatalf("load archive: %v", err)
	}
	return d
}
