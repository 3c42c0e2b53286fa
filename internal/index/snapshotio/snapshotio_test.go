package snapshotio

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/searchlite/searchlite/internal/index"
	"github.com/searchlite/searchlite/pkg/config"
	pkgerrors "github.com/searchlite/searchlite/pkg/errors"
)

func buildTestSnapshot(t *testing.T) *index.Snapshot {
	t.Helper()
	b := index.NewBuilder(config.IndexConfig{BuildWorkers: 1, TermShards: 2})
	docs := []index.RawDocument{
		{URL: "https://example.com/1", Title: "Search engines", Text: "search engines rank documents", CrawledAt: time.Now().UTC()},
		{URL: "https://example.com/2", Title: "Databases", Text: "databases store structured records", CrawledAt: time.Now().UTC()},
	}
	for _, d := range docs {
		if err := b.Add(d); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	snap, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return snap
}

func writeTestSnapshot(t *testing.T, dir string) (string, *index.Snapshot) {
	t.Helper()
	snap := buildTestSnapshot(t)
	name, err := NewWriter(dir).Write(snap)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	return filepath.Join(dir, name), snap
}

func TestWriteLoadRoundTrip(t *testing.T) {
	path, original := writeTestSnapshot(t, t.TempDir())

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.N() != original.N() {
		t.Errorf("doc count: got %d, want %d", loaded.N(), original.N())
	}
	if len(loaded.Terms) != len(original.Terms) {
		t.Fatalf("term count: got %d, want %d", len(loaded.Terms), len(original.Terms))
	}
	for i, term := range original.Terms {
		if loaded.Terms[i] != term {
			t.Errorf("term %d: got %q, want %q", i, loaded.Terms[i], term)
		}
		if loaded.DocFreqs[i] != original.DocFreqs[i] {
			t.Errorf("term %q: doc freq %d, want %d", term, loaded.DocFreqs[i], original.DocFreqs[i])
		}
		if len(loaded.Postings[i]) != len(original.Postings[i]) {
			t.Errorf("term %q: posting count differs", term)
		}
	}
	for docID, doc := range original.Docs {
		if loaded.Docs[docID].URL != doc.URL {
			t.Errorf("doc %d URL: got %q, want %q", docID, loaded.Docs[docID].URL, doc.URL)
		}
		if got := loaded.Vectors[docID].Dot(original.Vectors[docID]); got < 0.999 {
			t.Errorf("doc %d vector self-similarity after reload = %v", docID, got)
		}
	}
	if !loaded.BuiltAt.Equal(original.BuiltAt.Truncate(time.Second)) {
		t.Errorf("built at: got %v, want %v", loaded.BuiltAt, original.BuiltAt.Truncate(time.Second))
	}
}

func corruptByte(t *testing.T, path string, offset int64, value byte) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("open for corruption: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteAt([]byte{value}, offset); err != nil {
		t.Fatalf("corrupting file: %v", err)
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	path, _ := writeTestSnapshot(t, t.TempDir())
	corruptByte(t, path, 0, 0xFF)
	_, err := Load(path)
	if !errors.Is(err, pkgerrors.ErrSnapshotCorrupt) {
		t.Errorf("got %v, want ErrSnapshotCorrupt", err)
	}
}

func TestLoadRejectsUnknownVersion(t *testing.T) {
	path, _ := writeTestSnapshot(t, t.TempDir())
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], FormatVersion+1)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteAt(buf[:], 4); err != nil {
		t.Fatalf("writing version: %v", err)
	}
	f.Close()

	_, err = Load(path)
	if !errors.Is(err, pkgerrors.ErrSnapshotVersion) {
		t.Errorf("got %v, want ErrSnapshotVersion", err)
	}
}

func TestLoadRejectsCorruptSection(t *testing.T) {
	path, _ := writeTestSnapshot(t, t.TempDir())
	// Flip a byte inside the first section's payload.
	corruptByte(t, path, int64(HeaderSize)+6, '~')
	_, err := Load(path)
	if !errors.Is(err, pkgerrors.ErrSnapshotCorrupt) {
		t.Errorf("got %v, want ErrSnapshotCorrupt", err)
	}
}

func TestLoadRejectsTruncatedFile(t *testing.T) {
	path, _ := writeTestSnapshot(t, t.TempDir())
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if err := os.Truncate(path, info.Size()/2); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if _, err := Load(path); !errors.Is(err, pkgerrors.ErrSnapshotCorrupt) {
		t.Errorf("got %v, want ErrSnapshotCorrupt", err)
	}
}

func TestLatestPath(t *testing.T) {
	dir := t.TempDir()

	path, err := LatestPath(dir)
	if err != nil || path != "" {
		t.Fatalf("empty dir: got (%q, %v), want (\"\", nil)", path, err)
	}

	path, err = LatestPath(filepath.Join(dir, "missing"))
	if err != nil || path != "" {
		t.Fatalf("missing dir: got (%q, %v), want (\"\", nil)", path, err)
	}

	first, _ := writeTestSnapshot(t, dir)
	second, _ := writeTestSnapshot(t, dir)
	if first == second {
		t.Fatal("expected distinct snapshot file names")
	}
	path, err = LatestPath(dir)
	if err != nil {
		t.Fatalf("LatestPath: %v", err)
	}
	if path != second {
		t.Errorf("got %q, want newest %q", path, second)
	}
}
