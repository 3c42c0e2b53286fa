// Package snapshotio persists index snapshots as versioned .slix files:
// a fixed binary header (magic, format version, counts), four
// length-prefixed JSON sections (vocabulary, postings, documents,
// vectors), and a CRC32 footer. Files are written to a temp path and
// renamed, so readers only ever see complete snapshots. A version
// mismatch at load time is a fatal error; the format is never guessed.
package snapshotio

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/searchlite/searchlite/internal/index"
)

const (
	MagicBytes    uint32 = 0x534C4958 // "SLIX"
	FormatVersion uint32 = 1
	HeaderSize    int    = 32
	FooterSize    int    = 16

	// FileSuffix is shared by the writer, loader, and the searcher's
	// reload poller.
	FileSuffix = ".slix"
)

type vocabEntry struct {
	Term    string `json:"t"`
	DocFreq int    `json:"d"`
}

// Writer serialises snapshots into new .slix files inside a data
// directory.
type Writer struct {
	dataDir string
}

// NewWriter creates a Writer that writes snapshot files into dataDir.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Write atomically creates a new snapshot file and returns its file name.
func (w *Writer) Write(snap *index.Snapshot) (string, error) {
	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating snapshot directory: %w", err)
	}
	name := fmt.Sprintf("snap_%d%s", time.Now().UnixNano(), FileSuffix)
	finalPath := filepath.Join(w.dataDir, name)
	tmpPath := finalPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp snapshot file: %w", err)
	}
	defer f.Close()

	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(snap.Terms)))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(snap.Docs)))
	binary.LittleEndian.PutUint64(header[16:24], uint64(snap.BuiltAt.Unix()))
	binary.LittleEndian.PutUint32(header[24:28], uint32(snap.SkippedInputs))
	if _, err := f.Write(header); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	vocab := make([]vocabEntry, len(snap.Terms))
	for i, term := range snap.Terms {
		vocab[i] = vocabEntry{Term: term, DocFreq: snap.DocFreqs[i]}
	}

	crc := crc32.NewIEEE()
	var sectionBytes int64
	for _, section := range []any{vocab, snap.Postings, snap.Docs, snap.Vectors} {
		data, err := json.Marshal(section)
		if err != nil {
			return "", fmt.Errorf("marshaling snapshot section: %w", err)
		}
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
		if _, err := f.Write(lenBuf[:]); err != nil {
			return "", fmt.Errorf("writing section length: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			return "", fmt.Errorf("writing section: %w", err)
		}
		crc.Write(lenBuf[:])
		crc.Write(data)
		sectionBytes += int64(len(lenBuf) + len(data))
	}

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc.Sum32())
	binary.LittleEndian.PutUint64(footer[8:16], uint64(sectionBytes))
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing snapshot file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming snapshot file: %w", err)
	}
	return name, nil
}
