package snapshotio

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/searchlite/searchlite/internal/index"
	pkgerrors "github.com/searchlite/searchlite/pkg/errors"
)

// Load reads and validates a .slix snapshot file. A bad magic number or
// checksum yields ErrSnapshotCorrupt; an unknown format version yields
// ErrSnapshotVersion. Both are fatal for the file: no partial snapshot is
// ever returned.
func Load(path string) (*index.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot file: %w", err)
	}
	defer f.Close()

	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, fmt.Errorf("%w: short header: %v", pkgerrors.ErrSnapshotCorrupt, err)
	}
	if magic := binary.LittleEndian.Uint32(header[0:4]); magic != MagicBytes {
		return nil, fmt.Errorf("%w: bad magic bytes %x", pkgerrors.ErrSnapshotCorrupt, magic)
	}
	if version := binary.LittleEndian.Uint32(header[4:8]); version != FormatVersion {
		return nil, fmt.Errorf("%w: file version %d, supported %d", pkgerrors.ErrSnapshotVersion, version, FormatVersion)
	}
	builtAt := time.Unix(int64(binary.LittleEndian.Uint64(header[16:24])), 0).UTC()
	skipped := int(binary.LittleEndian.Uint32(header[24:28]))

	crc := crc32.NewIEEE()
	sections := make([][]byte, 4)
	for i := range sections {
		var lenBuf [4]byte
		if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
			return nil, fmt.Errorf("%w: short section length: %v", pkgerrors.ErrSnapshotCorrupt, err)
		}
		data := make([]byte, binary.LittleEndian.Uint32(lenBuf[:]))
		if _, err := io.ReadFull(f, data); err != nil {
			return nil, fmt.Errorf("%w: short section: %v", pkgerrors.ErrSnapshotCorrupt, err)
		}
		crc.Write(lenBuf[:])
		crc.Write(data)
		sections[i] = data
	}

	footer := make([]byte, FooterSize)
	if _, err := io.ReadFull(f, footer); err != nil {
		return nil, fmt.Errorf("%w: short footer: %v", pkgerrors.ErrSnapshotCorrupt, err)
	}
	if sum := binary.LittleEndian.Uint32(footer[0:4]); sum != crc.Sum32() {
		return nil, fmt.Errorf("%w: checksum mismatch", pkgerrors.ErrSnapshotCorrupt)
	}

	var vocab []vocabEntry
	var postings []index.PostingList
	var docs []index.Document
	var vectors []index.SparseVector
	for i, target := range []any{&vocab, &postings, &docs, &vectors} {
		if err := json.Unmarshal(sections[i], target); err != nil {
			return nil, fmt.Errorf("%w: parsing section %d: %v", pkgerrors.ErrSnapshotCorrupt, i, err)
		}
	}
	terms := make([]string, len(vocab))
	docFreqs := make([]int, len(vocab))
	for i, e := range vocab {
		terms[i] = e.Term
		docFreqs[i] = e.DocFreq
	}
	if len(postings) != len(terms) {
		return nil, fmt.Errorf("%w: %d posting lists for %d terms", pkgerrors.ErrSnapshotCorrupt, len(postings), len(terms))
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("%w: %d vectors for %d documents", pkgerrors.ErrSnapshotCorrupt, len(vectors), len(docs))
	}

	return index.NewSnapshot(docs, terms, docFreqs, postings, vectors, builtAt, skipped), nil
}

// LatestPath returns the newest snapshot file in dataDir. Snapshot names
// embed a nanosecond timestamp, so lexicographic order is creation order.
// An empty string (no error) means no snapshot exists yet.
func LatestPath(dataDir string) (string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading snapshot directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), FileSuffix) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names)
	return filepath.Join(dataDir, names[len(names)-1]), nil
}
