package cache

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DefaultMaxSegmentSize is the cap, in bytes of writer position, at
// which a segment file is rotated (§3, §4.5.1), used when Cache is
// opened without an explicit segment size.
const DefaultMaxSegmentSize = 4 * 1024 * 1024

func segmentPath(dir string, index uint32) string {
	return filepath.Join(dir, fmt.Sprintf("cache.%d", index))
}

// segmentWriter appends length-prefixed compressed records to one
// segment file, rotating to a fresh file once maxSize is reached.
type segmentWriter struct {
	dir     string
	index   uint32
	file    *os.File
	pos     int64
	maxSize int64
}

// openSegmentWriter appends to the highest-numbered existing segment
// if its size is below maxSize, and otherwise starts the next index
// after it; with no segment on disk it starts at index 0.
func openSegmentWriter(dir string, maxSize int64) (*segmentWriter, error) {
	highest, size, err := latestSegment(dir)
	if err != nil {
		return nil, err
	}
	index := highest
	if size >= maxSize {
		index++
		size = 0
	}
	f, err := os.OpenFile(segmentPath(dir, index), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cache: open segment %d: %w", index, err)
	}
	return &segmentWriter{dir: dir, index: index, file: f, pos: size, maxSize: maxSize}, nil
}

func latestSegment(dir string) (index uint32, size int64, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("cache: list segment dir: %w", err)
	}
	found := false
	for _, e := range entries {
		var n uint32
		if _, scanErr := fmt.Sscanf(e.Name(), "cache.%d", &n); scanErr != nil {
			continue
		}
		if !found || n > index {
			index = n
			found = true
		}
	}
	if !found {
		return 0, 0, nil
	}
	info, err := os.Stat(segmentPath(dir, index))
	if err != nil {
		return 0, 0, fmt.Errorf("cache: stat segment %d: %w", index, err)
	}
	return index, info.Size(), nil
}

// Append writes one length-prefixed record, rotating to a new segment
// first if this write would exceed the writer's maxSize. It returns the
// segment index and offset the record was written at, and flushes
// before returning so the index entry that follows is never dangling.
func (w *segmentWriter) Append(record []byte) (segIndex uint32, offset uint32, err error) {
	recordSize := int64(4 + len(record))
	if w.pos > 0 && w.pos+recordSize > w.maxSize {
		if err := w.file.Close(); err != nil {
			return 0, 0, fmt.Errorf("cache: close segment %d: %w", w.index, err)
		}
		w.index++
		w.pos = 0
		f, err := os.OpenFile(segmentPath(w.dir, w.index), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return 0, 0, fmt.Errorf("cache: open segment %d: %w", w.index, err)
		}
		w.file = f
	}

	offset = uint32(w.pos)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(record)))
	if _, err := w.file.Write(lenBuf[:]); err != nil {
		return 0, 0, fmt.Errorf("cache: write record length: %w", err)
	}
	if _, err := w.file.Write(record); err != nil {
		return 0, 0, fmt.Errorf("cache: write record body: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return 0, 0, fmt.Errorf("cache: sync segment: %w", err)
	}
	w.pos += recordSize
	return w.index, offset, nil
}

func (w *segmentWriter) Close() error {
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}

// segmentReader reads one record at a given offset, opening a fresh
// file handle on every segment switch and reusing it otherwise.
type segmentReader struct {
	dir         string
	openIndex   uint32
	openFile    *os.File
	hasOpenFile bool
}

func newSegmentReader(dir string) *segmentReader {
	return &segmentReader{dir: dir}
}

// Read returns the raw compressed record bytes at (segIndex, offset).
func (r *segmentReader) Read(segIndex, offset uint32) ([]byte, error) {
	if !r.hasOpenFile || r.openIndex != segIndex {
		if r.openFile != nil {
			r.openFile.Close()
		}
		f, err := os.Open(segmentPath(r.dir, segIndex))
		if err != nil {
			return nil, fmt.Errorf("cache: open segment %d: %w", segIndex, err)
		}
		r.openFile = f
		r.openIndex = segIndex
		r.hasOpenFile = true
	}

	if _, err := r.openFile.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("cache: seek segment %d: %w", segIndex, err)
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(r.openFile, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("cache: read record length: %w", err)
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r.openFile, body); err != nil {
		return nil, fmt.Errorf("cache: read record body: %w", err)
	}
	return body, nil
}

func (r *segmentReader) Close() error {
	if r.openFile == nil {
		return nil
	}
	return r.openFile.Close()
}
