package cache

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pepperstats/pepperstats/internal/vcs"
)

// encodeRevision serialises a Revision per §6's explicit little-endian
// wire format, then DEFLATE-compresses it (the wire format mandates
// this exact algorithm, so the standard library's compress/flate is
// used directly rather than a third-party codec).
func encodeRevision(r vcs.Revision) ([]byte, error) {
	var buf bytes.Buffer
	writeString(&buf, r.ID)
	writeU64(&buf, uint64(r.Date))
	writeString(&buf, r.Author)
	writeString(&buf, r.Message)
	writeDiffstat(&buf, r.Diffstat)

	var compressed bytes.Buffer
	w, err := flate.NewWriter(&compressed, flate.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("cache: new deflate writer: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("cache: deflate write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("cache: deflate close: %w", err)
	}
	return compressed.Bytes(), nil
}

// decodeRevision reverses encodeRevision.
func decodeRevision(compressed []byte) (vcs.Revision, error) {
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return vcs.Revision{}, fmt.Errorf("cache: inflate: %w", err)
	}
	buf := bytes.NewReader(raw)

	id, err := readString(buf)
	if err != nil {
		return vcs.Revision{}, err
	}
	date, err := readU64(buf)
	if err != nil {
		return vcs.Revision{}, err
	}
	author, err := readString(buf)
	if err != nil {
		return vcs.Revision{}, err
	}
	message, err := readString(buf)
	if err != nil {
		return vcs.Revision{}, err
	}
	diffstat, err := readDiffstat(buf)
	if err != nil {
		return vcs.Revision{}, err
	}

	return vcs.Revision{
		ID:       id,
		Date:     int64(date),
		Author:   author,
		Message:  message,
		Diffstat: diffstat,
	}, nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeU32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func writeDiffstat(buf *bytes.Buffer, d vcs.Diffstat) {
	writeU32(buf, uint32(len(d)))
	for path, s := range d {
		writeString(buf, path)
		writeU64(buf, s.LinesAdded)
		writeU64(buf, s.BytesAdded)
		writeU64(buf, s.LinesRemoved)
		writeU64(buf, s.BytesRemoved)
	}
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("cache: read u32: %w", err)
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readU64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("cache: read u64: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("cache: read string body: %w", err)
	}
	return string(b), nil
}

func readDiffstat(r *bytes.Reader) (vcs.Diffstat, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	d := make(vcs.Diffstat, n)
	for i := uint32(0); i < n; i++ {
		path, err := readString(r)
		if err != nil {
			return nil, err
		}
		var s vcs.Stat
		if s.LinesAdded, err = readU64(r); err != nil {
			return nil, err
		}
		if s.BytesAdded, err = readU64(r); err != nil {
			return nil, err
		}
		if s.LinesRemoved, err = readU64(r); err != nil {
			return nil, err
		}
		if s.BytesRemoved, err = readU64(r); err != nil {
			return nil, err
		}
		d[path] = s
	}
	return d, nil
}
