// Package bzip2 compresses blobs with bzip2, the on-disk format of the corpus.
package bzip2

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"

	"github.com/JakeFAU/corpus-crawler/internal/crawler"
)

// Codec implements crawler.Codec.
type Codec struct {
	level int
}

var _ crawler.Codec = (*Codec)(nil)

// New returns a codec at the given compression level (1-9). Zero uses the
// best compression level.
func New(level int) (*Codec, error) {
	if level == 0 {
		level = bzip2.BestCompression
	}
	if level < bzip2.BestSpeed || level > bzip2.BestCompression {
		return nil, fmt.Errorf("bzip2 level %d out of range", level)
	}
	return &Codec{level: level}, nil
}

// Encode compresses data.
func (c *Codec) Encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: c.level})
	if err != nil {
		return nil, fmt.Errorf("bzip2 writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("bzip2 write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("bzip2 close: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode decompresses data.
func (c *Codec) Decode(data []byte) ([]byte, error) {
	r, err := bzip2.NewReader(bytes.NewReader(data), nil)
	if err != nil {
		return nil, fmt.Errorf("bzip2 reader: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("bzip2 read: %w", err)
	}
	return out, nil
}
