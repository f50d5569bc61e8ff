// Package codec serializes the whole contents of a persistent tier.
//
// An image is a JSON envelope carrying a format version, the entries least
// recent first, and a sha256 checksum of the encoded entries. Images may be
// gzip-compressed; Decode detects compression from the gzip magic bytes.
package codec

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tiercache/tiercache/pkg/types"
)

// Version is the current image format version.
const Version = 1

// ErrCorrupt is returned when an image cannot be decoded or fails its
// checksum.
var ErrCorrupt = errors.New("corrupt tier image")

var gzipMagic = []byte{0x1f, 0x8b}

type envelope struct {
	Version  int             `json:"version"`
	Checksum string          `json:"checksum"`
	Entries  json.RawMessage `json:"entries"`
}

// Codec encodes and decodes tier images.
type Codec struct {
	compress bool
}

// New creates a codec. When compress is set, Encode gzips its output.
func New(compress bool) *Codec {
	return &Codec{compress: compress}
}

// Compressed reports whether Encode gzips its output.
func (c *Codec) Compressed() bool {
	return c.compress
}

// Encode serializes entries, which must be ordered least recent first.
func (c *Codec) Encode(entries []types.Entry) ([]byte, error) {
	if entries == nil {
		entries = []types.Entry{}
	}
	body, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entries: %w", err)
	}

	data, err := json.Marshal(envelope{
		Version:  Version,
		Checksum: checksum(body),
		Entries:  body,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}

	if !c.compress {
		return data, nil
	}

	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	if _, err := gzipWriter.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress image: %w", err)
	}
	if err := gzipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress image: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses an image produced by Encode. Empty input is an empty image.
func (c *Codec) Decode(data []byte) ([]types.Entry, error) {
	if len(data) == 0 {
		return nil, nil
	}

	if bytes.HasPrefix(data, gzipMagic) {
		gzipReader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		defer func() { _ = gzipReader.Close() }()

		data, err = io.ReadAll(gzipReader)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if env.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, env.Version)
	}
	if checksum(env.Entries) != env.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	var entries []types.Entry
	if err := json.Unmarshal(env.Entries, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return entries, nil
}

func checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
