package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression is an algorithm blobs can be compressed with
type Compression byte

// Compression algorithms. Their value prefixes every compressed blob.
const (
	None Compression = iota
	Zstd
	LZ4
)

func (c Compression) String() string {
	switch c {
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	}
	return "none"
}

// ParseCompression returns the compression algorithm with the given name
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return None, nil
	case "zstd":
		return Zstd, nil
	case "lz4":
		return LZ4, nil
	}
	return None, fmt.Errorf("unknown compression %q, valid ones are none, zstd and lz4", name)
}

type compressedStore struct {
	Store
	compression Compression
	encoder     *zstd.Encoder
	decoder     *zstd.Decoder
}

// NewCompressed returns a Store that compresses blobs with the given
// algorithm before putting them on the given store. Blobs are prefixed
// with the algorithm they were compressed with, so blobs put with any
// algorithm can be read back.
func NewCompressed(s Store, c Compression) (Store, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %v", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %v", err)
	}
	return &compressedStore{Store: s, compression: c, encoder: enc, decoder: dec}, nil
}

func (cs *compressedStore) Put(ctx context.Context, key string, data []byte) error {
	compressed, err := cs.compress(data)
	if err != nil {
		return fmt.Errorf("compressing blob %q with %v: %v", key, cs.compression, err)
	}
	return cs.Store.Put(ctx, key, compressed)
}

func (cs *compressedStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := cs.Store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("decompressing blob %q: empty blob", key)
	}
	c := Compression(data[0])
	decompressed, err := cs.decompress(c, data[1:])
	if err != nil {
		return nil, fmt.Errorf("decompressing blob %q with %v: %v", key, c, err)
	}
	return decompressed, nil
}

func (cs *compressedStore) Close(ctx context.Context) error {
	cs.encoder.Close()
	cs.decoder.Close()
	return cs.Store.Close(ctx)
}

func (cs *compressedStore) compress(data []byte) ([]byte, error) {
	out := []byte{byte(cs.compression)}
	switch cs.compression {
	case Zstd:
		return cs.encoder.EncodeAll(data, out), nil
	case LZ4:
		buf := bytes.NewBuffer(out)
		w := lz4.NewWriter(buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return append(out, data...), nil
}

func (cs *compressedStore) decompress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case None:
		return append([]byte(nil), data...), nil
	case Zstd:
		return cs.decoder.DecodeAll(data, nil)
	case LZ4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	}
	return nil, fmt.Errorf("unknown compression %d", c)
}
