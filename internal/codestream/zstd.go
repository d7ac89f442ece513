package codestream

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/mrjoshuak/go-idx2/internal/idxerr"
)

var (
	zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest), zstd.WithEncoderConcurrency(1), zstd.WithZeroFrames(true))
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		return enc, nil
	})
	zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		return dec, nil
	})
)

// Compress returns src as a single zstd frame. It is safe for concurrent use.
func Compress(src []byte) ([]byte, error) {
	enc, err := zstdEncoder()
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(src, nil), nil
}

// Decompress decodes a zstd frame. It is safe for concurrent use.
func Decompress(src []byte) ([]byte, error) {
	dec, err := zstdDecoder()
	if err != nil {
		return nil, err
	}
	out, err := dec.DecodeAll(src, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return out, nil
}

// CompressAddresses serializes addrs as little-endian uint64 and compresses
// them.
func CompressAddresses(addrs []uint64) ([]byte, error) {
	raw := make([]byte, 8*len(addrs))
	for i, a := range addrs {
		binary.LittleEndian.PutUint64(raw[8*i:], a)
	}
	return Compress(raw)
}

// DecompressAddresses undoes CompressAddresses and checks that exactly n
// addresses were stored.
func DecompressAddresses(src []byte, n int) ([]uint64, error) {
	raw, err := Decompress(src)
	if err != nil {
		return nil, err
	}
	if len(raw) != 8*n {
		return nil, fmt.Errorf("%d bytes of chunk addresses for %d chunks: %w", len(raw), n, idxerr.SizeMismatched)
	}
	addrs := make([]uint64, n)
	for i := range addrs {
		addrs[i] = binary.LittleEndian.Uint64(raw[8*i:])
	}
	return addrs, nil
}
