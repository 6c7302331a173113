package sstable

import (
	"fmt"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// zstdEncoder/zstdDecoder are safe for concurrent use and expensive
// enough to build that SandDB keeps one of each for the process rather
// than per chunk.
var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

func compressPayload(c Compression, raw []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return raw, nil
	case CompressionFast:
		return snappy.Encode(nil, raw), nil
	case CompressionBest:
		return zstdEncoder.EncodeAll(raw, nil), nil
	default:
		return nil, fmt.Errorf("sstable: unknown compression codec %d", uint8(c))
	}
}

func decompressPayload(c Compression, compressed []byte, uncompressedLen int) ([]byte, error) {
	switch c {
	case CompressionNone:
		return compressed, nil
	case CompressionFast:
		out := make([]byte, 0, uncompressedLen)
		return snappy.Decode(out, compressed)
	case CompressionBest:
		return zstdDecoder.DecodeAll(compressed, make([]byte, 0, uncompressedLen))
	default:
		return nil, fmt.Errorf("sstable: unknown compression codec %d", uint8(c))
	}
}
