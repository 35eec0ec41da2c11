package persistence

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionType defines the compression algorithm used for the snapshot
// payload block.
type CompressionType uint8

const (
	// CompressionNone stores the payload uncompressed.
	CompressionNone CompressionType = 0
	// CompressionLZ4 uses LZ4 block compression (fast, moderate ratio).
	CompressionLZ4 CompressionType = 1
	// CompressionZSTD uses ZSTD block compression (slower, better ratio).
	CompressionZSTD CompressionType = 2
)

// String returns the codec name.
func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ZSTD encoder/decoder pools for efficiency.
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// compressBlock compresses the payload with the given codec. An LZ4 result of
// zero bytes means the input was incompressible; it is then stored raw under
// CompressionNone so the reader never sees an empty block.
func compressBlock(payload []byte, ctype CompressionType) ([]byte, CompressionType, error) {
	switch ctype {
	case CompressionNone:
		return payload, CompressionNone, nil

	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(payload)))
		n, err := lz4.CompressBlock(payload, dst, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("persistence: lz4 compress: %w", err)
		}
		if n == 0 || n >= len(payload) {
			return payload, CompressionNone, nil
		}
		return dst[:n], CompressionLZ4, nil

	case CompressionZSTD:
		enc := getZstdEncoder()
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(payload, nil), CompressionZSTD, nil

	default:
		return nil, 0, fmt.Errorf("persistence: unknown compression type %d", ctype)
	}
}

// decompressBlock reverses compressBlock. payloadLen is the expected
// uncompressed size from the snapshot trailer.
func decompressBlock(block []byte, ctype CompressionType, payloadLen int) ([]byte, error) {
	switch ctype {
	case CompressionNone:
		return block, nil

	case CompressionLZ4:
		dst := make([]byte, payloadLen)
		n, err := lz4.UncompressBlock(block, dst)
		if err != nil {
			return nil, fmt.Errorf("persistence: lz4 decompress: %w", err)
		}
		return dst[:n], nil

	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(block, make([]byte, 0, payloadLen))
		if err != nil {
			return nil, fmt.Errorf("persistence: zstd decompress: %w", err)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("persistence: unknown compression type %d", ctype)
	}
}
