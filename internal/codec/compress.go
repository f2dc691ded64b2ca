package codec

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how a spectrum body is compressed. Values are
// stored in file headers and must not change.
type Compression uint8

const (
	// CompressionNone stores the body as is
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast decode)
	CompressionLZ4 Compression = 1
	// CompressionZstd uses zstd at the default level (better ratio)
	CompressionZstd Compression = 2
)

// errIncompressible reports that compression would not shrink the body
var errIncompressible = errors.New("data is incompressible")

// errBodySize reports a header size no real body can have
var errBodySize = errors.New("implausible body size")

const (
	// maxBodySize caps the uncompressed body of one spectrum file
	maxBodySize = 512 << 20
	// maxLZ4Ratio is the best ratio the LZ4 block format can reach
	maxLZ4Ratio = 255
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// ParseCompression parses a compression name as used in configuration
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none", "":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (want none, lz4 or zstd)", name)
	}
}

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("codec: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxBodySize))
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

// compress returns data compressed with c, or errIncompressible when the
// result would not be smaller
func compress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if n == 0 || n >= len(data) {
			return nil, errIncompressible
		}
		return dst[:n], nil
	case CompressionZstd:
		out := zstdEncoder.EncodeAll(data, nil)
		if len(out) >= len(data) {
			return nil, errIncompressible
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported compression: %d", c)
	}
}

// checkBodySize rejects a header size that data could not expand to,
// before anything is allocated for it
func checkBodySize(data []byte, c Compression, size int) error {
	if size < 0 || size > maxBodySize {
		return fmt.Errorf("%w: header says %d bytes", errBodySize, size)
	}
	if c == CompressionLZ4 && size > len(data)*maxLZ4Ratio {
		return fmt.Errorf("%w: %d bytes from %d compressed", errBodySize, size, len(data))
	}
	return nil
}

// decompress reverses compress; size is the exact uncompressed length
func decompress(data []byte, c Compression, size int) ([]byte, error) {
	if err := checkBodySize(data, c, size); err != nil {
		return nil, err
	}
	switch c {
	case CompressionNone:
		if len(data) != size {
			return nil, fmt.Errorf("body is %d bytes, header says %d", len(data), size)
		}
		return data, nil
	case CompressionLZ4:
		dst := make([]byte, size)
		n, err := lz4.UncompressBlock(data, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if n != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", n, size)
		}
		return dst, nil
	case CompressionZstd:
		// The frame header, not size, decides how much the decoder allocates
		out, err := zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(out) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), size)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported compression: %d", c)
	}
}
