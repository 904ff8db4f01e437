// pkg/compress/compress.go

package compress

import (
	"strings"

	"github.com/DataDog/zstd"
	lz4 "github.com/hungys/go-lz4"
	"github.com/pkg/errors"
)

// Compressor compresses and decompresses whole blocks of data.
type Compressor interface {
	Name() string
	// CompressBound returns the worst-case compressed size for leng bytes.
	CompressBound(leng int) int
	Compress(dst, src []byte) (int, error)
	Decompress(dst, src []byte) (int, error)
}

// NewCompressor returns a compressor for the given algorithm
// (lz4, zstd, none), or nil if it's not supported.
func NewCompressor(algr string) Compressor {
	switch strings.ToLower(algr) {
	case "lz4":
		return LZ4{}
	case "zstd":
		return ZStandard{level: 1} // fastest
	case "none", "":
		return noOp{}
	}
	return nil
}

type noOp struct{}

func (n noOp) Name() string            { return "none" }
func (n noOp) CompressBound(l int) int { return l }

func (n noOp) Compress(dst, src []byte) (int, error) {
	if len(dst) < len(src) {
		return 0, errors.New("dst buffer is too small")
	}
	return copy(dst, src), nil
}

func (n noOp) Decompress(dst, src []byte) (int, error) {
	if len(dst) < len(src) {
		return 0, errors.New("dst buffer is too small")
	}
	return copy(dst, src), nil
}

type LZ4 struct{}

func (l LZ4) Name() string               { return "lz4" }
func (l LZ4) CompressBound(leng int) int { return lz4.CompressBound(leng) }

func (l LZ4) Compress(dst, src []byte) (int, error) {
	return lz4.CompressDefault(src, dst)
}

func (l LZ4) Decompress(dst, src []byte) (int, error) {
	return lz4.DecompressSafe(src, dst)
}

type ZStandard struct {
	level int
}

func (z ZStandard) Name() string               { return "zstd" }
func (z ZStandard) CompressBound(leng int) int { return zstd.CompressBound(leng) }

func (z ZStandard) Compress(dst, src []byte) (int, error) {
	d, err := zstd.CompressLevel(dst[:0], src, z.level)
	if err != nil {
		return 0, err
	}
	if len(d) > cap(dst) {
		return 0, errors.New("dst buffer is too small")
	}
	return len(d), nil
}

func (z ZStandard) Decompress(dst, src []byte) (int, error) {
	d, err := zstd.Decompress(dst[:0], src)
	if err != nil {
		return 0, err
	}
	if len(d) > cap(dst) {
		return 0, errors.New("dst buffer is too small")
	}
	return len(d), nil
}
