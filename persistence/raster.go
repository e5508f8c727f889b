package persistence

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"tacgrid/server/models"
)

// SampleFormat is the on-disk encoding of one raster sample
type SampleFormat int

const (
	Float32 SampleFormat = iota
	Float64
)

// ErrPartialSample is returned when a raster stream ends mid-sample
var ErrPartialSample = errors.New("raster ends with a partial sample")

// ErrRasterTooLarge is returned when a raster stream holds more samples than
// its declared dimensions
var ErrRasterTooLarge = errors.New("raster holds more samples than its dimensions")

// MaxRasterSamples bounds the declared dimensions of a raster
const MaxRasterSamples = 1 << 26

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Size returns the number of bytes per sample
func (f SampleFormat) Size() int {
	if f == Float64 {
		return 8
	}
	return 4
}

func (f SampleFormat) String() string {
	if f == Float64 {
		return "f64"
	}
	return "f32"
}

// ParseSampleFormat accepts "f32" or "f64" (empty means f32)
func ParseSampleFormat(s string) (SampleFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "f32", "float32":
		return Float32, nil
	case "f64", "float64":
		return Float64, nil
	default:
		return Float32, fmt.Errorf("unknown raster sample format %q", s)
	}
}

// DecodeRaster reads row-major little-endian samples from r, decompressing
// zstd input transparently. The result carries the declared dimensions and
// however many samples the stream held; matching them against the grid is
// the ingester's job. Reading stops one byte past the declared size, so a
// small compressed stream cannot expand without bound.
func DecodeRaster(r io.Reader, width, height int, format SampleFormat) (models.Raster, error) {
	if width <= 0 || height <= 0 || int64(width)*int64(height) > MaxRasterSamples {
		return models.Raster{}, fmt.Errorf("raster dimensions %dx%d out of range", width, height)
	}
	limit := int64(width) * int64(height) * int64(format.Size())

	br := bufio.NewReader(r)

	var src io.Reader = br
	if head, _ := br.Peek(len(zstdMagic)); bytes.Equal(head, zstdMagic) {
		zr, err := zstd.NewReader(br, zstd.WithDecoderConcurrency(0))
		if err != nil {
			return models.Raster{}, fmt.Errorf("open zstd stream: %w", err)
		}
		defer zr.Close()
		src = zr
	}

	raw, err := io.ReadAll(io.LimitReader(src, limit+1))
	if err != nil {
		return models.Raster{}, fmt.Errorf("read raster: %w", err)
	}
	if int64(len(raw)) > limit {
		return models.Raster{}, fmt.Errorf("more than %d bytes for %dx%d %s samples: %w", limit, width, height, format, ErrRasterTooLarge)
	}

	size := format.Size()
	if len(raw)%size != 0 {
		return models.Raster{}, fmt.Errorf("%d bytes of %s samples: %w", len(raw), format, ErrPartialSample)
	}

	samples := make([]float64, len(raw)/size)
	for i := range samples {
		b := raw[i*size : (i+1)*size]
		if format == Float64 {
			samples[i] = math.Float64frombits(binary.LittleEndian.Uint64(b))
		} else {
			samples[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		}
	}

	return models.Raster{Width: width, Height: height, Samples: samples}, nil
}

// EncodeRaster writes the samples of r in the format DecodeRaster reads
func EncodeRaster(w io.Writer, r models.Raster, format SampleFormat, compress bool) error {
	var dst io.Writer = w
	var zw *zstd.Encoder
	if compress {
		var err error
		zw, err = zstd.NewWriter(w)
		if err != nil {
			return fmt.Errorf("open zstd stream: %w", err)
		}
		dst = zw
	}

	bw := bufio.NewWriter(dst)
	buf := make([]byte, format.Size())
	for _, s := range r.Samples {
		if format == Float64 {
			binary.LittleEndian.PutUint64(buf, math.Float64bits(s))
		} else {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(s)))
		}
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if zw != nil {
		return zw.Close()
	}
	return nil
}

// ReadRasterFile decodes the raster stored at path
func ReadRasterFile(path string, width, height int, format SampleFormat) (models.Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Raster{}, fmt.Errorf("open raster %s: %w", path, err)
	}
	defer f.Close()

	return DecodeRaster(f, width, height, format)
}
