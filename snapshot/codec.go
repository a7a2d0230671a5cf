package snapshot

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

const (
	CompressionZstd   = "zstd"
	CompressionBrotli = "br"
)

// extension used for keys of compressed files
func compressionExt(compression string) (string, error) {
	switch compression {
	case CompressionZstd:
		return "zst", nil
	case CompressionBrotli:
		return "br", nil
	}
	return "", fmt.Errorf("snapshot: unknown compression '%s'", compression)
}

func getErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func zstdCompress(d []byte) ([]byte, error) {
	var dst bytes.Buffer
	// zstd.SpeedBestCompression is much slower and not much better
	w, err := zstd.NewWriter(&dst, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	_, err = w.Write(d)
	err2 := w.Close()
	if err = getErr(err, err2); err != nil {
		return nil, err
	}
	return dst.Bytes(), nil
}

func zstdDecompress(d []byte) ([]byte, error) {
	zr, err := zstd.NewReader(bytes.NewReader(d))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func brCompress(d []byte) ([]byte, error) {
	var dst bytes.Buffer
	w := brotli.NewWriterLevel(&dst, brotli.BestCompression)
	_, err := w.Write(d)
	err2 := w.Close()
	if err = getErr(err, err2); err != nil {
		return nil, err
	}
	return dst.Bytes(), nil
}

func brDecompress(d []byte) ([]byte, error) {
	return io.ReadAll(brotli.NewReader(bytes.NewReader(d)))
}

func compress(d []byte, compression string) ([]byte, error) {
	switch compression {
	case CompressionZstd:
		return zstdCompress(d)
	case CompressionBrotli:
		return brCompress(d)
	}
	return nil, fmt.Errorf("snapshot: unknown compression '%s'", compression)
}

func decompress(d []byte, compression string) ([]byte, error) {
	switch compression {
	case CompressionZstd:
		return zstdDecompress(d)
	case CompressionBrotli:
		return brDecompress(d)
	}
	return nil, fmt.Errorf("snapshot: unknown compression '%s'", compression)
}
