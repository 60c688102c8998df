package layers

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression of a root filesystem archive.
type Compression string

const (
	CompressionNone  Compression = "none"
	CompressionGzip  Compression = "gzip"
	CompressionBzip2 Compression = "bzip2"
	CompressionXz    Compression = "xz"
	CompressionZstd  Compression = "zstd"
)

var (
	magicGzip  = []byte{0x1f, 0x8b}
	magicBzip2 = []byte("BZh")
	magicXz    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	magicZstd  = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// InspectArchive detects the compression of a tar archive and checks that
// its first entry parses. xz streams are identified by magic only.
func InspectArchive(path string) (Compression, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	head, err := br.Peek(len(magicXz))
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	var (
		compression Compression
		stream      io.Reader
	)
	switch {
	case bytes.HasPrefix(head, magicGzip):
		compression = CompressionGzip
		gz, err := gzip.NewReader(br)
		if err != nil {
			return "", fmt.Errorf("invalid gzip archive %s: %w", path, err)
		}
		defer gz.Close()
		stream = gz
	case bytes.HasPrefix(head, magicZstd):
		compression = CompressionZstd
		dec, err := zstd.NewReader(br)
		if err != nil {
			return "", fmt.Errorf("invalid zstd archive %s: %w", path, err)
		}
		defer dec.Close()
		stream = dec
	case bytes.HasPrefix(head, magicBzip2):
		compression = CompressionBzip2
		stream = bzip2.NewReader(br)
	case bytes.HasPrefix(head, magicXz):
		return CompressionXz, nil
	default:
		compression = CompressionNone
		stream = br
	}

	if _, err := tar.NewReader(stream).Next(); err != nil {
		if err == io.EOF {
			return "", fmt.Errorf("archive %s is empty", path)
		}
		return "", fmt.Errorf("archive %s is not a %s compressed tar: %w", path, compression, err)
	}
	return compression, nil
}
