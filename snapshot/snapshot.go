// Package snapshot backs up and restores a set of files, compressed,
// to a Destination (a local directory or S3-compatible storage).
//
// A snapshot with prefix p is stored as:
//
//	p/<file name>.zst (or .br)
//	p/manifest.json
package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/kjk/capnation/atomicfile"
	"github.com/kjk/capnation/log"
)

const ManifestName = "manifest.json"

type Options struct {
	// if empty, derived from current time e.g. "20261017-153000"
	Prefix string
	// CompressionZstd (default) or CompressionBrotli
	Compression string
}

type FileInfo struct {
	Name           string `json:"name"`
	Key            string `json:"key"`
	Size           int64  `json:"size"`
	CompressedSize int64  `json:"compressed_size"`
	SHA256         string `json:"sha256"`
}

type Manifest struct {
	Prefix      string     `json:"prefix"`
	Compression string     `json:"compression"`
	CreatedAt   time.Time  `json:"created_at"`
	Files       []FileInfo `json:"files"`
}

func sha256Hex(d []byte) string {
	h := sha256.Sum256(d)
	return hex.EncodeToString(h[:])
}

// ManifestKey returns key of the manifest of snapshot with a given prefix
func ManifestKey(prefix string) string {
	return path.Join(prefix, ManifestName)
}

// Backup compresses files and stores them in dst, followed by the manifest.
// Files must have distinct names.
func Backup(ctx context.Context, files []string, dst Destination, opts *Options) (*Manifest, error) {
	timeStart := time.Now()
	if opts == nil {
		opts = &Options{}
	}
	m := &Manifest{
		Prefix:      opts.Prefix,
		Compression: opts.Compression,
		CreatedAt:   time.Now().UTC(),
	}
	if m.Compression == "" {
		m.Compression = CompressionZstd
	}
	if m.Prefix == "" {
		m.Prefix = m.CreatedAt.Format("20060102-150405")
	}
	ext, err := compressionExt(m.Compression)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	for _, file := range files {
		name := filepath.Base(file)
		if seen[name] {
			return nil, fmt.Errorf("snapshot: duplicate file name '%s'", name)
		}
		seen[name] = true

		d, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		cd, err := compress(d, m.Compression)
		if err != nil {
			return nil, fmt.Errorf("snapshot: compressing '%s' failed: %w", file, err)
		}
		fi := FileInfo{
			Name:           name,
			Key:            path.Join(m.Prefix, name+"."+ext),
			Size:           int64(len(d)),
			CompressedSize: int64(len(cd)),
			SHA256:         sha256Hex(d),
		}
		if err = dst.Put(ctx, fi.Key, cd); err != nil {
			return nil, fmt.Errorf("snapshot: storing '%s' failed: %w", fi.Key, err)
		}
		log.Verbosef("snapshot: stored '%s' as '%s', %d => %d bytes\n", file, fi.Key, fi.Size, fi.CompressedSize)
		m.Files = append(m.Files, fi)
	}

	d, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	if err = dst.Put(ctx, ManifestKey(m.Prefix), d); err != nil {
		return nil, fmt.Errorf("snapshot: storing manifest failed: %w", err)
	}
	log.EventWithDuration("snapshot_backup", time.Since(timeStart), "prefix", m.Prefix, "files", len(m.Files), "compression", m.Compression)
	return m, nil
}

// ReadManifest reads manifest of snapshot with a given prefix
func ReadManifest(ctx context.Context, src Destination, prefix string) (*Manifest, error) {
	d, err := src.Get(ctx, ManifestKey(prefix))
	if err != nil {
		return nil, fmt.Errorf("snapshot: reading manifest of '%s' failed: %w", prefix, err)
	}
	var m Manifest
	if err = json.Unmarshal(d, &m); err != nil {
		return nil, fmt.Errorf("snapshot: invalid manifest of '%s': %w", prefix, err)
	}
	if _, err = compressionExt(m.Compression); err != nil {
		return nil, err
	}
	return &m, nil
}

// checkKey returns an error if key is not a clean path under prefix
func checkKey(prefix string, key string) error {
	if path.Clean(key) != key || path.IsAbs(key) || strings.HasPrefix(key, "../") ||
		!strings.HasPrefix(key, prefix+"/") || key == ManifestKey(prefix) {
		return fmt.Errorf("snapshot: key '%s' is not a file of snapshot '%s'", key, prefix)
	}
	return nil
}

// Restore writes files from snapshot described by m into dir.
// All files are fetched and verified before any file in dir is replaced.
func Restore(ctx context.Context, src Destination, m *Manifest, dir string) error {
	timeStart := time.Now()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	files := make([][]byte, len(m.Files))
	for i, fi := range m.Files {
		if fi.Name != filepath.Base(fi.Name) || fi.Name == "." || fi.Name == ".." {
			return fmt.Errorf("snapshot: invalid file name '%s' in manifest", fi.Name)
		}
		if err := checkKey(m.Prefix, fi.Key); err != nil {
			return err
		}
		cd, err := src.Get(ctx, fi.Key)
		if err != nil {
			return fmt.Errorf("snapshot: fetching '%s' failed: %w", fi.Key, err)
		}
		d, err := decompress(cd, m.Compression)
		if err != nil {
			return fmt.Errorf("snapshot: decompressing '%s' failed: %w", fi.Key, err)
		}
		if int64(len(d)) != fi.Size || sha256Hex(d) != fi.SHA256 {
			return fmt.Errorf("snapshot: '%s' doesn't match manifest (size %d, expected %d)", fi.Key, len(d), fi.Size)
		}
		files[i] = d
	}

	for i, fi := range m.Files {
		if err := atomicfile.WriteFile(filepath.Join(dir, fi.Name), files[i]); err != nil {
			return err
		}
	}
	log.EventWithDuration("snapshot_restore", time.Since(timeStart), "prefix", m.Prefix, "files", len(m.Files))
	return nil
}
