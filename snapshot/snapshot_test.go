package snapshot

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/assert"
	"github.com/kjk/capnation/require"
)

func writeFiles(t *testing.T, dir string, files map[string]string) []string {
	var paths []string
	for name, s := range files {
		path := filepath.Join(dir, name)
		assert.NoError(t, os.WriteFile(path, []byte(s), 0644))
		paths = append(paths, path)
	}
	return paths
}

func TestCompressRoundTrip(t *testing.T) {
	d := bytes.Repeat([]byte("1,BASEBALL_CAP,Black,adidas,-,45000.0,LARGE,-,3\n"), 100)
	for _, c := range []string{CompressionZstd, CompressionBrotli} {
		cd, err := compress(d, c)
		assert.NoError(t, err)
		assert.True(t, len(cd) < len(d), "%s", c)
		d2, err := decompress(cd, c)
		assert.NoError(t, err)
		assert.Equal(t, d, d2)
	}
	_, err := compress(d, "lz4")
	assert.Error(t, err)
	_, err = decompress(d, "gzip")
	assert.Error(t, err)
}

func TestBackupRestore(t *testing.T) {
	ctx := context.Background()
	files := map[string]string{
		"caps.txt":        "\n1,BASEBALL_CAP,Black,adidas,-,45000.0,LARGE,-,3\n2,VISOR,Red,nike,-,10.0,SMALL,-,1",
		"cap_index.txt":   "1,0\n2,1",
		"brand_index.txt": "",
	}
	for _, c := range []string{CompressionZstd, CompressionBrotli} {
		srcDir := t.TempDir()
		paths := writeFiles(t, srcDir, files)
		dst := &DirDestination{Dir: t.TempDir()}

		m, err := Backup(ctx, paths, dst, &Options{Prefix: "backups/one", Compression: c})
		assert.NoError(t, err)
		assert.Equal(t, "backups/one", m.Prefix)
		assert.Equal(t, c, m.Compression)
		assert.Equal(t, 3, len(m.Files))
		for _, fi := range m.Files {
			assert.True(t, strings.HasPrefix(fi.Key, "backups/one/"+fi.Name+"."), "%s", fi.Key)
			_, err := os.Stat(filepath.Join(dst.Dir, filepath.FromSlash(fi.Key)))
			assert.NoError(t, err)
		}

		m2, err := ReadManifest(ctx, dst, "backups/one")
		assert.NoError(t, err)
		assert.Equal(t, m.Files, m2.Files)
		assert.True(t, m.CreatedAt.Equal(m2.CreatedAt))

		restoreDir := filepath.Join(t.TempDir(), "restored")
		assert.NoError(t, Restore(ctx, dst, m2, restoreDir))
		for name, s := range files {
			d, err := os.ReadFile(filepath.Join(restoreDir, name))
			assert.NoError(t, err)
			assert.Equal(t, s, string(d), "%s %s", c, name)
		}
		// only restored files, no leftover temporary files
		entries, err := os.ReadDir(restoreDir)
		assert.NoError(t, err)
		assert.Equal(t, 3, len(entries))
	}
}

func TestBackupDefaults(t *testing.T) {
	paths := writeFiles(t, t.TempDir(), map[string]string{"a.txt": "a"})
	dst := &DirDestination{Dir: t.TempDir()}
	m, err := Backup(context.Background(), paths, dst, nil)
	assert.NoError(t, err)
	assert.Equal(t, CompressionZstd, m.Compression)
	assert.NotEqual(t, "", m.Prefix)
	assert.Equal(t, "a.txt", m.Files[0].Name)
	assert.True(t, strings.HasSuffix(m.Files[0].Key, ".zst"))
}

func TestBackupErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	paths := writeFiles(t, dir, map[string]string{"a.txt": "a"})
	dst := &DirDestination{Dir: t.TempDir()}

	_, err := Backup(ctx, paths, dst, &Options{Compression: "lz4"})
	assert.Error(t, err)

	sub := filepath.Join(dir, "sub")
	assert.NoError(t, os.Mkdir(sub, 0755))
	paths = append(paths, writeFiles(t, sub, map[string]string{"a.txt": "b"})...)
	_, err = Backup(ctx, paths, dst, nil)
	assert.Error(t, err)

	_, err = Backup(ctx, []string{filepath.Join(dir, "missing.txt")}, dst, nil)
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestRestoreVerifies(t *testing.T) {
	ctx := context.Background()
	paths := writeFiles(t, t.TempDir(), map[string]string{"caps.txt": "saved", "cap_index.txt": "1,0"})
	dst := &DirDestination{Dir: t.TempDir()}
	m, err := Backup(ctx, paths, dst, &Options{Prefix: "p"})
	assert.NoError(t, err)

	restoreDir := t.TempDir()
	existing := writeFiles(t, restoreDir, map[string]string{"caps.txt": "current"})

	// replace one stored file with valid data that doesn't match the manifest
	cd, err := compress([]byte("tampered"), m.Compression)
	assert.NoError(t, err)
	assert.NoError(t, dst.Put(ctx, m.Files[1].Key, cd))
	err = Restore(ctx, dst, m, restoreDir)
	assert.Error(t, err)

	// nothing in restoreDir was replaced
	d, err := os.ReadFile(existing[0])
	assert.NoError(t, err)
	assert.Equal(t, "current", string(d))
	entries, err := os.ReadDir(restoreDir)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(entries))

	_, err = ReadManifest(ctx, dst, "no-such-prefix")
	require.ErrorIs(t, err, fs.ErrNotExist)

	bad := *m
	bad.Files = []FileInfo{{Name: "../escape.txt", Key: m.Files[0].Key}}
	assert.Error(t, Restore(ctx, dst, &bad, restoreDir))
}

func TestRestoreRejectsForeignKeys(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	dst := &DirDestination{Dir: filepath.Join(root, "snapshots")}
	paths := writeFiles(t, t.TempDir(), map[string]string{"caps.txt": "saved"})
	m, err := Backup(ctx, paths, dst, &Options{Prefix: "p"})
	assert.NoError(t, err)
	// a valid object of another snapshot
	_, err = Backup(ctx, paths, dst, &Options{Prefix: "other"})
	assert.NoError(t, err)
	// and one outside of snapshot dir
	cd, err := compress([]byte("saved"), m.Compression)
	assert.NoError(t, err)
	assert.NoError(t, os.WriteFile(filepath.Join(root, "secret.zst"), cd, 0644))

	restoreDir := t.TempDir()
	for _, key := range []string{"../secret.zst", "p/../../secret.zst", "/secret.zst", "other/caps.txt.zst", "p/manifest.json", "p"} {
		bad := *m
		bad.Files = []FileInfo{m.Files[0]}
		bad.Files[0].Key = key
		assert.Error(t, Restore(ctx, dst, &bad, restoreDir), "%s", key)
	}
	entries, err := os.ReadDir(restoreDir)
	assert.NoError(t, err)
	assert.Equal(t, 0, len(entries))

	assert.NoError(t, Restore(ctx, dst, m, restoreDir))
}

func TestDirDestinationStaysInDir(t *testing.T) {
	ctx := context.Background()
	dst := &DirDestination{Dir: filepath.Join(t.TempDir(), "snapshots")}
	assert.Error(t, dst.Put(ctx, "../x", []byte("x")))
	_, err := dst.Get(ctx, "../x")
	assert.Error(t, err)
	_, err = dst.Get(ctx, "a/../../x")
	assert.Error(t, err)

	assert.NoError(t, dst.Put(ctx, "p/a.zst", []byte("x")))
	d, err := dst.Get(ctx, "p/a.zst")
	assert.NoError(t, err)
	assert.Equal(t, "x", string(d))
}

func TestNewMinioDestinationConfig(t *testing.T) {
	ctx := context.Background()
	_, err := NewMinioDestination(ctx, nil)
	assert.Error(t, err)
	_, err = NewMinioDestination(ctx, &MinioConfig{Access: "a", Secret: "s", Bucket: "b"})
	assert.Error(t, err)
}

func TestContentTypeForKey(t *testing.T) {
	assert.Equal(t, "application/json", contentTypeForKey("p/manifest.json"))
	assert.Equal(t, "application/octet-stream", contentTypeForKey("p/caps.txt.zst"))
}
