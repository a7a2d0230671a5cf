package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kjk/capnation/atomicfile"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Destination stores snapshot objects under slash-separated keys.
// Get of a missing key returns an error wrapping fs.ErrNotExist.
type Destination interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

var (
	_ Destination = &DirDestination{}
	_ Destination = &MinioDestination{}
)

// DirDestination stores objects as files in a local directory
type DirDestination struct {
	Dir string
}

func (d *DirDestination) path(key string) (string, error) {
	p := filepath.FromSlash(key)
	if !filepath.IsLocal(p) {
		return "", fmt.Errorf("snapshot: key '%s' is outside of '%s'", key, d.Dir)
	}
	return filepath.Join(d.Dir, p), nil
}

func (d *DirDestination) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := d.path(key)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return atomicfile.WriteFile(path, data)
}

func (d *DirDestination) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := d.path(key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

type MinioConfig struct {
	Access   string
	Secret   string
	Bucket   string
	Endpoint string
	Region   string
	// use http instead of https, e.g. for local minio server
	Insecure     bool
	RequestTrace io.Writer
}

// MinioDestination stores objects in S3-compatible storage
type MinioDestination struct {
	Client *minio.Client
	Bucket string
}

// NewMinioDestination connects to the server and verifies the bucket exists
func NewMinioDestination(ctx context.Context, config *MinioConfig) (*MinioDestination, error) {
	if config == nil {
		return nil, errors.New("must provide config")
	}
	c := config
	if c.Access == "" || c.Secret == "" || c.Bucket == "" || c.Endpoint == "" {
		return nil, errors.New("must provide all of access, secret, bucket and endpoint in config")
	}

	mc, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Access, c.Secret, ""),
		Region: c.Region,
		Secure: !c.Insecure,
	})
	if err != nil {
		return nil, err
	}
	if c.RequestTrace != nil {
		mc.TraceOn(c.RequestTrace)
	}
	found, err := mc.BucketExists(ctx, c.Bucket)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("bucket '%s' doesn't exist", c.Bucket)
	}
	return &MinioDestination{
		Client: mc,
		Bucket: c.Bucket,
	}, nil
}

func contentTypeForKey(key string) string {
	if strings.HasSuffix(key, ".json") {
		return "application/json"
	}
	return "application/octet-stream"
}

func (m *MinioDestination) Put(ctx context.Context, key string, data []byte) error {
	opts := minio.PutObjectOptions{
		ContentType: contentTypeForKey(key),
	}
	_, err := m.Client.PutObject(ctx, m.Bucket, key, bytes.NewReader(data), int64(len(data)), opts)
	return err
}

func (m *MinioDestination) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.Client.GetObject(ctx, m.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	d, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("'%s' in bucket '%s': %w", key, m.Bucket, fs.ErrNotExist)
		}
		return nil, err
	}
	return d, nil
}
