package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/kjk/capnation/capstore"
	"github.com/kjk/capnation/snapshot"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

const envPrefix = "CAPNATION"

// Config is read from CAPNATION_* env variables and .env file
// and can be overridden with command-line flags
type Config struct {
	DataDir        string
	CapsFile       string
	CapIndexFile   string
	BrandIndexFile string
	TreeOrder      int
	SyncWrite      bool

	LogDir   string
	Verbose  bool
	HTTPAddr string

	// if SnapshotEndpoint is set, snapshots go to s3-compatible storage,
	// otherwise to SnapshotDir
	SnapshotDir         string
	SnapshotEndpoint    string
	SnapshotBucket      string
	SnapshotAccess      string
	SnapshotSecret      string
	SnapshotRegion      string
	SnapshotInsecure    bool
	SnapshotCompression string
}

// configKeys maps config keys to defaults. Each key is read from env
// variable CAPNATION_<KEY> or the same name in .env file, env wins.
var configKeys = map[string]any{
	"DATA_DIR":             "data",
	"CAPS_FILE":            capstore.DefaultHeapFileName,
	"CAP_INDEX_FILE":       capstore.DefaultIndexFileName,
	"BRAND_INDEX_FILE":     capstore.DefaultBrandIndexFileName,
	"TREE_ORDER":           capstore.DefaultTreeOrder,
	"SYNC_WRITE":           false,
	"LOG_DIR":              "",
	"VERBOSE":              false,
	"HTTP_ADDR":            "localhost:8080",
	"SNAPSHOT_DIR":         "snapshots",
	"SNAPSHOT_ENDPOINT":    "",
	"SNAPSHOT_BUCKET":      "",
	"SNAPSHOT_ACCESS":      "",
	"SNAPSHOT_SECRET":      "",
	"SNAPSHOT_REGION":      "",
	"SNAPSHOT_INSECURE":    false,
	"SNAPSHOT_COMPRESSION": snapshot.CompressionZstd,
}

func configKey(name string) string {
	return strings.ToLower(envPrefix + "_" + name)
}

// newViper reads envFile (if not empty and exists) in KEY=value format
// and binds CAPNATION_* env variables
func newViper(envFile string) (*viper.Viper, error) {
	v := viper.New()
	for name, def := range configKeys {
		v.SetDefault(configKey(name), def)
	}
	v.AutomaticEnv()
	if envFile == "" {
		return v, nil
	}
	if _, err := os.Stat(envFile); errors.Is(err, fs.ErrNotExist) {
		return v, nil
	}
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file '%s' failed: %w", envFile, err)
	}
	return v, nil
}

type configReader struct {
	v   *viper.Viper
	err error
}

func (r *configReader) getString(name string) string {
	return r.v.GetString(configKey(name))
}

func (r *configReader) getInt(name string) int {
	n, err := cast.ToIntE(r.v.Get(configKey(name)))
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("invalid %s_%s '%v': %w", envPrefix, name, r.v.Get(configKey(name)), err)
	}
	return n
}

func (r *configReader) getBool(name string) bool {
	b, err := cast.ToBoolE(r.v.Get(configKey(name)))
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("invalid %s_%s '%v': %w", envPrefix, name, r.v.Get(configKey(name)), err)
	}
	return b
}

// loadConfig builds Config from env variables and envFile
func loadConfig(envFile string) (*Config, error) {
	v, err := newViper(envFile)
	if err != nil {
		return nil, err
	}
	r := &configReader{v: v}
	c := &Config{
		DataDir:             r.getString("DATA_DIR"),
		CapsFile:            r.getString("CAPS_FILE"),
		CapIndexFile:        r.getString("CAP_INDEX_FILE"),
		BrandIndexFile:      r.getString("BRAND_INDEX_FILE"),
		TreeOrder:           r.getInt("TREE_ORDER"),
		SyncWrite:           r.getBool("SYNC_WRITE"),
		LogDir:              r.getString("LOG_DIR"),
		Verbose:             r.getBool("VERBOSE"),
		HTTPAddr:            r.getString("HTTP_ADDR"),
		SnapshotDir:         r.getString("SNAPSHOT_DIR"),
		SnapshotEndpoint:    r.getString("SNAPSHOT_ENDPOINT"),
		SnapshotBucket:      r.getString("SNAPSHOT_BUCKET"),
		SnapshotAccess:      r.getString("SNAPSHOT_ACCESS"),
		SnapshotSecret:      r.getString("SNAPSHOT_SECRET"),
		SnapshotRegion:      r.getString("SNAPSHOT_REGION"),
		SnapshotInsecure:    r.getBool("SNAPSHOT_INSECURE"),
		SnapshotCompression: r.getString("SNAPSHOT_COMPRESSION"),
	}
	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

// registerFlags uses current values as defaults so that flags
// override env variables
func (c *Config) registerFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.DataDir, "data-dir", c.DataDir, "directory with data files")
	fs.StringVar(&c.CapsFile, "caps-file", c.CapsFile, "name of caps file")
	fs.StringVar(&c.CapIndexFile, "cap-index-file", c.CapIndexFile, "name of primary index file")
	fs.StringVar(&c.BrandIndexFile, "brand-index-file", c.BrandIndexFile, "name of brand index file")
	fs.IntVar(&c.TreeOrder, "tree-order", c.TreeOrder, "order of B+ tree index")
	fs.BoolVar(&c.SyncWrite, "sync-write", c.SyncWrite, "fsync after every append")
	fs.StringVar(&c.LogDir, "log-dir", c.LogDir, "directory for log files, no log files if empty")
	fs.BoolVar(&c.Verbose, "verbose", c.Verbose, "verbose logging")
	fs.StringVar(&c.HTTPAddr, "addr", c.HTTPAddr, "http address for serve")
	fs.StringVar(&c.SnapshotDir, "snapshot-dir", c.SnapshotDir, "directory for snapshots")
	fs.StringVar(&c.SnapshotEndpoint, "snapshot-endpoint", c.SnapshotEndpoint, "s3 endpoint for snapshots")
	fs.StringVar(&c.SnapshotBucket, "snapshot-bucket", c.SnapshotBucket, "s3 bucket for snapshots")
	fs.StringVar(&c.SnapshotCompression, "snapshot-compression", c.SnapshotCompression, "zstd or br")
}

func (c *Config) newStore() *capstore.Store {
	return &capstore.Store{
		DataDir:            c.DataDir,
		HeapFileName:       c.CapsFile,
		IndexFileName:      c.CapIndexFile,
		BrandIndexFileName: c.BrandIndexFile,
		TreeOrder:          c.TreeOrder,
		SyncWrite:          c.SyncWrite,
	}
}

