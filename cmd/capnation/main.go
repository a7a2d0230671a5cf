package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/kjk/capnation/capserver"
	"github.com/kjk/capnation/capstore"
	"github.com/kjk/capnation/log"
	"github.com/kjk/capnation/snapshot"
	"github.com/tidwall/pretty"
)

var errUsage = errors.New("invalid usage")

const usage = `usage: capnation [flags] <command> [args]

commands:
  serve                       run http server
  save [cap flags]            save a cap, see: capnation save -h
  get <id>                    show cap with a given id
  list                        show all caps
  brand <brand>               show caps of a brand
  brands                      show all brands
  range <from id> <to id>     show caps with ids in range
  count                       show number of caps
  backup                      create a snapshot of data files
  restore <prefix>            restore data files from a snapshot

configuration is read from CAPNATION_* env variables, .env file
(or the file in CAPNATION_ENV_FILE) and flags:
`

func printUsage(fs *flag.FlagSet) {
	fmt.Fprint(fs.Output(), usage)
	fs.PrintDefaults()
}

func main() {
	envFile := os.Getenv(envPrefix + "_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	cfg, err := loadConfig(envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
	fs := flag.CommandLine
	cfg.registerFlags(fs)
	fs.Usage = func() { printUsage(fs) }
	flag.Parse()

	log.Init(&log.Config{Dir: cfg.LogDir, Verbose: cfg.Verbose})
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = run(ctx, cfg, flag.Args(), os.Stdout)
	if errors.Is(err, errUsage) {
		printUsage(fs)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		log.Close()
		os.Exit(1)
	}
}

func printJSON(w io.Writer, v any) error {
	d, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(pretty.Pretty(d))
	return err
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("'%s' is not a valid id", s)
	}
	return id, nil
}

func run(ctx context.Context, cfg *Config, args []string, w io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	store := cfg.newStore()
	if err := capstore.OpenStore(store); err != nil {
		return err
	}
	cmd, args := args[0], args[1:]
	switch cmd {
	case "serve":
		srv := capserver.New(store)
		return srv.ListenAndServe(ctx, cfg.HTTPAddr)

	case "save":
		c, err := parseSaveArgs(args, w)
		if err != nil {
			return err
		}
		if err = capserver.ValidateCap(c); err != nil {
			return err
		}
		saved, err := store.Save(*c)
		if err != nil {
			return err
		}
		return printJSON(w, saved)

	case "get":
		if len(args) != 1 {
			return errUsage
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		c, err := store.FindByID(id)
		if err != nil {
			return err
		}
		return printJSON(w, c)

	case "list":
		caps, err := store.FindAll()
		if err != nil {
			return err
		}
		return printJSON(w, caps)

	case "brand":
		if len(args) != 1 {
			return errUsage
		}
		caps, err := store.FindByBrand(args[0])
		if err != nil {
			return err
		}
		return printJSON(w, caps)

	case "brands":
		brands, err := store.Brands()
		if err != nil {
			return err
		}
		return printJSON(w, brands)

	case "range":
		if len(args) != 2 {
			return errUsage
		}
		from, err := parseID(args[0])
		if err != nil {
			return err
		}
		to, err := parseID(args[1])
		if err != nil {
			return err
		}
		caps, err := store.FindByIDRange(from, to)
		if err != nil {
			return err
		}
		return printJSON(w, caps)

	case "count":
		n, err := store.Count()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%d\n", n)
		return err

	case "backup":
		dst, err := snapshotDestination(ctx, cfg)
		if err != nil {
			return err
		}
		var m *snapshot.Manifest
		err = store.WithFilesLocked(func(paths []string) error {
			opts := &snapshot.Options{Compression: cfg.SnapshotCompression}
			m, err = snapshot.Backup(ctx, paths, dst, opts)
			return err
		})
		if err != nil {
			return err
		}
		return printJSON(w, m)

	case "restore":
		if len(args) != 1 {
			return errUsage
		}
		dst, err := snapshotDestination(ctx, cfg)
		if err != nil {
			return err
		}
		m, err := snapshot.ReadManifest(ctx, dst, args[0])
		if err != nil {
			return err
		}
		if err = snapshot.Restore(ctx, dst, m, cfg.DataDir); err != nil {
			return err
		}
		// forget anything loaded before files were replaced
		if err = capstore.OpenStore(store); err != nil {
			return err
		}
		n, err := store.Count()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "restored %d files from '%s', %d caps\n", len(m.Files), m.Prefix, n)
		return err
	}
	return fmt.Errorf("%w: unknown command '%s'", errUsage, cmd)
}

func parseSaveArgs(args []string, w io.Writer) (*capstore.Cap, error) {
	var (
		c                   capstore.Cap
		style, size, gender string
	)
	fs := flag.NewFlagSet("save", flag.ContinueOnError)
	fs.SetOutput(w)
	fs.Int64Var(&c.ID, "id", 0, "id of the cap, must be unique")
	fs.StringVar(&c.Brand, "brand", "", "brand")
	fs.StringVar(&style, "style", "", "style e.g. BASEBALL_CAP")
	fs.StringVar(&c.Color, "color", "", "color")
	fs.StringVar(&c.Collaboration, "collab", "", "collaboration (optional)")
	fs.Float64Var(&c.Price, "price", 0, "price")
	fs.StringVar(&size, "size", "", "size e.g. LARGE")
	fs.StringVar(&gender, "gender", "", "MALE or FEMALE (optional)")
	fs.IntVar(&c.Stock, "stock", 0, "number of caps in stock")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}
	c.Style = capstore.Style(style)
	c.Size = capstore.Size(size)
	c.Gender = capstore.Gender(gender)
	return &c, nil
}

func snapshotDestination(ctx context.Context, cfg *Config) (snapshot.Destination, error) {
	if cfg.SnapshotEndpoint == "" {
		return &snapshot.DirDestination{Dir: cfg.SnapshotDir}, nil
	}
	mc := &snapshot.MinioConfig{
		Access:   cfg.SnapshotAccess,
		Secret:   cfg.SnapshotSecret,
		Bucket:   cfg.SnapshotBucket,
		Endpoint: cfg.SnapshotEndpoint,
		Region:   cfg.SnapshotRegion,
		Insecure: cfg.SnapshotInsecure,
	}
	return snapshot.NewMinioDestination(ctx, mc)
}
