// lmkv inspects and edits lmkv stores.
//
// Usage:
//
//	lmkv [flags] <store> <command> [args]
//
// Commands:
//
//	stat                  Show tree statistics of the selected database
//	info                  Show environment information
//	copy <dir>            Write a consistent copy of the store into dir
//	dump <file>           Write every entry of the selected database to file
//	load <file>           Read entries written by dump into the selected database
//	get <key>             Print the value stored under key
//	put <key> <value>     Store value under key
//	del <key> [value]     Delete key, or one value of a dupsort key
//	scan [prefix]         List entries, optionally only those under prefix
//	shell                 Start an interactive shell
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/Giulio2002/lmkv"
)

const usage = `Usage: lmkv [flags] <store> <command> [args]

Commands:
  stat                  Show tree statistics of the selected database
  info                  Show environment information
  copy <dir>            Write a consistent copy of the store into dir
  dump <file>           Write every entry of the selected database to file
  load <file>           Read entries written by dump into the selected database
  get <key>             Print the value stored under key
  put <key> <value>     Store value under key
  del <key> [value]     Delete key, or one value of a dupsort key
  scan [prefix]         List entries, optionally only those under prefix
  shell                 Start an interactive shell

Flags:
`

var (
	errUsage          = errors.New("usage")
	errMissingStore   = errors.New("missing store path")
	errMissingArg     = errors.New("missing argument")
	errUnknownCommand = errors.New("unknown command")
)

// readOnlyCommands never write and open the store read-only.
var readOnlyCommands = map[string]bool{
	"stat": true, "info": true, "copy": true, "dump": true, "get": true, "scan": true,
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

type options struct {
	engine     string
	config     string
	db         string
	dupSort    bool
	reverseKey bool
	readOnly   bool
	noSubdir   bool
	mapSize    int64
	maxDBs     int
	verbose    bool
	zstd       bool
	version    bool
}

func run(args []string, out, errOut io.Writer) error {
	var opts options
	fs := flag.NewFlagSet("lmkv", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.SetInterspersed(false)
	fs.StringVar(&opts.engine, "engine", "", "storage engine (mdbx, bolt)")
	fs.StringVarP(&opts.config, "config", "c", "", "YAML or JSON config file")
	fs.StringVarP(&opts.db, "db", "d", "", "named database (default: the main database)")
	fs.BoolVar(&opts.dupSort, "dupsort", false, "database holds several values per key")
	fs.BoolVar(&opts.reverseKey, "reverse-key", false, "database compares keys from the end")
	fs.BoolVar(&opts.readOnly, "readonly", false, "open the store read-only")
	fs.BoolVar(&opts.noSubdir, "nosubdir", false, "store path is a file prefix, not a directory")
	fs.Int64Var(&opts.mapSize, "map-size", lmkv.DefaultMapSize, "store capacity in bytes")
	fs.IntVar(&opts.maxDBs, "max-dbs", 16, "number of named databases")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "log lifecycle events")
	fs.BoolVarP(&opts.zstd, "zstd", "z", false, "compress dump output with zstd")
	fs.BoolVar(&opts.version, "version", false, "print the version and the registered engines")
	fs.Usage = func() {
		fmt.Fprint(errOut, usage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.version {
		printVersion(out)
		return nil
	}
	if fs.NArg() < 2 {
		fs.Usage()
		if fs.NArg() == 0 {
			return errMissingStore
		}
		return errUsage
	}
	path, cmd, rest := fs.Arg(0), fs.Arg(1), fs.Args()[2:]

	cfg, err := buildConfig(fs, opts, path, readOnlyCommands[cmd])
	if err != nil {
		return err
	}
	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	cfg.Logger = slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))

	env, err := lmkv.Open(cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	db, err := env.OpenDatabase(opts.db, lmkv.DatabaseOptions{
		DupSort:    opts.dupSort,
		ReverseKey: opts.reverseKey,
		NoCreate:   cfg.ReadOnly,
	})
	if err != nil {
		return err
	}

	c := &commander{env: env, db: db, out: out, zstd: opts.zstd}
	switch cmd {
	case "shell":
		return newShell(c).Run()
	default:
		if err := c.exec(cmd, rest); err != nil {
			if errors.Is(err, errUnknownCommand) {
				fs.Usage()
			}
			return err
		}
	}
	return nil
}

func printVersion(w io.Writer) {
	v := lmkv.GetVersionInfo()
	fmt.Fprintf(w, "lmkv %s (engines: %s)\n", v.Describe, strings.Join(v.Engines, ", "))
}

// buildConfig merges the config file, if any, with the flags set on the
// command line. Flags win.
func buildConfig(fs *flag.FlagSet, opts options, path string, readOnly bool) (lmkv.Config, error) {
	cfg := lmkv.DefaultConfig()
	fromFile := opts.config != ""
	if fromFile {
		var err error
		if cfg, err = lmkv.LoadConfig(opts.config); err != nil {
			return lmkv.Config{}, err
		}
	}
	set := func(name string) bool { return !fromFile || fs.Changed(name) }

	cfg.Path = path
	if set("engine") && opts.engine != "" {
		cfg.Engine = opts.engine
	}
	if set("map-size") {
		cfg.MapSize = opts.mapSize
	}
	if set("max-dbs") {
		cfg.MaxDBs = opts.maxDBs
	}
	if set("nosubdir") {
		cfg.NoSubdir = opts.noSubdir
	}
	if set("readonly") {
		cfg.ReadOnly = opts.readOnly
	}
	if readOnly {
		cfg.ReadOnly = true
	}
	if cfg.ReadOnly {
		cfg.NoSync, cfg.NoMetaSync, cfg.MapAsync = false, false, false
	}
	return cfg, nil
}
