// Command arcvfs inspects and edits ZIP and TAR archives through their
// virtual file system.
//
// Paths name an archive, optionally followed by members separated with
// "#virtual#/":
//
//	arcvfs ls -r dist.zip
//	arcvfs cat dist.zip#virtual#/lib/inner.tar#virtual#/README
//	arcvfs add dist.zip#virtual#/docs ./notes.txt
//
// Configuration is read from ARCVFS_* environment variables.
package main

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/meigma/arcvfs"
	"github.com/meigma/arcvfs/extractcache"
	"github.com/meigma/arcvfs/internal/config"
	"github.com/meigma/arcvfs/internal/logging"
	"github.com/meigma/arcvfs/registry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "arcvfs:", err)
		os.Exit(1)
	}
	logger := logging.NewOrNop(logging.Config{
		Level:       cfg.LogLevel,
		Development: cfg.LogDevelopment,
		OutputPaths: []string{"stderr"},
	})

	err = run(os.Args[1:], os.Stdout, cfg, logger)
	if err != nil {
		logger.Error("command failed", zap.Strings("args", os.Args[1:]), zap.Error(err))
		fmt.Fprintln(os.Stderr, "arcvfs:", err)
	}
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// app holds what every command needs.
type app struct {
	cfg    *config.Config
	out    io.Writer
	logger *zap.Logger
	reg    *registry.Registry
	cache  *extractcache.Cache
}

func newApp(cfg *config.Config, out io.Writer, logger *zap.Logger) (*app, error) {
	c, err := extractcache.New(cfg.CacheDir,
		extractcache.WithMaxBytes(cfg.CacheMaxBytes),
		extractcache.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	progress := func(ev arcvfs.ProgressEvent) {
		logger.Debug("progress",
			zap.Stringer("stage", ev.Stage),
			zap.String("member", ev.Path),
			zap.Int64("bytes_done", ev.BytesDone),
			zap.Int64("bytes_total", ev.BytesTotal),
			zap.Int("files_done", ev.FilesDone),
			zap.Int("files_total", ev.FilesTotal))
	}
	reg := registry.New(
		registry.WithLogger(logger),
		registry.WithCache(c),
		registry.WithHandlerOptions(
			arcvfs.WithTempDir(cfg.TempDir),
			arcvfs.WithProgress(progress),
		),
	)
	return &app{cfg: cfg, out: out, logger: logger, reg: reg, cache: c}, nil
}

// run executes the command named by args[0].
func run(args []string, out io.Writer, cfg *config.Config, logger *zap.Logger) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		usage(out)
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		usage(out)
		return fmt.Errorf("unknown command %q", args[0])
	}
	a, err := newApp(cfg, out, logger)
	if err != nil {
		return err
	}
	return cmd.run(a, args[1:])
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: arcvfs <command> [flags] <path>...")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, name := range commandNames() {
		fmt.Fprintf(w, "  %-9s %s\n", name, commands[name].help)
	}
}
