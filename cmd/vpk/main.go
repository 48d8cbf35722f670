// Command vpk lists, extracts, creates, and checks Valve VPK v2 archives.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/meigma/vpk"
	"github.com/meigma/vpk/cache"
)

const usage = `usage: vpk [-v] [-cache dir] <command> [flags] <args>

commands:
  list     <index>                      list entries
  extract  [flags] <index> [prefix]     extract entries to a directory
  create   [flags] <src> <dest> <base>  build an archive from a directory
  validate <index>                      check every stored checksum
  inspect  <index>                      summarize layout and file digests
  export   [flags] <index>              write entries as tar, tar.zst, or eStargz
  version  <index>                      print the index format version

<index> is a path or http(s) URL ending in _dir.vpk. With -cache, blocks
read from URLs are kept in dir for later runs.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("vpk", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	verbose := global.Bool("v", false, "log debug output")
	cacheDir := global.String("cache", "", "directory for caching remote reads")
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	c := &cli{ctx: ctx, stdout: stdout, stderr: stderr, logger: logger, cacheDir: *cacheDir}
	cmd, rest := global.Arg(0), global.Args()[1:]
	var err error
	switch cmd {
	case "list":
		err = c.list(rest)
	case "extract":
		err = c.extract(rest)
	case "create":
		err = c.create(rest)
	case "validate":
		err = c.validate(rest)
	case "inspect":
		err = c.inspect(rest)
	case "export":
		err = c.export(rest)
	case "version":
		err = c.version(rest)
	default:
		fmt.Fprintf(stderr, "vpk: unknown command %q\n", cmd)
		global.Usage()
		return 2
	}
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		logger.Error(cmd+" failed", "error", err)
		return 1
	}
	return 0
}

type cli struct {
	ctx    context.Context //nolint:containedctx // one context per invocation
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger

	cacheDir string
}

func (c *cli) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

// open opens a local or remote archive.
func (c *cli) open(index string) (*vpk.Archive, error) {
	opts := []vpk.Option{vpk.WithLogger(c.logger)}
	if strings.HasPrefix(index, "http://") || strings.HasPrefix(index, "https://") {
		if c.cacheDir != "" {
			bc, err := cache.New(c.cacheDir)
			if err != nil {
				return nil, err
			}
			opts = append(opts, vpk.WithBlockCache(bc))
		}
		return vpk.OpenURL(c.ctx, index, opts...)
	}
	return vpk.Open(index, opts...)
}

func needArgs(fs *flag.FlagSet, lo, hi int) error {
	if n := fs.NArg(); n < lo || n > hi {
		return fmt.Errorf("%s: expected %d to %d arguments, got %d", fs.Name(), lo, hi, n)
	}
	return nil
}

func (c *cli) list(args []string) error {
	fs := c.flags("list")
	long := fs.Bool("l", false, "show size, location, and CRC")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := needArgs(fs, 1, 1); err != nil {
		return err
	}
	a, err := c.open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer a.Close()

	for e := range a.Entries() {
		if !*long {
			fmt.Fprintln(c.stdout, e.Key)
			continue
		}
		where := "index"
		if ext, ok := e.Location.(vpk.External); ok && e.Size > uint64(e.PreloadSize) {
			where = fmt.Sprintf("%03d@%d", ext.ArchiveIndex, ext.Offset)
		}
		fmt.Fprintf(c.stdout, "%10d %5d %08x %-12s %s\n", e.Size, e.PreloadSize, e.CRC, where, e.Key)
	}
	return nil
}

func (c *cli) extract(args []string) error {
	fs := c.flags("extract")
	out := fs.String("o", ".", "destination directory")
	overwrite := fs.Bool("overwrite", false, "replace existing files")
	workers := fs.Int("workers", 0, "parallel writers (0 = GOMAXPROCS)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := needArgs(fs, 1, 2); err != nil {
		return err
	}
	a, err := c.open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.CopyDir(c.ctx, *out, fs.Arg(1),
		vpk.CopyWithOverwrite(*overwrite),
		vpk.CopyWithWorkers(*workers),
		vpk.CopyWithProgress(func(ev vpk.ProgressEvent) {
			c.logger.Debug("extracted", "path", ev.Path, "files", ev.FilesDone, "of", ev.FilesTotal)
		}))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "extracted %d files (%d bytes), skipped %d\n", stats.FileCount, stats.TotalBytes, stats.Skipped)
	return nil
}

func (c *cli) create(args []string) error {
	fs := c.flags("create")
	split := fs.Uint64("split", vpk.DefaultSplitThreshold, "source position that starts a new data file")
	embedExt := fs.String("embed", "", "comma-separated extensions stored in the index file")
	preload := fs.Uint("preload", 0, "bytes of each file stored inline in the tree")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := needArgs(fs, 3, 3); err != nil {
		return err
	}
	if *preload > 0xFFFF {
		return fmt.Errorf("create: preload %d exceeds 65535", *preload)
	}

	embed := make(map[string]bool)
	for ext := range strings.SplitSeq(*embedExt, ",") {
		if ext = strings.TrimPrefix(strings.TrimSpace(ext), "."); ext != "" {
			embed[ext] = true
		}
	}
	preloadSize := uint16(*preload) //nolint:gosec // checked above

	src, dest, base := fs.Arg(0), fs.Arg(1), fs.Arg(2)
	err := vpk.CreateFromDir(c.ctx, src, dest, base,
		vpk.CreateWithLogger(c.logger),
		vpk.CreateWithSplitThreshold(*split),
		vpk.CreateWithEmbed(func(name string, _ int64) bool {
			return embed[strings.TrimPrefix(filepath.Ext(name), ".")]
		}),
		vpk.CreateWithPreload(func(string, int64) uint16 { return preloadSize }),
		vpk.CreateWithProgress(func(ev vpk.ProgressEvent) {
			c.logger.Debug("progress", "stage", ev.Stage, "path", ev.Path, "files", ev.FilesDone)
		}))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, filepath.Join(dest, base+"_dir.vpk"))
	return nil
}

func (c *cli) validate(args []string) error {
	fs := c.flags("validate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := needArgs(fs, 1, 1); err != nil {
		return err
	}
	a, err := c.open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.ValidateOther(); err != nil {
		return err
	}
	mismatches, err := a.ValidateArchive(c.ctx)
	if err != nil {
		return err
	}
	for _, m := range mismatches {
		fmt.Fprintf(c.stdout, "mismatch: data file %03d offset %d length %d\n", m.ArchiveIndex, m.StartingOffset, m.Count)
	}
	if len(mismatches) > 0 {
		return fmt.Errorf("%d of %d checksum records failed: %w", len(mismatches), len(a.ArchiveChecksums()), vpk.ErrValidationFailed)
	}
	fmt.Fprintf(c.stdout, "ok: %d entries, %d checksum records\n", a.Len(), len(a.ArchiveChecksums()))
	return nil
}

func (c *cli) inspect(args []string) error {
	fs := c.flags("inspect")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := needArgs(fs, 1, 1); err != nil {
		return err
	}
	a, err := c.open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := a.Inspect(c.ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "entries:    %d (%d preload only)\n", r.Entries, r.PreloadOnly)
	fmt.Fprintf(c.stdout, "preload:    %d bytes\n", r.PreloadBytes)
	fmt.Fprintf(c.stdout, "embedded:   %d bytes\n", r.EmbeddedBytes)
	fmt.Fprintf(c.stdout, "external:   %d bytes\n", r.ExternalBytes)
	fmt.Fprintf(c.stdout, "checksums:  %d\n", r.Checksums)
	fmt.Fprintf(c.stdout, "signed:     %t\n", r.Signed)
	for _, d := range append([]vpk.FileDescriptor{r.Index}, r.Data...) {
		fmt.Fprintf(c.stdout, "%s %12d %s\n", d.Digest, d.Size, d.Annotations[ocispec.AnnotationTitle])
	}
	return nil
}

func (c *cli) export(args []string) (err error) {
	fs := c.flags("export")
	out := fs.String("o", "-", "output file (- for stdout)")
	zst := fs.Bool("zstd", false, "compress the tar stream with zstd")
	stargz := fs.Bool("stargz", false, "write an eStargz layer instead of a tar")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := needArgs(fs, 1, 1); err != nil {
		return err
	}
	if *zst && *stargz {
		return errors.New("export: -zstd and -stargz are exclusive")
	}
	a, err := c.open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer a.Close()

	w := c.stdout
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
		}()
		w = f
	}

	if *stargz {
		res, err := a.WriteStargz(c.ctx, w)
		if err != nil {
			return err
		}
		c.logger.Info("wrote stargz layer", "digest", res.Layer.Digest, "size", res.Layer.Size, "diff_id", res.DiffID)
		return nil
	}
	compression := vpk.CompressionNone
	if *zst {
		compression = vpk.CompressionZstd
	}
	return a.WriteTar(c.ctx, w, vpk.ExportWithCompression(compression))
}

func (c *cli) version(args []string) error {
	fs := c.flags("version")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := needArgs(fs, 1, 1); err != nil {
		return err
	}
	v, err := vpk.DetectVersion(fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, v)
	return nil
}
