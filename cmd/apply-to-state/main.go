// Command apply-to-state replays a captured sync message stream against
// a local state database: ident messages record the client's file
// identity, download messages integrate remote changesets into history,
// and upload messages are applied transactionally, one write
// transaction per changeset.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/docopt/docopt-go"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/i5heu/ouroboros-sync/internal/apply"
	"github.com/i5heu/ouroboros-sync/internal/cliconfig"
	"github.com/i5heu/ouroboros-sync/internal/history"
	"github.com/i5heu/ouroboros-sync/internal/message"
	"github.com/i5heu/ouroboros-sync/internal/statedb"
	"github.com/i5heu/ouroboros-sync/internal/wire"
)

const version = "0.1.0"

const usage = `apply-to-state

Usage:
    apply-to-state [-r <PATH-TO-REALM>] [-i <PATH-TO-MESSAGES>] [options]
    apply-to-state -v
    apply-to-state -h

Options:
    -h, --help                    Usage.
    -e, --encryption-key <path>   Path to a file containing exactly 64 bytes
                                   used as the database encryption key.
    -r, --realm <path>            Database file path (created if missing).
    -i, --input <path>            Path to captured message stream.
    -c, --config <path>           Optional YAML file of default option values.
    --verbose                     Log all levels to stderr; default is error only.
    -v, --version                 Print release identifier.
`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if v, _ := opts.Bool("--version"); v {
		fmt.Println(version)
		return
	}

	defaults, err := cliconfig.Load(optString(opts, "--config"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading --config: %v\n", err)
		os.Exit(1)
	}

	realmPath := firstNonEmpty(optString(opts, "--realm"), defaults.Realm)
	inputPath := firstNonEmpty(optString(opts, "--input"), defaults.Input)
	keyPath := firstNonEmpty(optString(opts, "--encryption-key"), defaults.EncryptionKey)
	verbose, _ := opts.Bool("--verbose")
	verbose = verbose || defaults.Verbose

	if realmPath == "" {
		fmt.Fprintln(os.Stderr, "missing path to realm to apply changesets to")
		os.Exit(1)
	}
	if inputPath == "" {
		fmt.Fprintln(os.Stderr, "missing path to messages to apply to realm")
		os.Exit(1)
	}

	logger := newLogger(verbose)

	input, err := os.ReadFile(inputPath)
	if err != nil {
		logger.Error("error loading input stream", "path", inputPath, "error", err)
		os.Exit(1)
	}

	db, err := statedb.Open(statedb.Config{
		Path:              realmPath,
		EncryptionKeyPath: keyPath,
		MinimumFreeGB:     defaults.MinimumFreeGB,
		Logger:            newBadgerLogger(verbose),
	})
	if err != nil {
		logger.Error("error opening state database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	hist := history.New(db.Badger, newBadgerLogger(verbose))
	applier := apply.New(db.Badger, newBadgerLogger(verbose))

	if err := run(wire.NewCursor(input), hist, applier, logger); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

// run drives the cursor to exhaustion, dispatching each parsed message
// by variant. A parse failure stops the loop and is returned at once.
// Errors from setting the file ident, reading progress, integrating a
// download, or applying an upload changeset are not fatal: they
// accumulate via multierr, processing continues, and the combined error
// is returned once the stream is exhausted (nil if there were none).
func run(c wire.Cursor, hist *history.Engine, applier *apply.Applier, logger *slog.Logger) error {
	var errs error

	for !c.Empty() {
		msg, rest, err := message.Parse(c, logger)
		if err != nil {
			logger.Error("could not find message in input file", "error", err)
			return err
		}
		c = rest

		switch msg.Kind {
		case message.KindIdent:
			if err := hist.SetClientFileIdent(msg.Ident.FileIdent, true); err != nil {
				logger.Error("error setting client file ident", "error", err)
				errs = multierr.Append(errs, err)
			}

		case message.KindDownload:
			progress, err := hist.Progress()
			if err != nil {
				logger.Error("error reading sync progress", "error", err)
				errs = multierr.Append(errs, err)
				continue
			}
			progress.Upload = msg.Download.Progress.Upload
			_, integrationErr := hist.IntegrateServerChangesets(
				progress, msg.Download.DownloadableBytes, msg.Download.Changesets)
			if integrationErr != nil {
				logger.Error("integration error", "kind", integrationErr.Kind, "message", integrationErr.Message)
				errs = multierr.Append(errs, integrationErr)
			}

		case message.KindUpload:
			for _, cs := range msg.Upload.Changesets {
				if _, err := applier.Apply(cs); err != nil {
					logger.Error("error applying local changeset", "version", cs.Version, "error", err)
					errs = multierr.Append(errs, err)
				}
			}
		}
	}

	return errs
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelError
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newBadgerLogger(verbose bool) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.ErrorLevel)
	}
	return l
}

func optString(opts docopt.Opts, name string) string {
	v, ok := opts[name]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
