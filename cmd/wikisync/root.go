package main

import (
	"io"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/walteh/wikisync/pkg/config"
	"github.com/walteh/wikisync/pkg/log"
	"github.com/walteh/wikisync/pkg/retry"
	"github.com/walteh/wikisync/pkg/session"
	"github.com/walteh/wikisync/pkg/sync"
	"github.com/walteh/wikisync/pkg/wiki"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Flags
	configFile string
	debug      bool
	logFile    string
	parallel   int
	dryRun     bool
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wikisync [root] [endpoint] [username] [password]",
		Short: "synchronize an exported artifact tree to a wiki",
		Long: `wikisync uploads a tree of wiki page files and media files to a
MediaWiki-style HTTP API, skipping artifacts whose remote content already
matches, and rebuilds the sitemap, index and sidebar from what is present.`,
		Args:          cobra.MaximumNArgs(4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (.json, .yaml or .hcl)")
	cmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write structured logs to this rotated file")
	cmd.PersistentFlags().IntVarP(&parallel, "parallel", "p", 0, "override the number of concurrent uploads")
	cmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "diff only, perform no writes")

	return cmd
}

// setupLogging configures zerolog from the flags. With --log-file set,
// structured logs additionally go to a lumberjack-rotated file.
func setupLogging() zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	var w io.Writer = zerolog.NewConsoleWriter(func(cw *zerolog.ConsoleWriter) {
		cw.Out = os.Stderr
	})
	if logFile != "" {
		rotated := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
		}
		w = zerolog.MultiLevelWriter(w, rotated)
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// resolveConfig layers defaults, the config file, positional arguments,
// the environment and flags, in that order.
func resolveConfig(args []string) (*config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, errors.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	if len(args) > 0 {
		cfg.Root = args[0]
	}
	if len(args) > 1 {
		cfg.Endpoint = args[1]
	}
	if len(args) > 2 {
		cfg.Username = args[2]
	}
	if len(args) > 3 {
		cfg.Password = args[3]
	}
	if cfg.Password == "" {
		cfg.Password = os.Getenv("WIKISYNC_PASSWORD")
	}
	if parallel > 0 {
		cfg.Parallel = parallel
	}
	cfg.DryRun = dryRun

	if err := cfg.Validate(); err != nil {
		return nil, errors.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func run(cmd *cobra.Command, args []string) error {
	zlog := setupLogging()
	ui := log.New(os.Stdout, zlog)

	ctx := zlog.WithContext(cmd.Context())
	ctx = log.NewContext(ctx, ui)

	cfg, err := resolveConfig(args)
	if err != nil {
		ui.Error(err.Error())
		return err
	}

	client, err := wiki.New(cfg.Endpoint)
	if err != nil {
		ui.Error(err.Error())
		return err
	}

	sess := session.New(client, session.Credentials{
		Username: cfg.Username,
		Password: cfg.Password,
	}, session.Options{
		TokenTTL: cfg.TokenTTL,
		Retry: retry.Policy{
			MaxAttempts: cfg.MaxAttempts,
			Classify:    wiki.Classify,
		},
	})

	runner := sync.NewRunner(cfg, client, sess)
	counts, err := runner.Run(ctx)
	if err != nil {
		ui.Errorf("sync failed: %v", err)
		return err
	}

	ui.Summary(summaryRows(counts))
	if counts.PageErrors+counts.FileErrors > 0 {
		ui.Warningf("completed with %d errors", counts.PageErrors+counts.FileErrors)
	} else {
		ui.Success("sync complete")
	}
	return nil
}

func summaryRows(c sync.Counts) [][]string {
	itoa := strconv.Itoa
	return [][]string{
		{"", "found", "uploaded", "skipped", "errors"},
		{"pages", itoa(c.PagesFound), itoa(c.PagesUploaded), itoa(c.PagesSkipped), itoa(c.PageErrors)},
		{"files", itoa(c.FilesFound), itoa(c.FilesUploaded), itoa(c.FilesSkipped), itoa(c.FileErrors)},
	}
}
