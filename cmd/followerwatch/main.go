package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ianfoo/follower-watch/internal/config"
	"github.com/ianfoo/follower-watch/internal/statusapi"
)

var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

type commandLineFlag struct {
	name, shorthand, usage string
	key                    string
}

var watchFlags = []commandLineFlag{
	{name: "account", shorthand: "a", key: "account",
		usage: "account to watch (env FOLLOWWATCH_ACCOUNT or TIKTOK_USERNAME)"},
	{name: "target", shorthand: "t", key: "target",
		usage: "follower count that earns a congratulation (env TARGET_FOLLOWERS)"},
	{name: "milestones", key: "milestones",
		usage: "comma separated milestone counts (default 100,500,1000,5000)"},
	{name: "interval", shorthand: "i", key: "interval",
		usage: "how often to check, at least 1s (default 10s)"},
	{name: "schedule", key: "schedule",
		usage: "cron expression to check on instead of a fixed interval"},
	{name: "source", shorthand: "s", key: "source.kind",
		usage: "where the count comes from: page, json or browser (default page)"},
	{name: "source-url", key: "source.url",
		usage: "URL template for the count source; {account} is replaced"},
	{name: "notifier", shorthand: "n", key: "notifier",
		usage: "comma separated notifiers: telegram, twilio, email, slack, discord, log"},
	{name: "state", key: "state",
		usage: "state file, or a .db / sqlite: path for SQLite (default followers.json)"},
	{name: "addr", key: "addr",
		usage: "address for the status server, empty to disable (default :4040)"},
	{name: "on-fetch-failure", key: "on_fetch_failure",
		usage: "what a failed fetch does to the cycle: skip or zero (default skip)"},
}

func newRootCmd() *cobra.Command {
	v := config.NewViper()
	var configFile, envFile string

	load := func(cmd *cobra.Command) (config.Config, *zap.SugaredLogger, error) {
		if err := config.LoadDotEnv(envFiles(envFile)...); err != nil {
			return config.Config{}, nil, err
		}
		cfg, err := config.Load(v, configFile)
		if err != nil {
			return config.Config{}, nil, err
		}
		log, err := logger(cfg)
		if err != nil {
			return config.Config{}, nil, err
		}
		// Past this point a failure is not a usage problem.
		cmd.SilenceUsage = true
		return cfg, log, nil
	}

	root := &cobra.Command{
		Use:   "followerwatch",
		Short: "Watch an account's follower count and send messages as it grows",
		Long: `followerwatch checks the follower count of one account on a schedule and
sends a message when the count goes up, when it reaches the target, and when it
passes a milestone. The last count is kept in a state file between runs.

Every setting can also come from the environment, a .env file or a YAML config
file given with --config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()
			return runWatch(cmd.Context(), cfg, log)
		},
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "file to load environment variables from (default .env)")
	for _, f := range watchFlags {
		root.PersistentFlags().StringP(f.name, f.shorthand, "", f.usage)
		// BindPFlag only fails for a nil flag.
		_ = v.BindPFlag(f.key, root.PersistentFlags().Lookup(f.name))
	}

	root.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Run a single check and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()
			return runOnce(cmd.Context(), cfg, log, cmd)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "followerwatch", version)
		},
	})
	return root
}

func envFiles(f string) []string {
	if f == "" {
		return nil
	}
	return []string{f}
}

func logger(cfg config.Config) (*zap.SugaredLogger, error) {
	var (
		log *zap.Logger
		err error
	)
	if cfg.Production() {
		log, err = zap.NewProduction()
	} else {
		log, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, err
	}
	return log.Sugar(), nil
}

func runWatch(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := setup(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.close()

	if cfg.Addr != "" {
		srv := statusapi.Start(cfg.Addr, app.watcher, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}
	log.Infow("starting", "version", version, "config", cfg.String())
	return app.watcher.Watch(ctx)
}

func runOnce(ctx context.Context, cfg config.Config, log *zap.SugaredLogger, cmd *cobra.Command) error {
	app, err := setup(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.close()

	report, err := app.watcher.Check(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d followers (was %d), %d notification(s) sent\n",
		cfg.Account, report.Current, report.Previous, report.Sent)
	return nil
}
