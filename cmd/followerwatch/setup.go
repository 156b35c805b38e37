package main

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	followerwatch "github.com/ianfoo/follower-watch"
	"github.com/ianfoo/follower-watch/internal/config"
	"github.com/ianfoo/follower-watch/notify"
	"github.com/ianfoo/follower-watch/source"
	"github.com/ianfoo/follower-watch/sqlitestore"
)

type app struct {
	watcher *followerwatch.Watcher
	closers []io.Closer
}

func (a *app) close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i].Close())
	}
	return err
}

// setup builds the watcher and everything it depends on from cfg.
func setup(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (*app, error) {
	a := &app{}
	src, err := newSource(cfg, log)
	if err != nil {
		return nil, err
	}
	if c, ok := src.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	notifier, err := newNotifier(cfg, log)
	if err != nil {
		a.close()
		return nil, err
	}
	store, err := newStore(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	policy, err := followerwatch.ParseFailurePolicy(cfg.OnFetchFailure)
	if err != nil {
		a.close()
		return nil, err
	}
	messages, err := followerwatch.NewMessages(cfg.Messages)
	if err != nil {
		a.close()
		return nil, err
	}

	options := []followerwatch.Option{
		followerwatch.WithLogger(log),
		followerwatch.WithPlatform(cfg.Platform),
		followerwatch.WithMilestones(cfg.Milestones),
		followerwatch.WithFailurePolicy(policy),
		followerwatch.WithTimeouts(cfg.FetchTimeout, cfg.NotifyTimeout),
		followerwatch.WithMessages(messages),
	}
	if cfg.Schedule != "" {
		options = append(options, followerwatch.WithSchedule(cfg.Schedule))
	}
	a.watcher, err = followerwatch.NewWatcher(
		cfg.Account,
		cfg.Target,
		cfg.Interval,
		src,
		notifier,
		store,
		options...)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func newSource(cfg config.Config, log *zap.SugaredLogger) (followerwatch.CountSource, error) {
	sc := cfg.Source
	opts := []source.Option{
		source.WithLogger(log),
		source.WithTimeout(cfg.FetchTimeout),
		source.WithMinSpacing(sc.MinSpacing),
	}
	if sc.UserAgent != "" {
		opts = append(opts, source.WithUserAgent(sc.UserAgent))
	}
	if sc.APIKey != "" {
		opts = append(opts, source.WithHeader(sc.APIKeyHeader, sc.APIKey))
	}
	switch sc.Kind {
	case config.SourcePage:
		return source.NewPage(cfg.Account, sc.URL, sc.Pattern, opts...)
	case config.SourceJSON:
		return source.NewJSON(cfg.Account, sc.URL, sc.Query, opts...)
	case config.SourceBrowser:
		var bopts []source.BrowserOption
		if sc.InstallBrowser {
			bopts = append(bopts, source.WithInstall())
		}
		return source.NewBrowser(cfg.Account, sc.URL, sc.Selector, opts, bopts...)
	default:
		return nil, errors.Errorf("unknown source %q", sc.Kind)
	}
}

// newNotifier returns the single configured notifier, or a notify.Multi
// delivering to all of them.
func newNotifier(cfg config.Config, log *zap.SugaredLogger) (followerwatch.Notifier, error) {
	var senders notify.Multi
	for _, name := range cfg.Notifiers {
		s, err := newSender(name, cfg, log)
		if err != nil {
			return nil, errors.Wrapf(err, "error setting up %s notifier", name)
		}
		senders = append(senders, s)
	}
	switch len(senders) {
	case 0:
		return nil, errors.New("no notifiers configured")
	case 1:
		return senders[0], nil
	default:
		return senders, nil
	}
}

func newSender(name string, cfg config.Config, log *zap.SugaredLogger) (notify.Sender, error) {
	switch name {
	case config.NotifierTelegram:
		return notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID,
			notify.WithTelegramLogger(log))
	case config.NotifierTwilio:
		return notify.NewTwilioSMSSender(
			cfg.Twilio.AccountSID,
			cfg.Twilio.AuthToken,
			cfg.Twilio.From,
			cfg.Twilio.To,
			notify.WithTwilioLogger(log))
	case config.NotifierEmail:
		return notify.NewEmail(cfg.Email.APIKey, cfg.Email.From, cfg.Email.To,
			fmt.Sprintf("follower-watch: %s", cfg.Account),
			notify.WithEmailLogger(log))
	case config.NotifierSlack:
		return notify.NewSlack(cfg.Slack.URL, cfg.Slack.Username)
	case config.NotifierDiscord:
		return notify.NewDiscord(cfg.Discord.URL, cfg.Discord.Username)
	case config.NotifierLog:
		return notify.NewLog(log), nil
	default:
		return nil, errors.Errorf("unknown notifier %q", name)
	}
}

func newStore(ctx context.Context, cfg config.Config) (followerwatch.StateStore, error) {
	if path, ok := cfg.SQLiteState(); ok {
		return sqlitestore.Open(ctx, path)
	}
	return followerwatch.NewFileStore(cfg.State)
}
