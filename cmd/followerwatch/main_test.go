package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	followerwatch "github.com/ianfoo/follower-watch"
	"github.com/ianfoo/follower-watch/internal/config"
	"github.com/ianfoo/follower-watch/notify"
	"github.com/ianfoo/follower-watch/source"
	"github.com/ianfoo/follower-watch/sqlitestore"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func counterPage(t *testing.T, status int, count string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "dancer", r.URL.Query().Get("user"))
		rw.WriteHeader(status)
		fmt.Fprintf(rw, `<html><span id="count">%s</span></html>`, count)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckCommand(t *testing.T) {
	srv := counterPage(t, http.StatusOK, "1,234")
	state := filepath.Join(t.TempDir(), "followers.json")
	t.Setenv("TIKTOK_USERNAME", "dancer")
	t.Setenv("TARGET_FOLLOWERS", "2000")

	out, err := execute(t, "check",
		"--env-file", filepath.Join(t.TempDir(), "none.env"),
		"--source-url", srv.URL+"/?user={account}",
		"--notifier", "log",
		"--state", state)
	require.NoError(t, err)
	assert.Contains(t, out, "dancer: 1234 followers (was 0), 4 notification(s) sent")

	b, err := os.ReadFile(state)
	require.NoError(t, err)
	assert.JSONEq(t, `{"last":1234}`, string(b))
}

func TestCheckCommandFetchFailure(t *testing.T) {
	srv := counterPage(t, http.StatusBadGateway, "")
	state := filepath.Join(t.TempDir(), "followers.json")
	t.Setenv("TIKTOK_USERNAME", "dancer")
	t.Setenv("TARGET_FOLLOWERS", "2000")

	_, err := execute(t, "check",
		"--env-file", filepath.Join(t.TempDir(), "none.env"),
		"--source-url", srv.URL+"/?user={account}",
		"--notifier", "log",
		"--state", state)
	require.Error(t, err)
	_, statErr := os.Stat(state)
	assert.True(t, os.IsNotExist(statErr), "nothing is saved when the fetch fails")
}

func TestConfigErrorShowsUsage(t *testing.T) {
	t.Setenv("TIKTOK_USERNAME", "")
	t.Setenv("FOLLOWWATCH_ACCOUNT", "")
	out, err := execute(t, "check", "--env-file", filepath.Join(t.TempDir(), "none.env"))
	require.Error(t, err)
	assert.Contains(t, out, "account is required")
	assert.Contains(t, out, "Usage:")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "followerwatch dev\n", out)
}

func TestNewSource(t *testing.T) {
	log := zap.NewNop().Sugar()
	cfg := config.Config{Account: "dancer", Source: config.Source{Kind: config.SourcePage}}
	src, err := newSource(cfg, log)
	require.NoError(t, err)
	assert.IsType(t, &source.Page{}, src)

	cfg.Source = config.Source{Kind: config.SourceJSON, URL: "https://api.example.com/{account}"}
	src, err = newSource(cfg, log)
	require.NoError(t, err)
	assert.IsType(t, &source.JSON{}, src)

	cfg.Source = config.Source{Kind: config.SourceBrowser}
	src, err = newSource(cfg, log)
	require.NoError(t, err)
	assert.IsType(t, &source.Browser{}, src)

	cfg.Source = config.Source{Kind: "fax"}
	_, err = newSource(cfg, log)
	assert.Error(t, err)
}

func TestNewNotifier(t *testing.T) {
	log := zap.NewNop().Sugar()
	cfg := config.Config{
		Notifiers: []string{config.NotifierLog},
		Telegram:  config.Telegram{Token: "123:abc", ChatID: "42"},
		Slack:     config.Webhook{URL: "https://hooks.slack.com/services/T/B/X"},
	}
	n, err := newNotifier(cfg, log)
	require.NoError(t, err)
	assert.IsType(t, &notify.Log{}, n)

	cfg.Notifiers = []string{config.NotifierTelegram, config.NotifierSlack}
	n, err = newNotifier(cfg, log)
	require.NoError(t, err)
	require.IsType(t, notify.Multi{}, n)
	assert.Len(t, n.(notify.Multi), 2)

	cfg.Notifiers = []string{config.NotifierDiscord}
	_, err = newNotifier(cfg, log)
	assert.Error(t, err, "discord without a webhook URL")
}

func TestNewStore(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := newStore(ctx, config.Config{State: filepath.Join(dir, "followers.json")})
	require.NoError(t, err)
	assert.IsType(t, &followerwatch.FileStore{}, s)

	s, err = newStore(ctx, config.Config{State: filepath.Join(dir, "state.db")})
	require.NoError(t, err)
	require.IsType(t, &sqlitestore.Store{}, s)
	assert.NoError(t, s.(*sqlitestore.Store).Close())
}
