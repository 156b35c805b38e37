// Package source implements the ways followerwatch can find out how many
// followers an account has: scraping a counter page, asking a JSON API, or
// rendering a page in a headless browser.
package source

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout    = 20 * time.Second
	defaultMinSpacing = 2 * time.Second
	defaultUserAgent  = "follower-watch/1.0 (+https://github.com/ianfoo/follower-watch)"
)

// ErrCountNotFound means the response was fetched but held no follower count.
var ErrCountNotFound = errors.New("follower count not found in response")

// Options are shared by every source.
type Options struct {
	Timeout    time.Duration
	MinSpacing time.Duration
	UserAgent  string
	Headers    map[string]string
	Logger     *zap.SugaredLogger
}

// Option changes the shared source Options.
type Option func(*Options)

// WithLogger sets the logger a source uses. Without it nothing is logged.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithTimeout bounds each request, independent of the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.Timeout = d
		}
	}
}

// WithMinSpacing sets the minimum time between two fetches, so a manual
// check right after a scheduled one does not hit the provider twice in a row.
func WithMinSpacing(d time.Duration) Option {
	return func(o *Options) {
		o.MinSpacing = d
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *Options) {
		if ua != "" {
			o.UserAgent = ua
		}
	}
}

// WithHeader adds a request header, e.g. an API key.
func WithHeader(key, value string) Option {
	return func(o *Options) {
		if o.Headers == nil {
			o.Headers = map[string]string{}
		}
		o.Headers[key] = value
	}
}

func buildOptions(opts []Option) Options {
	o := Options{
		Timeout:    defaultTimeout,
		MinSpacing: defaultMinSpacing,
		UserAgent:  defaultUserAgent,
		Logger:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newLimiter(spacing time.Duration) *rate.Limiter {
	if spacing <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(spacing), 1)
}

func newClient(o Options) *resty.Client {
	return resty.New().
		SetTimeout(o.Timeout).
		SetHeader("User-Agent", o.UserAgent).
		SetHeaders(o.Headers)
}

// get fetches url after waiting for the limiter, treating any non-2xx status
// as a failure.
func get(ctx context.Context, client *resty.Client, limiter *rate.Limiter, url string) (*resty.Response, error) {
	if err := limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "waiting for rate limiter")
	}
	resp, err := client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, errors.Wrapf(err, "error reaching %s", url)
	}
	if resp.IsError() {
		return nil, errors.Errorf("unexpected response from %s: %s", url, resp.Status())
	}
	return resp, nil
}

// ExpandURL substitutes the account name into a URL template at every
// occurrence of {account}.
func ExpandURL(template, account string) string {
	return strings.ReplaceAll(template, "{account}", account)
}

// ParseCount turns the text a page shows for a follower count into a number.
// It accepts thousands separators ("12,345", "12.345", "12 345") and the
// abbreviated forms counters use for big accounts ("1.2K", "3,4M").
func ParseCount(text string) (int, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, ErrCountNotFound
	}
	mult := 1.0
	switch last := s[len(s)-1]; last {
	case 'k', 'K':
		mult = 1e3
	case 'm', 'M':
		mult = 1e6
	case 'b', 'B':
		mult = 1e9
	}
	if mult != 1 {
		num := strings.ReplaceAll(strings.TrimSpace(s[:len(s)-1]), ",", ".")
		f, err := strconv.ParseFloat(num, 64)
		if err != nil || f < 0 || math.IsNaN(f) {
			return 0, errors.Errorf("cannot parse follower count %q", text)
		}
		if f*mult >= math.MaxInt64 {
			return 0, errors.Errorf("follower count %q is out of range", text)
		}
		return int(f*mult + 0.5), nil
	}
	digits := strings.Map(func(r rune) rune {
		switch r {
		case ',', '.', ' ', '\u00a0', '\u202f', '\'':
			return -1
		}
		return r
	}, s)
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return 0, errors.Errorf("cannot parse follower count %q", text)
	}
	return n, nil
}
