package source

import (
	"context"
	"regexp"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultPageURL is the public counter page the count is scraped from.
	DefaultPageURL = "https://tokcounter.com/?user={account}"

	// DefaultPagePattern finds the count on DefaultPageURL.
	DefaultPagePattern = `<span id="count">([\d,.\s]+[KkMm]?)</span>`
)

// Page scrapes the follower count out of an HTML page with a regular
// expression. The first capture group of the pattern must hold the count.
type Page struct {
	URL     string
	Pattern *regexp.Regexp

	client  *resty.Client
	limiter *rate.Limiter
	log     *zap.SugaredLogger
}

// NewPage returns a Page source for account. An empty urlTemplate or
// pattern selects the defaults.
func NewPage(account, urlTemplate, pattern string, opts ...Option) (*Page, error) {
	if account == "" {
		return nil, errors.New("account must be specified")
	}
	if urlTemplate == "" {
		urlTemplate = DefaultPageURL
	}
	if pattern == "" {
		pattern = DefaultPagePattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.Wrap(err, "invalid count pattern")
	}
	if re.NumSubexp() < 1 {
		return nil, errors.Errorf("count pattern %q has no capture group", pattern)
	}
	o := buildOptions(opts)
	return &Page{
		URL:     ExpandURL(urlTemplate, account),
		Pattern: re,
		client:  newClient(o).SetHeader("Accept", "text/html"),
		limiter: newLimiter(o.MinSpacing),
		log:     o.Logger,
	}, nil
}

// Name implements followerwatch.CountSource.
func (p *Page) Name() string { return "page" }

// FetchCount implements followerwatch.CountSource.
func (p *Page) FetchCount(ctx context.Context) (int, error) {
	resp, err := get(ctx, p.client, p.limiter, p.URL)
	if err != nil {
		return 0, err
	}
	n, err := p.extract(resp.Body())
	if err != nil {
		p.log.Debugw("could not find follower count in page",
			"url", p.URL,
			"bytes", len(resp.Body()))
		return 0, err
	}
	return n, nil
}

func (p *Page) extract(body []byte) (int, error) {
	m := p.Pattern.FindSubmatch(body)
	if m == nil {
		return 0, ErrCountNotFound
	}
	return ParseCount(string(m[1]))
}
