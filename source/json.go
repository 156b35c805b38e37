package source

import (
	"context"
	"encoding/json"
	"math"

	"github.com/go-resty/resty/v2"
	"github.com/itchyny/gojq"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultJSONQuery is used when no query is configured.
const DefaultJSONQuery = ".followerCount"

// JSON asks an HTTP API for the account and extracts the follower count from
// the response with a jq expression, e.g. ".data.user.stats.followerCount".
type JSON struct {
	URL   string
	Query string

	code    *gojq.Code
	client  *resty.Client
	limiter *rate.Limiter
	log     *zap.SugaredLogger
}

// NewJSON returns a JSON source for account. urlTemplate is required; an
// empty query selects DefaultJSONQuery.
func NewJSON(account, urlTemplate, query string, opts ...Option) (*JSON, error) {
	if account == "" {
		return nil, errors.New("account must be specified")
	}
	if urlTemplate == "" {
		return nil, errors.New("JSON source needs a URL")
	}
	if query == "" {
		query = DefaultJSONQuery
	}
	q, err := gojq.Parse(query)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid jq query %q", query)
	}
	code, err := gojq.Compile(q)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot compile jq query %q", query)
	}
	o := buildOptions(opts)
	return &JSON{
		URL:     ExpandURL(urlTemplate, account),
		Query:   query,
		code:    code,
		client:  newClient(o).SetHeader("Accept", "application/json"),
		limiter: newLimiter(o.MinSpacing),
		log:     o.Logger,
	}, nil
}

// Name implements followerwatch.CountSource.
func (j *JSON) Name() string { return "json" }

// FetchCount implements followerwatch.CountSource.
func (j *JSON) FetchCount(ctx context.Context) (int, error) {
	resp, err := get(ctx, j.client, j.limiter, j.URL)
	if err != nil {
		return 0, err
	}
	var doc interface{}
	if err := json.Unmarshal(resp.Body(), &doc); err != nil {
		return 0, errors.Wrap(err, "error decoding JSON response")
	}
	return j.extract(ctx, doc)
}

func (j *JSON) extract(ctx context.Context, doc interface{}) (int, error) {
	iter := j.code.RunWithContext(ctx, doc)
	v, ok := iter.Next()
	if !ok {
		return 0, ErrCountNotFound
	}
	switch v := v.(type) {
	case error:
		return 0, errors.Wrapf(v, "error running jq query %q", j.Query)
	case nil:
		return 0, ErrCountNotFound
	case int:
		if v < 0 {
			return 0, errors.Errorf("negative follower count %d", v)
		}
		return v, nil
	case float64:
		if v < 0 || v != math.Trunc(v) || v > 1<<53 {
			return 0, errors.Errorf("follower count %v is not a count", v)
		}
		return int(v), nil
	case string:
		return ParseCount(v)
	default:
		j.log.Debugw("jq query returned unexpected type",
			"query", j.Query,
			"value", v)
		return 0, errors.Errorf("jq query %q returned %T, not a number", j.Query, v)
	}
}
