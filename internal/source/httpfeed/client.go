// Package httpfeed is a feed.Source backed by a JSON-over-HTTP league feed
// service.
package httpfeed

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/singleflight"

	"leaguewatch/internal/catalog"
	"leaguewatch/internal/feed"
	"leaguewatch/internal/league"
	logx "leaguewatch/pkg/logx"
)

const maxBody = 6 << 20

var errTransient = errors.New("feed service transient failure")

type Config struct {
	HTTPClient *http.Client
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
	// Backoff is the unit of the linear retry delay (attempt+1)*Backoff.
	Backoff time.Duration
	Logger  logx.Logger
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	maxRetries int
	backoff    time.Duration
	log        logx.Logger
	flight     singleflight.Group
	// flightTimeout bounds a shared request, which outlives any one caller.
	flightTimeout time.Duration
}

func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = 20 * time.Second
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}
	log := cfg.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	retries := max(cfg.MaxRetries, 0)
	// every attempt plus the linear waits between them
	waits := time.Duration(retries*(retries+1)/2) * backoff
	return &Client{
		httpClient:    httpClient,
		baseURL:       strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		token:         strings.TrimSpace(cfg.Token),
		maxRetries:    retries,
		backoff:       backoff,
		log:           log.With(logx.String("comp", "httpfeed")),
		flightTimeout: time.Duration(retries+1)*httpClient.Timeout + waits,
	}
}

func leaguePath(l league.League) string {
	return "/sites/" + url.PathEscape(l.SiteID) + "/leagues/" + url.PathEscape(l.ExternalID)
}

// Fetch implements feed.Source. A 404 is reported as feed.ErrUnsupported.
// Malformed items are logged and dropped; the rest of the page is kept.
func (c *Client) Fetch(ctx context.Context, l league.League, t feed.Type) ([]feed.Item, error) {
	if !t.Valid() {
		return nil, errors.Newf("unknown feed type %q", t)
	}
	var env feedEnvelope
	if err := c.doJSON(ctx, leaguePath(l)+"/feeds/"+url.PathEscape(string(t)), &env); err != nil {
		return nil, err
	}
	items := make([]feed.Item, 0, len(env.Items))
	for i, w := range env.Items {
		it, err := w.toItem(l.ID, t)
		if err != nil {
			c.log.Warn("malformed feed item dropped",
				logx.String("league", l.ID),
				logx.String("feed", string(t)),
				logx.Int("index", i),
				logx.String("id", w.ID),
				logx.Err(err),
			)
			continue
		}
		items = append(items, it)
	}
	feed.Seal(items)
	return items, nil
}

// FetchMetadata implements catalog.MetadataSource.
func (c *Client) FetchMetadata(ctx context.Context, l league.League) (catalog.Metadata, error) {
	var w wireMetadata
	if err := c.doJSON(ctx, leaguePath(l), &w); err != nil {
		return catalog.Metadata{}, err
	}
	return w.toMetadata(), nil
}

func (c *Client) doJSON(ctx context.Context, path string, target any) error {
	fullURL := c.baseURL + path
	ch := c.flight.DoChan(fullURL, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.flightTimeout)
		defer cancel()
		return c.executeRequest(fctx, fullURL)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return res.Err
	}
	raw, ok := res.Val.([]byte)
	if !ok {
		return errors.Newf("unexpected response payload type %T", res.Val)
	}
	if err := sonic.Unmarshal(raw, target); err != nil {
		return errors.Wrap(err, "decode feed payload")
	}
	return nil
}

func (c *Client) executeRequest(ctx context.Context, fullURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, errors.Wrap(err, "build request")
		}
		req.Header.Set("accept", "application/json")
		if c.token != "" {
			req.Header.Set("authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = errors.Wrapf(errTransient, "send request: %s", sanitize(err.Error(), c.token))
		} else {
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBody))
			_ = resp.Body.Close()
			switch {
			case readErr != nil:
				lastErr = errors.Wrapf(errTransient, "read response body: %v", readErr)
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				return raw, nil
			case resp.StatusCode == http.StatusNotFound:
				return nil, feed.ErrUnsupported
			case isRetryableStatus(resp.StatusCode):
				lastErr = errors.Wrapf(errTransient, "status=%d body=%s", resp.StatusCode, abbreviate(raw))
			default:
				return nil, errors.Newf("feed service status=%d body=%s", resp.StatusCode, abbreviate(raw))
			}
		}

		if attempt == c.maxRetries {
			break
		}
		timer := time.NewTimer(time.Duration(attempt+1) * c.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if lastErr == nil {
		lastErr = errors.New("feed request failed")
	}
	c.log.Warn("feed request failed", logx.String("url", fullURL), logx.Err(lastErr))
	return nil, lastErr
}

// IsTransient reports whether err came from a retryable failure.
func IsTransient(err error) bool { return errors.Is(err, errTransient) }

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func sanitize(s, token string) string {
	s = strings.TrimSpace(s)
	if token != "" {
		s = strings.ReplaceAll(s, token, "REDACTED")
	}
	return s
}

func abbreviate(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= 240 {
		return text
	}
	return text[:240] + "..."
}
