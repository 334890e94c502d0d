// SPDX-License-Identifier: MIT

// Package zattoo implements the provider API client: the session handshake,
// the cached channel catalog and the power-guide/power-details endpoints.
package zattoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/publicsuffix"

	"github.com/domevanzy/Zattoo-EPG/internal/log"
	"github.com/domevanzy/Zattoo-EPG/internal/metrics"
)

const (
	// Guide windows for large lineups run to several MB; anything beyond
	// this is not a guide response.
	maxResponseBytes = 50 << 20
	maxErrorSnippet  = 512
	maxRetryAfter    = 60 * time.Second

	sessionCookieName = "beaker.session.id"
)

// Credentials are the account login data.
type Credentials struct {
	Email    string
	Password string
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	LogoBaseURL string
	Country     string // expected service region, "DE" or "CH"
	UserAgent   string
	Timeout     time.Duration
	Credentials Credentials
	Transport   http.RoundTripper // optional; instrumented with otelhttp
}

// Client talks to the provider API. It owns the session: login stores it,
// every other call carries it, and a single expired-session response
// triggers one transparent re-login before the error becomes fatal.
type Client struct {
	base      string
	logoBase  string
	country   string
	userAgent string
	deviceID  string
	creds     Credentials
	http      *http.Client
	logger    zerolog.Logger

	mu   sync.Mutex
	sess *Session
}

// New builds a Client. The cookie jar keeps the beaker session cookie that
// the hello handshake issues.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("zattoo: base URL required")
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("zattoo: cookie jar: %w", err)
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logoBase := opts.LogoBaseURL
	if logoBase == "" {
		logoBase = "https://logos.zattic.com"
	}
	return &Client{
		base:      strings.TrimRight(opts.BaseURL, "/"),
		logoBase:  strings.TrimRight(logoBase, "/"),
		country:   opts.Country,
		userAgent: opts.UserAgent,
		deviceID:  uuid.NewString(),
		creds:     opts.Credentials,
		http: &http.Client{
			Timeout:   timeout,
			Jar:       jar,
			Transport: otelhttp.NewTransport(transport),
		},
		logger: log.WithComponent("zattoo"),
	}, nil
}

// Login runs the token/hello/login handshake and stores the session.
// The returned Session is a copy; the client keeps the authoritative one.
func (c *Client) Login(ctx context.Context) (*Session, error) {
	var tok appTokenResponse
	if err := c.get(ctx, "app_token", "/token.json", nil, &tok); err != nil {
		return nil, err
	}
	if tok.SessionToken == "" {
		return nil, &APIError{Sentinel: ErrBadResponse, Operation: "app_token", Err: errors.New("empty session_token")}
	}

	hello := url.Values{
		"client_app_token": {tok.SessionToken},
		"uuid":             {c.deviceID},
		"lang":             {"en"},
		"format":           {"json"},
	}
	if err := c.postForm(ctx, "hello", "/zapi/session/hello", hello, nil); err != nil {
		return nil, err
	}

	form := url.Values{
		"login":    {c.creds.Email},
		"password": {c.creds.Password},
	}
	var resp loginResponse
	if err := c.postForm(ctx, "login", "/zapi/v2/account/login", form, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			switch apiErr.Status {
			case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
				apiErr.Sentinel = ErrInvalidCredentials
				apiErr.Operation = "login"
				return nil, apiErr
			}
		}
		return nil, err
	}
	if !resp.Success {
		return nil, &APIError{Sentinel: ErrInvalidCredentials, Operation: "login"}
	}
	if got := resp.Session.ServiceRegionCountry; got != c.country {
		return nil, &APIError{
			Sentinel:  ErrWrongCountry,
			Operation: "login",
			Body:      fmt.Sprintf("expected %s, got %s", c.country, got),
		}
	}
	if resp.Session.PowerGuideHash == "" {
		return nil, &APIError{Sentinel: ErrBadResponse, Operation: "login", Err: errors.New("missing power_guide_hash")}
	}

	sess := &Session{
		Token:          c.sessionCookie(),
		Country:        resp.Session.ServiceRegionCountry,
		PowerGuideHash: resp.Session.PowerGuideHash,
		CreatedAt:      time.Now(),
	}
	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()

	c.logger.Info().
		Str("event", "session.established").
		Str("country", sess.Country).
		Msg("logged in")

	out := *sess
	return &out, nil
}

// Session returns a copy of the current session, if one exists.
func (c *Client) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return Session{}, false
	}
	return *c.sess, true
}

// Channels fetches the channel catalog: all groups flattened in upstream
// order. Channels without an ID or title are skipped.
func (c *Client) Channels(ctx context.Context) ([]Channel, error) {
	var out []Channel
	err := c.authorized(ctx, func(ctx context.Context) error {
		hash, err := c.hash()
		if err != nil {
			return err
		}
		var resp channelsResponse
		q := url.Values{"details": {"False"}}
		if err := c.get(ctx, "channels", "/zapi/v2/cached/channels/"+hash, q, &resp); err != nil {
			return err
		}
		if !resp.Success {
			return &APIError{Sentinel: ErrBadResponse, Operation: "channels", Err: errors.New("success=false")}
		}
		out = out[:0]
		for _, group := range resp.ChannelGroups {
			for _, ch := range group.Channels {
				if ch.CID == "" || ch.Title == "" {
					continue
				}
				out = append(out, Channel{
					ID:      ch.CID,
					Title:   ch.Title,
					LogoURL: c.logoURL(ch.Qualities),
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PowerGuide fetches the guide window [start, end) for every channel.
func (c *Client) PowerGuide(ctx context.Context, start, end time.Time) ([]ChannelPrograms, error) {
	var out []ChannelPrograms
	err := c.authorized(ctx, func(ctx context.Context) error {
		hash, err := c.hash()
		if err != nil {
			return err
		}
		q := url.Values{
			"start": {strconv.FormatInt(start.Unix(), 10)},
			"end":   {strconv.FormatInt(end.Unix(), 10)},
		}
		var resp guideResponse
		if err := c.get(ctx, "power_guide", "/zapi/v2/cached/program/power_guide/"+hash, q, &resp); err != nil {
			return err
		}
		if !resp.Success {
			return &APIError{Sentinel: ErrBadResponse, Operation: "power_guide", Err: errors.New("success=false")}
		}
		out = out[:0]
		for _, ch := range resp.Channels {
			cid := ch.CID
			if cid == "" {
				cid = ch.ID
			}
			if cid == "" || len(ch.Programs) == 0 {
				continue
			}
			out = append(out, ChannelPrograms{ChannelID: cid, Programs: ch.Programs})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ProgramDetails fetches enrichment for one batch of programme IDs. The
// response may cover any subset of the requested IDs.
func (c *Client) ProgramDetails(ctx context.Context, ids []int64) (map[int64]ProgramDetail, error) {
	if len(ids) == 0 {
		return map[int64]ProgramDetail{}, nil
	}
	var out map[int64]ProgramDetail
	err := c.authorized(ctx, func(ctx context.Context) error {
		hash, err := c.hash()
		if err != nil {
			return err
		}
		joined := make([]string, len(ids))
		for i, id := range ids {
			joined[i] = strconv.FormatInt(id, 10)
		}
		q := url.Values{"program_ids": {strings.Join(joined, ",")}}
		var resp detailsResponse
		if err := c.get(ctx, "power_details", "/zapi/v2/cached/program/power_details/"+hash, q, &resp); err != nil {
			return err
		}
		if !resp.Success {
			return &APIError{Sentinel: ErrBadResponse, Operation: "power_details", Err: errors.New("success=false")}
		}
		out = make(map[int64]ProgramDetail, len(resp.Programs))
		for key, det := range resp.Programs {
			id, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				continue
			}
			out[id] = det
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// authorized runs fn and, if the session has expired, re-authenticates once
// and replays it. A second expiry is returned to the caller.
func (c *Client) authorized(ctx context.Context, fn func(context.Context) error) error {
	err := fn(ctx)
	if err == nil || !errors.Is(err, ErrSessionExpired) {
		return err
	}
	c.logger.Warn().
		Str("event", "session.expired").
		Msg("session expired, re-authenticating once")
	if _, lerr := c.Login(ctx); lerr != nil {
		return fmt.Errorf("re-login after expired session: %w", lerr)
	}
	return fn(ctx)
}

func (c *Client) hash() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return "", &APIError{Sentinel: ErrSessionExpired, Operation: "session"}
	}
	return c.sess.PowerGuideHash, nil
}

func (c *Client) sessionCookie() string {
	u, err := url.Parse(c.base)
	if err != nil {
		return ""
	}
	for _, ck := range c.http.Jar.Cookies(u) {
		if ck.Name == sessionCookieName {
			return ck.Value
		}
	}
	return ""
}

// logoURL picks the first quality's logo, upgrades it to the larger
// rendition and absolutises CDN-relative paths.
func (c *Client) logoURL(qualities []wireQuality) string {
	if len(qualities) == 0 {
		return ""
	}
	logo := strings.Replace(qualities[0].LogoBlack84, "84x48.png", "210x120.png", 1)
	if logo == "" {
		return ""
	}
	if strings.HasPrefix(logo, "/") {
		logo = c.logoBase + logo
	}
	return logo
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &APIError{Sentinel: ErrBadResponse, Operation: op, Err: err}
	}
	return c.do(op, req, out)
}

func (c *Client) postForm(ctx context.Context, op, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, strings.NewReader(form.Encode()))
	if err != nil {
		return &APIError{Sentinel: ErrBadResponse, Operation: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(op, req, out)
}

func (c *Client) do(op string, req *http.Request, out any) error {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "de,en-US;q=0.7,en;q=0.3")

	started := time.Now()
	res, err := c.http.Do(req)
	elapsed := time.Since(started)
	if err != nil {
		metrics.RecordAPIRequest(op, 0, elapsed)
		sentinel := ErrUnavailable
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			sentinel = ErrTimeout
		} else if errors.Is(err, context.DeadlineExceeded) {
			sentinel = ErrTimeout
		}
		return &APIError{Sentinel: sentinel, Operation: op, Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, res.Body)
		_ = res.Body.Close()
	}()
	metrics.RecordAPIRequest(op, res.StatusCode, elapsed)

	switch {
	case res.StatusCode == http.StatusOK:
		// fall through to decode
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return &APIError{Sentinel: ErrSessionExpired, Operation: op, Status: res.StatusCode}
	case res.StatusCode == http.StatusNotFound:
		return &APIError{Sentinel: ErrNotFound, Operation: op, Status: res.StatusCode}
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode == http.StatusServiceUnavailable:
		metrics.IncThrottleSignal()
		return &APIError{
			Sentinel:   ErrThrottled,
			Operation:  op,
			Status:     res.StatusCode,
			RetryAfter: parseRetryAfter(res.Header.Get("Retry-After"), maxRetryAfter),
		}
	case res.StatusCode >= 500:
		return &APIError{Sentinel: ErrUpstreamError, Operation: op, Status: res.StatusCode}
	default:
		return &APIError{
			Sentinel:  ErrBadResponse,
			Operation: op,
			Status:    res.StatusCode,
			Body:      readSnippet(res.Body),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, maxResponseBytes)).Decode(out); err != nil {
		return &APIError{Sentinel: ErrBadResponse, Operation: op, Err: err}
	}
	return nil
}

func readSnippet(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, maxErrorSnippet))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// parseRetryAfter parses Retry-After (seconds or HTTP-date); returns the
// duration capped at max, or 0 when the header is absent or unusable.
func parseRetryAfter(s string, max time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if sec, err := strconv.Atoi(s); err == nil && sec >= 0 {
		d := time.Duration(sec) * time.Second
		if d > max {
			return max
		}
		return d
	}
	t, err := time.Parse(time.RFC1123, s)
	if err != nil {
		return 0
	}
	until := time.Until(t)
	if until <= 0 {
		return 0
	}
	if until > max {
		return max
	}
	return until
}
