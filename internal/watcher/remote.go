package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/sydlexius/tracksignal/internal/track"
)

// Remote poller defaults.
const (
	DefaultURLTemplate  = "https://serato.com/playlists/%s/live"
	DefaultRemotePoll   = 5 * time.Second
	DefaultFetchTimeout = 4 * time.Second
	DefaultMaxBodyBytes = 2 << 20
	DefaultUserAgent    = "TrackSignal/1.0 (+https://github.com/sydlexius/tracksignal)"
)

// ErrSourceNotPublic is returned when the live playlist page does not exist
// or is not shared publicly.
var ErrSourceNotPublic = errors.New("live playlist is not public")

// ErrInvalidUsername is returned for usernames that cannot form a playlist URL.
var ErrInvalidUsername = errors.New("invalid username")

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// StatusError reports an unexpected HTTP status from the remote page.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// ValidateUsername reports whether name can be used in a playlist URL.
func ValidateUsername(name string) error {
	if !usernamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidUsername, name)
	}
	return nil
}

// BuildURL substitutes username into tmpl. The template must be an http(s)
// URL containing exactly one %s.
func BuildURL(tmpl, username string) (string, error) {
	if tmpl == "" {
		tmpl = DefaultURLTemplate
	}
	if err := ValidateUsername(username); err != nil {
		return "", err
	}
	if strings.Count(tmpl, "%s") != 1 || strings.Count(tmpl, "%") != 1 {
		return "", fmt.Errorf("url template %q must contain exactly one %%s", tmpl)
	}
	raw := fmt.Sprintf(tmpl, url.PathEscape(username))
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing playlist url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("playlist url %q must be http or https with a host", raw)
	}
	return u.String(), nil
}

// RemoteConfig configures a RemotePoller.
type RemoteConfig struct {
	Username     string
	URLTemplate  string
	Interval     time.Duration
	FetchTimeout time.Duration
	UserAgent    string
	MaxBodyBytes int64
	// Client overrides the HTTP client. Its redirect policy is replaced.
	Client *http.Client
}

func (c *RemoteConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultRemotePoll
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.FetchTimeout >= c.Interval {
		c.FetchTimeout = c.Interval * 4 / 5
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
}

// RemotePoller fetches a live playlist page on a fixed interval. A missing
// or private page is reported as a warning while the poller keeps running;
// network failures move it to Error until the next good fetch.
type RemotePoller struct {
	lifecycle
	cfg     RemoteConfig
	url     string
	host    string
	client  *http.Client
	limiter *HostLimiter
	handler Handler
}

// NewRemotePoller creates a poller for cfg.Username. limiter may be nil.
func NewRemotePoller(sourceID string, cfg RemoteConfig, h Handler, limiter *HostLimiter, logger *slog.Logger) (*RemotePoller, error) {
	cfg.applyDefaults()
	u, err := BuildURL(cfg.URLTemplate, cfg.Username)
	if err != nil {
		return nil, err
	}
	parsed, _ := url.Parse(u)
	p := &RemotePoller{
		cfg:     cfg,
		url:     u,
		host:    parsed.Host,
		client:  newClient(cfg.Client, parsed.Host),
		limiter: limiter,
		handler: h,
	}
	p.init(sourceID, logger.With("component", "remote-poller", "url", u))
	return p, nil
}

// newClient copies base and restricts redirects to host.
func newClient(base *http.Client, host string) *http.Client {
	c := &http.Client{}
	if base != nil {
		*c = *base
	}
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 5 || !strings.EqualFold(req.URL.Host, host) {
			return http.ErrUseLastResponse
		}
		return nil
	}
	return c
}

// URL returns the resolved playlist URL.
func (p *RemotePoller) URL() string { return p.url }

// Start implements Watcher.
func (p *RemotePoller) Start(ctx context.Context) error {
	return p.begin(ctx, p.run)
}

// Stop implements Watcher.
func (p *RemotePoller) Stop() { p.stop() }

// IsActive implements Watcher.
func (p *RemotePoller) IsActive() bool { return p.isActive() }

// Status implements Watcher.
func (p *RemotePoller) Status() Status { return p.snapshot() }

func (p *RemotePoller) run(ctx context.Context) {
	p.update(func(s *Status) { s.Mode = ModeHTTP })
	p.logger.Info("remote poller started", "interval", p.cfg.Interval)

	p.cycle(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("remote poller stopping")
			return
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

func (p *RemotePoller) cycle(ctx context.Context) {
	if err := p.limiter.Wait(ctx, p.host); err != nil {
		return
	}
	body, err := p.fetch(ctx)
	if ctx.Err() != nil {
		return
	}
	switch {
	case errors.Is(err, ErrSourceNotPublic):
		if p.snapshot().Warning != WarningSourceNotPublic {
			p.logger.Warn("live playlist is not public")
		}
		p.healthy(WarningSourceNotPublic)
		return
	case err != nil:
		p.logger.Warn("fetching live playlist", "error", err)
		p.failed(err)
		return
	}
	p.healthy(WarningNone)

	if strings.TrimSpace(body) == "" {
		return
	}
	p.handler(ctx, track.RawSignal{
		Text:       body,
		Kind:       track.SourceRemoteHTML,
		SourceID:   p.sourceID,
		CapturedAt: time.Now().UTC(),
	})
}

func (p *RemotePoller) fetch(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancel()

	resp, err := doGet(ctx, p.client, p.url, p.cfg.UserAgent)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close() //nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
		// continue
	case http.StatusNotFound, http.StatusGone:
		return "", ErrSourceNotPublic
	default:
		return "", &StatusError{StatusCode: resp.StatusCode, URL: p.url}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, p.cfg.MaxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}
	return string(data), nil
}

func doGet(ctx context.Context, client *http.Client, rawURL, userAgent string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	return client.Do(req) //nolint:gosec // URL built from validated username and configured template
}

// CheckResult reports whether a remote source is reachable and public.
type CheckResult struct {
	URL        string `json:"url"`
	Public     bool   `json:"public"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CheckRemote fetches the playlist page once. A 404 yields Public=false with
// no error; transport failures return an error.
func CheckRemote(ctx context.Context, cfg RemoteConfig) (CheckResult, error) {
	cfg.applyDefaults()
	u, err := BuildURL(cfg.URLTemplate, cfg.Username)
	if err != nil {
		return CheckResult{}, err
	}
	parsed, _ := url.Parse(u)
	client := newClient(cfg.Client, parsed.Host)

	ctx, cancel := context.WithTimeout(ctx, cfg.FetchTimeout)
	defer cancel()
	resp, err := doGet(ctx, client, u, cfg.UserAgent)
	if err != nil {
		return CheckResult{URL: u, Error: err.Error()}, fmt.Errorf("checking %s: %w", u, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return CheckResult{
		URL:        u,
		Public:     resp.StatusCode == http.StatusOK,
		StatusCode: resp.StatusCode,
	}, nil
}
