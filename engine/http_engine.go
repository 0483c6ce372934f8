package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	tls "github.com/refraction-networking/utls"
	"golang.org/x/time/rate"

	"github.com/propintel/harvest/config"
	"github.com/propintel/harvest/models"
)

// HTTPEngine is the lightweight transport: a single GET with a Chrome-like
// TLS fingerprint, bounded size and redirects, and classification of the
// response at the source (success, soft-block, or hard failure).
type HTTPEngine struct {
	cfg config.FetchConfig
	det config.DetectionConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	client *http.Client
}

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to
// http/1.1 only. Computed once at init time and reused for every
// connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		// Fallback: HelloChrome_Auto is applied as-is at dial time.
		return
	}
	// Replace h2 with http/1.1 in the ALPN extension so the server never
	// negotiates HTTP/2, which Go's http.Transport cannot frame over a
	// utls connection.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// NewHTTPEngine creates an HTTPEngine with a Chrome TLS fingerprint and
// per-host politeness pacing.
func NewHTTPEngine(cfg config.FetchConfig, det config.DetectionConfig) *HTTPEngine {
	e := &HTTPEngine{
		cfg:      cfg,
		det:      det,
		limiters: make(map[string]*rate.Limiter),
	}
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("http_engine: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2: false,
	}
	e.client = &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", cfg.MaxRedirects)
			}
			return nil
		},
	}
	return e
}

func (e *HTTPEngine) Name() string { return "http" }

// limiter returns the politeness limiter for a host, creating it on first
// use. Limiters are the only cross-request state the engine holds.
func (e *HTTPEngine) limiter(host string) *rate.Limiter {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(e.cfg.HostRPS), e.cfg.HostBurst)
		e.limiters[host] = l
	}
	return l
}

func (e *HTTPEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, models.NewError(models.ErrCodeNetwork, "build request", err)
	}

	if err := e.limiter(httpReq.URL.Hostname()).Wait(ctx); err != nil {
		return nil, models.NewError(models.ErrCodeNetwork, "politeness wait aborted", err)
	}

	httpReq.Header.Set("User-Agent", req.Identity.UserAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	httpReq.Header.Set("Accept-Encoding", "identity")
	for k, v := range req.Identity.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, models.NewError(models.ErrCodeNetwork, "attempt deadline exceeded", err)
		}
		return nil, models.NewError(models.ErrCodeNetwork, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.cfg.MaxBodyBytes))
	if err != nil {
		return nil, models.NewError(models.ErrCodeNetwork, "read body", err)
	}
	bodyStr := string(body)

	// Classification happens here, at the source: the orchestrator only
	// ever branches on the error code.
	if e.isSoftBlock(resp.StatusCode, bodyStr) {
		return nil, models.NewError(models.ErrCodeAntiBot,
			fmt.Sprintf("soft-block signature (status %d)", resp.StatusCode), nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, models.NewHTTPStatusError(resp.StatusCode, "terminal status")
	}

	return &FetchResult{
		HTML:       bodyStr,
		Title:      ExtractTitle(bodyStr),
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
		EngineName: e.Name(),
	}, nil
}

// isSoftBlock recognizes anti-automation walls: blocking statuses, or a
// signature substring in the body regardless of status.
func (e *HTTPEngine) isSoftBlock(status int, body string) bool {
	if status == http.StatusForbidden || status == http.StatusTooManyRequests {
		return true
	}
	lower := strings.ToLower(body)
	for _, sig := range e.det.BlockSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

// LooksLikeShell reports whether a successful response is implausibly
// small or an empty SPA shell, so the orchestrator can escalate instead
// of normalizing an unrendered page.
func (e *HTTPEngine) LooksLikeShell(html string) bool {
	if len(html) < e.det.MinBodyBytes {
		return true
	}
	return NeedsRendering(html, e.det.MinVisibleText)
}
