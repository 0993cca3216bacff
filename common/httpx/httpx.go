package httpx

import (
	"crypto/tls"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/atomic"

	"github.com/higress-group/newsrag/common/logger"
	"github.com/higress-group/newsrag/config"
)

// Client is an outbound HTTP client with a bounded timeout, jittered retries,
// a host allowlist and a consecutive-failure circuit breaker.
type Client struct {
	hc        *http.Client
	opt       Options
	fail      atomic.Int32 // consecutive failures
	openUntil atomic.Int64 // unix nanos for circuit open deadline
}

type Options struct {
	Timeout            time.Duration
	Retry              int
	BackoffMin         time.Duration
	BackoffMax         time.Duration
	HostAllowlist      []string
	MaxConsecutiveFail int
	CircuitOpen        time.Duration
}

var (
	ErrCircuitOpen    = errors.New("circuit open")
	ErrHostNotAllowed = errors.New("host not allowed")
)

func NewFromConfig(cfg *config.HTTPClientConfig) *Client {
	opt := Options{
		Timeout:            1200 * time.Millisecond,
		Retry:              1,
		BackoffMin:         100 * time.Millisecond,
		BackoffMax:         800 * time.Millisecond,
		MaxConsecutiveFail: 5,
		CircuitOpen:        5 * time.Second,
	}
	if cfg != nil {
		if cfg.TimeoutMs > 0 {
			opt.Timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
		}
		if cfg.Retry >= 0 {
			opt.Retry = cfg.Retry
		}
		if cfg.BackoffMinMs > 0 {
			opt.BackoffMin = time.Duration(cfg.BackoffMinMs) * time.Millisecond
		}
		if cfg.BackoffMaxMs > 0 {
			opt.BackoffMax = time.Duration(cfg.BackoffMaxMs) * time.Millisecond
		}
		if cfg.MaxConsecutiveFailures > 0 {
			opt.MaxConsecutiveFail = cfg.MaxConsecutiveFailures
		}
		if cfg.CircuitOpenSeconds > 0 {
			opt.CircuitOpen = time.Duration(cfg.CircuitOpenSeconds) * time.Second
		}
		opt.HostAllowlist = cfg.HostAllowlist
	}
	return New(opt)
}

func New(opt Options) *Client {
	transport := &http.Transport{
		DialContext:     (&net.Dialer{Timeout: opt.Timeout}).DialContext,
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConns:    100,
		IdleConnTimeout: 30 * time.Second,
	}
	return &Client{
		hc:  &http.Client{Timeout: opt.Timeout, Transport: transport},
		opt: opt,
	}
}

func (c *Client) allowed(u *url.URL) bool {
	if len(c.opt.HostAllowlist) == 0 {
		return true
	}
	host := u.Hostname()
	for _, h := range c.opt.HostAllowlist {
		if matchHost(h, host) {
			return true
		}
	}
	return false
}

func matchHost(pattern, host string) bool {
	if pattern == "*" {
		return true
	}
	if strings.EqualFold(pattern, host) {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		suf := strings.TrimPrefix(pattern, "*.")
		return strings.HasSuffix(host, "."+suf) || host == suf
	}
	return false
}

// Do sends req, retrying transport errors and 5xx responses. Requests with a
// body must set GetBody (http.NewRequest does for common body types).
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if !c.allowed(req.URL) {
		logger.Warnf("httpx: blocked outbound host: %s", req.URL.Host)
		return nil, ErrHostNotAllowed
	}
	if c.openUntil.Load() > time.Now().UnixNano() {
		return nil, ErrCircuitOpen
	}
	var resp *http.Response
	var err error
	for i := 0; i <= c.opt.Retry; i++ {
		if i > 0 && req.GetBody != nil {
			body, berr := req.GetBody()
			if berr != nil {
				return nil, berr
			}
			req.Body = body
		}
		resp, err = c.hc.Do(req)
		if err == nil && resp.StatusCode < 500 {
			c.fail.Store(0)
			return resp, nil
		}
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
			resp = nil
		}
		if err == nil {
			err = errors.New("upstream status 5xx")
		}
		logger.Warnf("httpx: request failed (try %d/%d) to %s: %v", i+1, c.opt.Retry+1, req.URL.Host, err)
		if ctxErr := req.Context().Err(); ctxErr != nil {
			err = ctxErr
			break
		}
		if i < c.opt.Retry {
			time.Sleep(backoffJitter(c.opt.BackoffMin, c.opt.BackoffMax))
		}
	}
	if c.fail.Inc() >= int32(c.opt.MaxConsecutiveFail) {
		c.openUntil.Store(time.Now().Add(c.opt.CircuitOpen).UnixNano())
		c.fail.Store(0)
		logger.Warnf("httpx: circuit opened for %v", c.opt.CircuitOpen)
	}
	return nil, err
}

func backoffJitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
