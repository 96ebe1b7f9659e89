package probe

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/davidbond17/pingpro/pkg/types"
)

// DefaultTimeout bounds a single probe when the caller gives no timeout.
const DefaultTimeout = 5 * time.Second

// Prober executes one reachability probe. Implementations never return an
// error: every outcome is a Sample.
type Prober interface {
	Probe(ctx context.Context, host string, timeout time.Duration, networkType types.NetworkType) types.Sample
}

type ProberFunc func(ctx context.Context, host string, timeout time.Duration, networkType types.NetworkType) types.Sample

func (f ProberFunc) Probe(ctx context.Context, host string, timeout time.Duration, networkType types.NetworkType) types.Sample {
	return f(ctx, host, timeout, networkType)
}

// HTTPProber measures the round trip of an uncached HEAD request.
type HTTPProber struct {
	client *http.Client
	now    func() time.Time
}

type Option func(*HTTPProber)

func WithHTTPClient(client *http.Client) Option {
	return func(p *HTTPProber) {
		if client != nil {
			p.client = client
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(p *HTTPProber) {
		if now != nil {
			p.now = now
		}
	}
}

func NewHTTPProber(opts ...Option) *HTTPProber {
	p := &HTTPProber{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				ForceAttemptHTTP2:   true,
				MaxIdleConnsPerHost: 2,
			},
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *HTTPProber) Probe(ctx context.Context, host string, timeout time.Duration, networkType types.NetworkType) types.Sample {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	start := p.now()
	sample := types.Sample{
		Timestamp:   start.UTC(),
		Host:        host,
		NetworkType: networkType,
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, BuildURL(host), nil)
	if err != nil {
		return sample
	}
	req.Header.Set("Cache-Control", "no-cache, no-store")
	req.Header.Set("Pragma", "no-cache")

	resp, err := p.client.Do(req)
	if err != nil {
		return sample
	}
	elapsed := p.now().Sub(start)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return sample
	}
	if elapsed > timeout {
		return sample
	}

	latency := float64(elapsed) / float64(time.Millisecond)
	sample.Latency = &latency
	sample.Succeeded = true
	return sample
}
