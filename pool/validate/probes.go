package validate

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/proxy"
	"h12.io/socks"

	"proxynexus/internal/shared/logger"
	"proxynexus/internal/shared/types"
	"proxynexus/pool/model"
)

// maxDownloadBytes bounds the speed probe's body read.
const maxDownloadBytes = 64 * 1024

// forwardingHeaders are inspected by the anonymity probe. Any of them
// surviving the hop marks the endpoint as at most anonymous.
var forwardingHeaders = []string{
	"Via",
	"X-Forwarded-For",
	"X-Real-Ip",
	"Forwarded",
	"X-Proxy-Id",
}

// Prober is the four-signal probe set run per endpoint. Implementations
// catch their own failures: a probe returns success=false with the
// triggering error and never panics past its boundary.
type Prober interface {
	Connectivity(ctx context.Context, e *model.Endpoint) *model.ConnectivityResult
	Speed(ctx context.Context, e *model.Endpoint) *model.SpeedResult
	Geolocation(ctx context.Context, e *model.Endpoint) *model.GeoResult
	Anonymity(ctx context.Context, e *model.Endpoint) *model.AnonymityResult
}

// NetworkProber probes endpoints over the real network. Targets come
// from config so tests can point them at local servers.
type NetworkProber struct {
	cfg     types.ValidateConf
	timeout time.Duration

	direct *http.Client // for real-egress lookups, bypasses the endpoint

	selfMu       sync.Mutex
	selfResolved bool
	realCountry  string
	realIP       string
}

// NewNetworkProber builds the default prober from config.
func NewNetworkProber(cfg types.ValidateConf) *NetworkProber {
	timeout := 10 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &NetworkProber{
		cfg:     cfg,
		timeout: timeout,
		direct:  &http.Client{Timeout: timeout},
	}
}

// clientThrough builds an HTTP client that routes through the candidate
// endpoint, according to its protocol.
func (np *NetworkProber) clientThrough(e *model.Endpoint) (*http.Client, error) {
	transport := &http.Transport{
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
		IdleConnTimeout:     np.timeout,
		TLSHandshakeTimeout: np.timeout / 2,
		DisableKeepAlives:   true,
	}

	switch e.Protocol {
	case model.ProtocolSOCKS5:
		dialer, err := proxy.SOCKS5("tcp", e.Address(), nil, &net.Dialer{Timeout: np.timeout})
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		contextDialer := dialer.(proxy.ContextDialer)
		transport.DialContext = contextDialer.DialContext
	case model.ProtocolSOCKS4:
		dial := socks.Dial(fmt.Sprintf("socks4://%s?timeout=%s", e.Address(), np.timeout))
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dial(network, addr)
		}
	case model.ProtocolHTTP, model.ProtocolHTTPS, "":
		proxyURL, err := url.Parse(fmt.Sprintf("http://%s", e.Address()))
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
		dialer := &net.Dialer{Timeout: np.timeout, KeepAlive: 30 * time.Second}
		transport.DialContext = dialer.DialContext
	default:
		return nil, fmt.Errorf("unsupported protocol %q", e.Protocol)
	}

	return &http.Client{Transport: transport, Timeout: np.timeout}, nil
}

// Connectivity attempts one bounded round-trip through the endpoint to
// the configured target.
func (np *NetworkProber) Connectivity(ctx context.Context, e *model.Endpoint) *model.ConnectivityResult {
	result := &model.ConnectivityResult{}

	client, err := np.clientThrough(e)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	started := time.Now()
	status, _, err := fetchThrough(ctx, client, np.cfg.ConnectTarget, 0)
	result.RTT = time.Since(started)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.StatusCode = status
	if status < 200 || status >= 400 {
		result.Error = fmt.Sprintf("received non-successful status code: %d", status)
		return result
	}

	result.Success = true
	return result
}

// Speed measures latency and bounded download throughput with repeated
// short probes; stability is the success ratio across attempts.
func (np *NetworkProber) Speed(ctx context.Context, e *model.Endpoint) *model.SpeedResult {
	result := &model.SpeedResult{}

	client, err := np.clientThrough(e)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	attempts := np.cfg.SpeedAttempts
	if attempts <= 0 {
		attempts = 3
	}

	var (
		successes  int
		totalRTT   time.Duration
		totalBytes int64
		totalTime  time.Duration
		lastErr    string
	)
	for i := 0; i < attempts; i++ {
		started := time.Now()
		status, n, err := fetchThrough(ctx, client, np.cfg.SpeedTarget, maxDownloadBytes)
		elapsed := time.Since(started)
		if err != nil {
			lastErr = err.Error()
			continue
		}
		if status < 200 || status >= 400 {
			lastErr = fmt.Sprintf("received non-successful status code: %d", status)
			continue
		}
		successes++
		totalRTT += elapsed
		totalBytes += n
		totalTime += elapsed
	}

	result.Stability = float64(successes) / float64(attempts)
	if successes == 0 {
		result.Error = lastErr
		return result
	}

	result.Success = true
	result.AvgLatency = totalRTT / time.Duration(successes)
	if totalTime > 0 {
		result.ThroughputKBps = float64(totalBytes) / 1024 / totalTime.Seconds()
	}
	return result
}

// geoResponse is the ip-api style JSON shape.
type geoResponse struct {
	Status  string `json:"status"`
	Country string `json:"country"`
	Query   string `json:"query"` // the IP the service observed
}

// Geolocation compares the caller's real egress location against the
// apparent location seen through the endpoint. A mismatch, or failure to
// resolve an apparent location at all, raises the endpoint's risk.
func (np *NetworkProber) Geolocation(ctx context.Context, e *model.Endpoint) *model.GeoResult {
	result := &model.GeoResult{}

	realCountry, _ := np.selfLookup(ctx)
	result.RealCountry = realCountry

	client, err := np.clientThrough(e)
	if err != nil {
		result.Mismatch = true
		result.Error = err.Error()
		return result
	}

	apparent, err := np.geoLookup(ctx, client)
	if err != nil {
		result.Mismatch = true
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.ApparentCountry = apparent.Country
	switch {
	case apparent.Country == "":
		// Unresolvable apparent location is itself a consistency risk.
		result.Mismatch = true
	case e.DeclaredCountry != "" && !strings.EqualFold(e.DeclaredCountry, apparent.Country):
		result.Mismatch = true
	}
	return result
}

// echoResponse is the httpbin-style echo shape: the origin address the
// remote service observed plus the request headers it received.
type echoResponse struct {
	Origin  string            `json:"origin"`
	Headers map[string]string `json:"headers"`
}

// Anonymity classifies the endpoint by what a remote echo service
// observes when called through it.
func (np *NetworkProber) Anonymity(ctx context.Context, e *model.Endpoint) *model.AnonymityResult {
	result := &model.AnonymityResult{Level: model.AnonymityUnknown}

	_, realIP := np.selfLookup(ctx)

	client, err := np.clientThrough(e)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	echo, err := np.echoLookup(ctx, client)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Success = true

	if realIP != "" && strings.Contains(echo.Origin, realIP) {
		result.Level = model.AnonymityTransparent
		return result
	}

	for _, name := range forwardingHeaders {
		for key := range echo.Headers {
			if strings.EqualFold(key, name) {
				result.LeakedHeaders = append(result.LeakedHeaders, name)
			}
		}
	}
	if len(result.LeakedHeaders) > 0 {
		result.Level = model.AnonymityAnonymous
		return result
	}

	if realIP == "" {
		// Without knowing our own address we cannot prove elite.
		result.Level = model.AnonymityAnonymous
		return result
	}
	result.Level = model.AnonymityElite
	return result
}

// selfLookup resolves the caller's real egress country and address and
// caches the first successful answer. A failed lookup is not cached, so
// a transient outage at the geo service only degrades the probes that
// ran during it.
func (np *NetworkProber) selfLookup(ctx context.Context) (country, ip string) {
	np.selfMu.Lock()
	defer np.selfMu.Unlock()
	if np.selfResolved {
		return np.realCountry, np.realIP
	}

	geo, err := np.geoLookup(ctx, np.direct)
	if err != nil {
		lg := logger.WithComponent("Pool/Validate")
		lg.Warn().Err(err).Msg("Failed to resolve real egress location.")
		return "", ""
	}
	np.selfResolved = true
	np.realCountry = geo.Country
	np.realIP = geo.Query
	return np.realCountry, np.realIP
}

func (np *NetworkProber) geoLookup(ctx context.Context, client *http.Client) (*geoResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", np.cfg.GeoAPI, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var geo geoResponse
	if err := json.NewDecoder(resp.Body).Decode(&geo); err != nil {
		return nil, fmt.Errorf("failed to decode geo response: %w", err)
	}
	if geo.Status != "" && geo.Status != "success" {
		return nil, fmt.Errorf("geo service returned status %q", geo.Status)
	}
	return &geo, nil
}

func (np *NetworkProber) echoLookup(ctx context.Context, client *http.Client) (*echoResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", np.cfg.EchoAPI, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var echo echoResponse
	if err := json.NewDecoder(resp.Body).Decode(&echo); err != nil {
		return nil, fmt.Errorf("failed to decode echo response: %w", err)
	}
	return &echo, nil
}

// fetchThrough performs one GET, reading at most maxBody bytes of the
// response (0 means discard immediately). Returns status and bytes read.
func fetchThrough(ctx context.Context, client *http.Client, target string, maxBody int64) (int, int64, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", target, nil)
	if err != nil {
		return 0, 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	var n int64
	if maxBody > 0 {
		n, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
	}
	return resp.StatusCode, n, nil
}
