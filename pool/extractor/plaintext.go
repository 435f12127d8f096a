package extractor

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"proxynexus/internal/shared/logger"
	"proxynexus/internal/shared/types"
	"proxynexus/pool/model"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36"

// PlaintextExtractor handles sources that serve one "host:port" per line,
// the format used by proxyscrape-style APIs and raw GitHub lists.
type PlaintextExtractor struct {
	profile *types.SourceProfile
	client  *http.Client
}

// NewPlaintextExtractor builds the extractor, honoring the profile's
// timeout and optional forward proxy for the fetch itself.
func NewPlaintextExtractor(profile *types.SourceProfile) (Extractor, error) {
	client, err := newFetchClient(profile)
	if err != nil {
		return nil, err
	}
	return &PlaintextExtractor{profile: profile, client: client}, nil
}

func (s *PlaintextExtractor) Name() string {
	return s.profile.Name
}

func (s *PlaintextExtractor) Extract(ctx context.Context) ([]*model.Endpoint, error) {
	l := logger.WithComponent("Pool/Extractor")
	l.Info().Str("source", s.Name()).Msg("Starting extraction...")

	req, err := http.NewRequestWithContext(ctx, "GET", s.profile.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", s.Name(), err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch list for %s: %w", s.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("received non-200 status code (%d) from %s", resp.StatusCode, s.Name())
	}

	protocol := s.profile.Protocol
	if protocol == "" {
		protocol = model.ProtocolHTTP
	}

	var endpoints []*model.Endpoint
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		host, portStr, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		port, err := strconv.Atoi(strings.TrimSpace(portStr))
		if err != nil || port <= 0 || port > 65535 {
			l.Warn().Str("line", line).Str("source", s.Name()).Msg("Failed to parse port, skipping line.")
			continue
		}

		endpoints = append(endpoints, &model.Endpoint{
			Host:     strings.TrimSpace(host),
			Port:     port,
			Protocol: protocol,
			Source:   s.Name(),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read list for %s: %w", s.Name(), err)
	}

	l.Info().Int("count", len(endpoints)).Str("source", s.Name()).Msg("Extraction finished.")
	return endpoints, nil
}

// newFetchClient builds the HTTP client shared by the plain extractors.
// Some sources sit behind a WAF and are only reachable through a known
// forward proxy, configured per profile.
func newFetchClient(profile *types.SourceProfile) (*http.Client, error) {
	timeout := 20 * time.Second
	if profile.TimeoutSeconds > 0 {
		timeout = time.Duration(profile.TimeoutSeconds) * time.Second
	}

	transport := &http.Transport{}
	if profile.ProxyURL != "" {
		proxyURL, err := url.Parse(profile.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid fetch proxy URL for %s: %w", profile.Name, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &http.Client{Transport: transport, Timeout: timeout}, nil
}
