package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"proxynexus/internal/shared/logger"
	"proxynexus/internal/shared/types"
	"proxynexus/pool/model"
)

// JSONAPIExtractor handles sources that embed their endpoint list as a
// JSON array inside a JavaScript variable, a pattern common on sites that
// render the table client-side.
type JSONAPIExtractor struct {
	profile *types.SourceProfile
	timeout time.Duration
	matcher *regexp.Regexp
}

// embeddedEndpoint is the wire shape inside the embedded JSON array.
// Ports arrive as strings on most of these sites.
type embeddedEndpoint struct {
	IP   string `json:"ip"`
	Port string `json:"port"`
}

// NewJSONAPIExtractor builds the extractor for one embedded-JSON source.
func NewJSONAPIExtractor(profile *types.SourceProfile) (Extractor, error) {
	timeout := 20 * time.Second
	if profile.TimeoutSeconds > 0 {
		timeout = time.Duration(profile.TimeoutSeconds) * time.Second
	}

	jsonVar := profile.JSONVar
	if jsonVar == "" {
		jsonVar = "fpsList"
	}
	matcher, err := regexp.Compile(`(var|let|const)\s+` + regexp.QuoteMeta(jsonVar) + `\s*=\s*(\[.*?\]);`)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonVar for %s: %w", profile.Name, err)
	}

	return &JSONAPIExtractor{profile: profile, timeout: timeout, matcher: matcher}, nil
}

func (s *JSONAPIExtractor) Name() string {
	return s.profile.Name
}

// Extract fetches the page with a fresh collector. Colly marks URLs
// visited even when the request fails, so reusing one collector would
// make every retry after a transient error fail with "already visited";
// a per-call collector keeps the source retryable.
func (s *JSONAPIExtractor) Extract(ctx context.Context) ([]*model.Endpoint, error) {
	l := logger.WithComponent("Pool/Extractor")
	l.Info().Str("source", s.Name()).Msg("Starting extraction...")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	collector := colly.NewCollector(
		colly.UserAgent(defaultUserAgent),
	)
	collector.SetRequestTimeout(s.timeout)

	protocol := s.profile.Protocol
	if protocol == "" {
		protocol = model.ProtocolHTTP
	}

	var endpoints []*model.Endpoint
	var extractErr error
	var mu sync.Mutex // colly callbacks may run concurrently

	collector.OnResponse(func(r *colly.Response) {
		matches := s.matcher.FindSubmatch(r.Body)
		if len(matches) < 3 {
			l.Warn().Str("url", r.Request.URL.String()).Str("source", s.Name()).Msg("Could not find embedded JSON variable in response body.")
			return
		}

		var tempList []*embeddedEndpoint
		if err := json.Unmarshal(matches[2], &tempList); err != nil {
			l.Warn().Err(err).Str("url", r.Request.URL.String()).Msg("Failed to unmarshal embedded JSON.")
			mu.Lock()
			extractErr = err
			mu.Unlock()
			return
		}

		mu.Lock()
		defer mu.Unlock()

		for _, p := range tempList {
			host := strings.TrimSpace(p.IP)
			port, err := strconv.Atoi(strings.TrimSpace(p.Port))
			if err != nil {
				l.Warn().Str("host", host).Str("port", p.Port).Str("source", s.Name()).Msg("Failed to parse port, skipping.")
				continue
			}

			endpoints = append(endpoints, &model.Endpoint{
				Host:     host,
				Port:     port,
				Protocol: protocol,
				Source:   s.Name(),
			})
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		l.Error().Err(err).Int("status_code", r.StatusCode).Str("url", r.Request.URL.String()).Msg("Extraction request failed.")
		mu.Lock()
		extractErr = err
		mu.Unlock()
	})

	if err := collector.Visit(s.profile.URL); err != nil {
		return nil, fmt.Errorf("failed to visit %s: %w", s.profile.URL, err)
	}
	collector.Wait()

	if extractErr != nil {
		return nil, extractErr
	}

	l.Info().Int("count", len(endpoints)).Str("source", s.Name()).Msg("Extraction finished.")
	return endpoints, nil
}
