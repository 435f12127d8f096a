package extractor

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"proxynexus/internal/shared/logger"
	"proxynexus/internal/shared/types"
	"proxynexus/pool/model"
)

// HTMLTableExtractor handles sources that publish their lists as an HTML
// table: host in the first cell, port in the second, optionally protocol
// in the third and country in the fourth.
type HTMLTableExtractor struct {
	profile *types.SourceProfile
	client  *http.Client
}

// NewHTMLTableExtractor builds the extractor for one table-style source.
func NewHTMLTableExtractor(profile *types.SourceProfile) (Extractor, error) {
	client, err := newFetchClient(profile)
	if err != nil {
		return nil, err
	}
	return &HTMLTableExtractor{profile: profile, client: client}, nil
}

func (s *HTMLTableExtractor) Name() string {
	return s.profile.Name
}

func (s *HTMLTableExtractor) Extract(ctx context.Context) ([]*model.Endpoint, error) {
	l := logger.WithComponent("Pool/Extractor")
	l.Info().Str("source", s.Name()).Msg("Starting extraction...")

	req, err := http.NewRequestWithContext(ctx, "GET", s.profile.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", s.Name(), err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page for %s: %w", s.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("received non-200 status code (%d) from %s", resp.StatusCode, s.Name())
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML for %s: %w", s.Name(), err)
	}

	rowSelector := s.profile.HostSelector
	if rowSelector == "" {
		rowSelector = "table tbody tr"
	}

	var endpoints []*model.Endpoint
	doc.Find(rowSelector).Each(func(j int, sel *goquery.Selection) {
		host := strings.TrimSpace(sel.Find("td").Eq(0).Text())
		portStr := strings.TrimSpace(sel.Find("td").Eq(1).Text())
		if host == "" || portStr == "" {
			return
		}

		port, err := strconv.Atoi(portStr)
		if err != nil {
			l.Warn().Str("host", host).Str("port", portStr).Str("source", s.Name()).Msg("Failed to parse port, skipping row.")
			return
		}

		protocol := strings.ToLower(strings.TrimSpace(sel.Find("td").Eq(2).Text()))
		switch protocol {
		case model.ProtocolHTTP, model.ProtocolHTTPS, model.ProtocolSOCKS4, model.ProtocolSOCKS5:
			// listed protocol is usable as-is
		default:
			protocol = s.profile.Protocol
			if protocol == "" {
				protocol = model.ProtocolHTTP
			}
		}

		endpoints = append(endpoints, &model.Endpoint{
			Host:            host,
			Port:            port,
			Protocol:        protocol,
			DeclaredCountry: strings.TrimSpace(sel.Find("td").Eq(3).Text()),
			Source:          s.Name(),
		})
	})

	l.Info().Int("count", len(endpoints)).Str("source", s.Name()).Msg("Extraction finished.")
	return endpoints, nil
}
