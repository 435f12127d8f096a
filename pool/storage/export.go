package storage

import (
	"context"
	"os"
	"sort"
	"strconv"
	"strings"

	"proxynexus/internal/shared/logger"
	"proxynexus/pool/model"
)

const exportDelimiter = "|"

// ExportEndpoints writes the whole pool to a pipe-delimited text file,
// one endpoint per line sorted by id, for consumption by external tools.
// Returns the number of lines written.
func (s *Store) ExportEndpoints(ctx context.Context, filePath string) (int, error) {
	l := logger.WithComponent("Storage")

	records, err := s.ListEndpoints(ctx, 1<<30)
	if err != nil {
		return 0, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].ID < records[j].ID
	})

	var sb strings.Builder
	for _, r := range records {
		sb.WriteString(formatExportLine(r))
		sb.WriteString("\n")
	}

	if err := os.WriteFile(filePath, []byte(sb.String()), 0644); err != nil {
		return 0, err
	}

	l.Info().Int("count", len(records)).Str("path", filePath).Msg("Exported endpoints to file.")
	return len(records), nil
}

// formatExportLine renders one record as
// id|host|port|protocol|source|country|score|anonymity|latency_ms|success|failure|last_checked.
func formatExportLine(r *model.EndpointRecord) string {
	lastChecked := int64(0)
	if !r.LastChecked.IsZero() {
		lastChecked = r.LastChecked.Unix()
	}
	return strings.Join([]string{
		r.ID,
		r.Host,
		strconv.Itoa(r.Port),
		r.Protocol,
		r.Source,
		strings.ReplaceAll(r.DeclaredCountry, exportDelimiter, " "),
		strconv.FormatFloat(r.Score, 'f', 1, 64),
		r.Anonymity,
		strconv.FormatInt(r.Latency.Milliseconds(), 10),
		strconv.Itoa(r.SuccessCount),
		strconv.Itoa(r.FailureCount),
		strconv.FormatInt(lastChecked, 10),
	}, exportDelimiter)
}
