package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"proxynexus/internal/shared/types"
	"proxynexus/pool/coordinator"
	"proxynexus/pool/model"
	"proxynexus/pool/storage"
	"proxynexus/pool/validate"
)

// extractionResult is the stored result payload of an extraction task.
type extractionResult struct {
	Sources   int                    `json:"sources"`
	SourcesOK int                    `json:"sources_ok"`
	Found     int                    `json:"found"`
	Unique    int                    `json:"unique"`
	Persisted int                    `json:"persisted"`
	Stats     *model.ExtractionStats `json:"stats"`
}

// validationResult is the stored result payload of a validation or
// maintenance task.
type validationResult struct {
	Validated  int `json:"validated"`
	Accepted   int `json:"accepted"`
	Persisted  int `json:"persisted"`
	PoolSize   int `json:"pool_size"`
	FailedRuns int `json:"failed_runs"`
}

// BuildExecutors wires the task kinds to the coordinator, pipeline, and
// store. The returned map is handed to New; nothing here is global.
func BuildExecutors(
	coord *coordinator.Coordinator,
	pipeline *validate.Pipeline,
	store *storage.Store,
	vcfg types.ValidateConf,
) map[model.TaskKind]ExecutorFunc {
	return map[model.TaskKind]ExecutorFunc{
		model.TaskKindExtraction:  extractionExecutor(coord),
		model.TaskKindValidation:  validationExecutor(pipeline, store, vcfg, false),
		model.TaskKindMaintenance: validationExecutor(pipeline, store, vcfg, true),
		model.TaskKindCleanup:     cleanupExecutor(store, vcfg),
		model.TaskKindExport:      exportExecutor(store),
	}
}

// extractionExecutor runs the coordinator across the sources named in
// the task params ("sources", comma separated; empty means all enabled).
func extractionExecutor(coord *coordinator.Coordinator) ExecutorFunc {
	return func(ctx context.Context, task *model.Task) (any, error) {
		var names []string
		if raw := task.Param("sources", ""); raw != "" {
			for _, name := range strings.Split(raw, ",") {
				if name = strings.TrimSpace(name); name != "" {
					names = append(names, name)
				}
			}
		}

		stats, err := coord.CoordinateExtraction(ctx, names)
		if err != nil {
			return nil, err
		}
		return &extractionResult{
			Sources:   len(stats.Sources),
			SourcesOK: stats.Succeeded(),
			Found:     stats.TotalFound,
			Unique:    stats.Unique,
			Persisted: stats.Persisted,
			Stats:     stats,
		}, nil
	}
}

// validationExecutor validates a batch of stored endpoints and folds the
// outcomes back into the store. In maintenance mode the batch is the
// stale slice of the pool; otherwise params select explicit ids or a
// recently-unchecked batch of the given size.
func validationExecutor(pipeline *validate.Pipeline, store *storage.Store, vcfg types.ValidateConf, maintenance bool) ExecutorFunc {
	return func(ctx context.Context, task *model.Task) (any, error) {
		records, err := selectBatch(ctx, store, task, vcfg, maintenance)
		if err != nil {
			return nil, err
		}

		endpoints := make([]*model.Endpoint, len(records))
		for i, r := range records {
			endpoints[i] = r.Candidate()
		}

		maxConcurrent, _ := strconv.Atoi(task.Param("max_concurrent", "0"))
		outcomes := pipeline.ValidateBatch(ctx, endpoints, maxConcurrent)

		res := &validationResult{Validated: len(outcomes)}
		for _, o := range outcomes {
			if o.Acceptable {
				res.Accepted++
			}
			if o.Error != "" {
				res.FailedRuns++
			}
			if err := store.ApplyOutcome(ctx, o); err != nil {
				return nil, fmt.Errorf("failed to persist outcome for %s: %w", o.Endpoint.ID(), err)
			}
			res.Persisted++
		}
		if res.PoolSize, err = store.CountEndpoints(ctx); err != nil {
			return nil, err
		}
		return res, nil
	}
}

func selectBatch(ctx context.Context, store *storage.Store, task *model.Task, vcfg types.ValidateConf, maintenance bool) ([]*model.EndpointRecord, error) {
	limit := vcfg.RevalidateBatch
	if v, err := strconv.Atoi(task.Param("limit", "0")); err == nil && v > 0 {
		limit = v
	}

	if maintenance {
		staleAfter := time.Duration(vcfg.StaleAfterHours) * time.Hour
		if staleAfter <= 0 {
			staleAfter = 12 * time.Hour
		}
		return store.StaleEndpoints(ctx, time.Now().Add(-staleAfter), limit)
	}

	if raw := task.Param("ids", ""); raw != "" {
		var records []*model.EndpointRecord
		for _, id := range strings.Split(raw, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			r, err := store.GetEndpoint(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("endpoint %s: %w", id, err)
			}
			records = append(records, r)
		}
		return records, nil
	}

	// No explicit selection: validate the least recently checked slice,
	// which covers fresh candidates first (NULL last_checked sorts oldest).
	return store.StaleEndpoints(ctx, time.Now(), limit)
}

// cleanupExecutor evicts endpoints whose failure streak crossed the
// removal threshold.
func cleanupExecutor(store *storage.Store, vcfg types.ValidateConf) ExecutorFunc {
	return func(ctx context.Context, task *model.Task) (any, error) {
		threshold := vcfg.RemovalThreshold
		if v, err := strconv.Atoi(task.Param("threshold", "0")); err == nil && v > 0 {
			threshold = v
		}

		evicted, err := store.EvictFailing(ctx, threshold)
		if err != nil {
			return nil, err
		}
		remaining, err := store.CountEndpoints(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]int{"evicted": evicted, "remaining": remaining}, nil
	}
}

// exportExecutor writes the pool to a pipe-delimited text file.
func exportExecutor(store *storage.Store) ExecutorFunc {
	return func(ctx context.Context, task *model.Task) (any, error) {
		path := task.Param("path", filepath.Join(store.StateDir, "endpoints.txt"))
		count, err := store.ExportEndpoints(ctx, path)
		if err != nil {
			return nil, err
		}
		return map[string]any{"exported": count, "path": path}, nil
	}
}
