package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Health is the result of a consistency check between the manifest and the
// engine.
type Health struct {
	Engine string `json:"engine"`

	// Healthy collections hold as many documents as the manifest records.
	Healthy []string `json:"healthy"`
	// Empty collections are reserved but hold no documents.
	Empty []string `json:"empty"`
	// Inconsistent collections are missing from the engine or disagree
	// with the manifest's document count.
	Inconsistent []string          `json:"inconsistent"`
	Details      map[string]string `json:"details,omitempty"`

	CheckedAt time.Time     `json:"checked_at"`
	Duration  time.Duration `json:"duration"`
}

// IsHealthy reports whether no collection is inconsistent.
func (h *Health) IsHealthy() bool {
	return len(h.Inconsistent) == 0
}

// Health pings the engine and manifest, then compares every manifest row
// with the engine's document count. It returns an error only when the
// engine or manifest is unreachable.
func (s *Store) Health(ctx context.Context) (*Health, error) {
	start := time.Now()
	h := &Health{
		Engine:       s.engine.Name(),
		Healthy:      []string{},
		Empty:        []string{},
		Inconsistent: []string{},
		Details:      map[string]string{},
		CheckedAt:    start.UTC(),
	}

	if err := s.engine.Ping(ctx); err != nil {
		HealthStatus.Set(0)
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	if err := s.manifest.ping(ctx); err != nil {
		HealthStatus.Set(0)
		return nil, fmt.Errorf("manifest unavailable: %w", err)
	}

	infos, err := s.manifest.list(ctx)
	if err != nil {
		HealthStatus.Set(0)
		return nil, err
	}
	for _, info := range infos {
		count, err := s.engine.Count(ctx, info.Collection)
		switch {
		case errors.Is(err, ErrCollectionNotFound):
			if info.DocCount == 0 {
				h.Empty = append(h.Empty, info.Repo)
				continue
			}
			h.Inconsistent = append(h.Inconsistent, info.Repo)
			h.Details[info.Repo] = "collection missing from engine"
		case err != nil:
			h.Inconsistent = append(h.Inconsistent, info.Repo)
			h.Details[info.Repo] = "error: " + err.Error()
		case count != info.DocCount:
			h.Inconsistent = append(h.Inconsistent, info.Repo)
			h.Details[info.Repo] = fmt.Sprintf("manifest records %d documents, engine holds %d", info.DocCount, count)
		case count == 0:
			h.Empty = append(h.Empty, info.Repo)
		default:
			h.Healthy = append(h.Healthy, info.Repo)
		}
	}
	h.Duration = time.Since(start)

	CollectionsByStatus.WithLabelValues("healthy").Set(float64(len(h.Healthy)))
	CollectionsByStatus.WithLabelValues("empty").Set(float64(len(h.Empty)))
	CollectionsByStatus.WithLabelValues("inconsistent").Set(float64(len(h.Inconsistent)))
	CollectionsGauge.WithLabelValues(h.Engine).Set(float64(len(infos)))
	if h.IsHealthy() {
		HealthStatus.Set(1)
	} else {
		HealthStatus.Set(0)
	}
	return h, nil
}
