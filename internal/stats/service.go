package stats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opus-domini/catwatch/internal/backend"
	"github.com/opus-domini/catwatch/internal/clock"
)

type statisticsSource interface {
	Statistics(ctx context.Context, p backend.StatisticsParams) (backend.Statistics, error)
	StatisticsYears(ctx context.Context) ([]int, error)
}

type Result struct {
	Query   Query
	Aligned Aligned
	Summary Summary
}

type Service struct {
	api   statisticsSource
	clock clock.Clock
}

func NewService(api statisticsSource, c clock.Clock) *Service {
	if c == nil {
		c = clock.System{}
	}
	return &Service{api: api, clock: c}
}

// Load resolves q, fetches the raw series and aligns it.
func (s *Service) Load(ctx context.Context, q Query) (Result, error) {
	var years []int
	if q.Period == Yearly && (q.StartYear == 0 || q.EndYear == 0) {
		var err error
		if years, err = s.api.StatisticsYears(ctx); err != nil {
			slog.Warn("statistics years unavailable, using current year", "err", err)
		}
	}
	resolved, err := q.Resolve(s.clock.Now(), years)
	if err != nil {
		return Result{}, err
	}
	target, err := TargetLabels(resolved)
	if err != nil {
		return Result{}, err
	}
	raw, err := s.api.Statistics(ctx, resolved.Params())
	if err != nil {
		return Result{}, fmt.Errorf("load statistics for %s: %w", resolved.Cat, err)
	}
	aligned := AlignAll(target, raw)
	return Result{Query: resolved, Aligned: aligned, Summary: Summarize(aligned)}, nil
}
