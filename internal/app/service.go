// Package service runs the record-aggregation pipeline: one paced lookup per
// catalog map, joined with the catalog metadata into a records table and a
// failed-maps table.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/tempusrecords/internal/domain/model"
	"github.com/okian/tempusrecords/pkg/logger"
	"github.com/okian/tempusrecords/pkg/metrics"
)

// Fetcher looks up a player's record on one map. Implementations never fail
// past their boundary; every problem is a model.Failure.
type Fetcher interface {
	Fetch(ctx context.Context, player model.PlayerID, class model.Class, entry model.MapEntry) model.Outcome
}

// Progress is a snapshot of the current or last run.
type Progress struct {
	RunID   string `json:"run_id"`
	Player  string `json:"player_id"`
	Class   string `json:"class"`
	Done    int    `json:"done"`
	Total   int    `json:"total"`
	Records int    `json:"records"`
	Failed  int    `json:"failed"`
	Running bool   `json:"running"`
}

// Service aggregates per-map outcomes in catalog order.
type Service struct {
	fetcher Fetcher
	logger  logger.Logger
	now     func() time.Time
	newID   func() string

	mu       sync.Mutex
	progress Progress
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRunIDs replaces the run id generator.
func WithRunIDs(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// New constructs a Service around a fetcher.
func New(fetcher Fetcher, opts ...Option) *Service {
	s := &Service{
		fetcher: fetcher,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("aggregator")
	}
	return s
}

// Run fetches every catalog map for the player and splits the outcomes into
// records and failures. A failing map never stops the run; a canceled
// context does, and then no result is returned.
func (s *Service) Run(ctx context.Context, player model.PlayerID, class model.Class, catalog []model.MapEntry) (model.RunResult, error) {
	if err := checkUnique(catalog); err != nil {
		return model.RunResult{}, err
	}

	res := model.RunResult{
		RunID:     s.newID(),
		PlayerID:  player,
		Class:     class,
		Records:   make([]model.ReportRow, 0, len(catalog)),
		Failed:    make([]model.FailedMapRow, 0),
		StartedAt: s.now(),
	}
	log := s.logger.With(
		logger.String("runID", res.RunID),
		logger.String("player", player.String()),
		logger.String("class", class.Label()),
	)
	metrics.UpdateCatalogMaps(len(catalog))
	metrics.UpdateMapsProcessed(0)
	s.setProgress(func(p *Progress) {
		*p = Progress{RunID: res.RunID, Player: player.String(), Class: class.Label(), Total: len(catalog), Running: true}
	})
	defer s.setProgress(func(p *Progress) { p.Running = false })
	log.Info(ctx, "run started", logger.Int("maps", len(catalog)))

	total := len(catalog)
	for i, entry := range catalog {
		if err := ctx.Err(); err != nil {
			return model.RunResult{}, s.abort(ctx, log, i, total, err)
		}

		out := s.fetcher.Fetch(ctx, player, class, entry)
		progress := fmt.Sprintf("[%d/%d]", i+1, total)

		switch o := out.(type) {
		case model.Success:
			res.Records = append(res.Records, model.ReportRow{
				MapName: entry.Name,
				Tier:    entry.Tier,
				MapRank: entry.MapRank,
				Time:    o.Time,
				Rank:    o.Rank,
			})
			log.Info(ctx, progress+" "+entry.Name,
				logger.Float64("time", o.Time),
				logger.Int("rank", o.Rank),
				logger.Int("attempts", o.Attempts),
			)
		case model.Failure:
			if o.Reason == model.ReasonCanceled && ctx.Err() != nil {
				return model.RunResult{}, s.abort(ctx, log, i, total, ctx.Err())
			}
			res.Failed = append(res.Failed, model.FailedMapRow{
				MapName: entry.Name,
				Tier:    entry.Tier,
				MapRank: entry.MapRank,
				Reason:  o.Reason,
			})
			fields := []logger.Field{
				logger.String("reason", string(o.Reason)),
				logger.Int("attempts", o.Attempts),
			}
			if entry.ID != 0 {
				fields = append(fields, logger.Int64("map_id", entry.ID))
			}
			if o.Err != nil {
				fields = append(fields, logger.Error(o.Err))
			}
			log.Warn(ctx, progress+" "+entry.Name+": no time", fields...)
		default:
			return model.RunResult{}, fmt.Errorf("map %q: unexpected outcome %T", entry.Name, out)
		}
		metrics.UpdateMapsProcessed(i + 1)
		s.setProgress(func(p *Progress) {
			p.Done, p.Records, p.Failed = i+1, len(res.Records), len(res.Failed)
		})
	}

	if err := checkPartition(catalog, res); err != nil {
		metrics.RecordErrorByComponent("aggregator", "partition")
		return model.RunResult{}, err
	}

	res.FinishedAt = s.now()
	elapsed := res.FinishedAt.Sub(res.StartedAt)
	metrics.RecordRunCompleted(elapsed.Seconds(), res.FinishedAt.Unix())

	fields := []logger.Field{
		logger.Int("maps", res.Total()),
		logger.Int("records", len(res.Records)),
		logger.Int("failed", len(res.Failed)),
		logger.Duration("elapsed", elapsed),
	}
	byReason := res.FailuresByReason()
	for _, reason := range model.FailureReasons() {
		if n := byReason[reason]; n > 0 {
			fields = append(fields, logger.Int("failed_"+string(reason), n))
		}
	}
	log.Info(ctx, "run finished", fields...)

	return res, nil
}

// Progress returns a snapshot of the current or last run. It is safe to
// call while Run is in progress.
func (s *Service) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

func (s *Service) setProgress(update func(*Progress)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	update(&s.progress)
}

func (s *Service) abort(ctx context.Context, log logger.Logger, done, total int, cause error) error {
	metrics.RecordErrorByComponent("aggregator", "canceled")
	log.Warn(ctx, "run canceled, no output produced",
		logger.Int("processed", done),
		logger.Int("maps", total),
	)
	return fmt.Errorf("%w after %d of %d maps: %w", ErrRunCanceled, done, total, cause)
}

func checkUnique(catalog []model.MapEntry) error {
	seen := make(map[string]struct{}, len(catalog))
	for _, e := range catalog {
		if _, ok := seen[e.Name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateMap, e.Name)
		}
		seen[e.Name] = struct{}{}
	}
	return nil
}

// checkPartition verifies every catalog name lands in exactly one table, in
// catalog order.
func checkPartition(catalog []model.MapEntry, res model.RunResult) error {
	if res.Total() != len(catalog) {
		return fmt.Errorf("%w: %d rows for %d maps", ErrPartition, res.Total(), len(catalog))
	}
	r, f := 0, 0
	for _, e := range catalog {
		switch {
		case r < len(res.Records) && res.Records[r].MapName == e.Name:
			r++
		case f < len(res.Failed) && res.Failed[f].MapName == e.Name:
			f++
		default:
			return fmt.Errorf("%w: map %q missing or out of order", ErrPartition, e.Name)
		}
	}
	return nil
}
