package replay

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"cloudtrail-sentry/internal/alerting"
	"cloudtrail-sentry/internal/cloudtrail"
	"cloudtrail-sentry/internal/metrics"
	"cloudtrail-sentry/internal/sentry"
)

// Summary aggregates a replay run.
type Summary struct {
	Source           string             `json:"source"`
	Files            int                `json:"files"`
	FailedFiles      int                `json:"failed_files"`
	Records          int                `json:"records"`
	Interesting      int                `json:"interesting"`
	Published        int                `json:"published"`
	DeliveryFailures int                `json:"delivery_failures"`
	ByRule           map[string]int     `json:"by_rule"`
	Alerts           []*alerting.Record `json:"alerts"`
	Duration         time.Duration      `json:"duration"`
}

// Runner replays log files through a pipeline with a fixed number of workers, one
// file per worker at a time.
type Runner struct {
	pipeline    *sentry.Pipeline
	concurrency int
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewRunner creates a runner. concurrency below 1 means 1.
func NewRunner(p *sentry.Pipeline, concurrency int) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		pipeline:    p,
		concurrency: concurrency,
		logger:      slog.Default(),
	}
}

// WithMetrics sets the metrics sink.
func (r *Runner) WithMetrics(m *metrics.Metrics) *Runner {
	r.metrics = m
	return r
}

// WithLogger sets the logger.
func (r *Runner) WithLogger(logger *slog.Logger) *Runner {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// Run replays every file in src. Unreadable files are logged and counted; only a
// failed listing or a cancelled ctx is an error.
func (r *Runner) Run(ctx context.Context, src Source) (*Summary, error) {
	start := time.Now()

	keys, err := src.List(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Source: src.Name(),
		Files:  len(keys),
		ByRule: make(map[string]int),
	}
	r.logger.Info("replay started", "source", src.Name(), "files", len(keys), "workers", r.concurrency)

	var mu sync.Mutex
	work := make(chan string)
	var wg sync.WaitGroup

	for i := 0; i < r.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range work {
				results, err := r.replayFile(ctx, src, key)

				mu.Lock()
				if err != nil {
					summary.FailedFiles++
				}
				for _, res := range results {
					summary.add(res)
				}
				mu.Unlock()
			}
		}()
	}

dispatch:
	for _, key := range keys {
		select {
		case work <- key:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(work)
	wg.Wait()

	sort.Slice(summary.Alerts, func(i, j int) bool {
		if summary.Alerts[i].EventTime != summary.Alerts[j].EventTime {
			return summary.Alerts[i].EventTime < summary.Alerts[j].EventTime
		}
		return summary.Alerts[i].ID < summary.Alerts[j].ID
	})
	summary.Duration = time.Since(start)

	r.logger.Info("replay finished",
		"source", summary.Source,
		"files", summary.Files,
		"failed_files", summary.FailedFiles,
		"records", summary.Records,
		"interesting", summary.Interesting,
		"published", summary.Published,
		"duration", summary.Duration,
	)

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("replay interrupted: %w", err)
	}
	return summary, nil
}

func (r *Runner) replayFile(ctx context.Context, src Source, key string) ([]*sentry.Result, error) {
	body, err := src.Open(ctx, key)
	if err != nil {
		r.logger.Warn("skipping log file", "file", key, "error", err)
		r.metrics.ObserveReplay("invalid")
		return nil, err
	}
	defer body.Close()

	records, err := ReadRecords(body)
	if err != nil {
		r.logger.Warn("skipping log file", "file", key, "error", err)
		r.metrics.ObserveReplay("invalid")
		return nil, err
	}

	results := make([]*sentry.Result, 0, len(records))
	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		res := r.pipeline.Handle(ctx, cloudtrail.NewEnvelope("", "", rec))
		if res.Interesting {
			r.metrics.ObserveReplay("interesting")
		} else {
			r.metrics.ObserveReplay("evaluated")
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Summary) add(res *sentry.Result) {
	s.Records++
	if !res.Interesting {
		return
	}
	s.Interesting++
	s.ByRule[res.Alert.RuleID]++
	s.Alerts = append(s.Alerts, res.Alert)
	if res.Published {
		s.Published++
	}
	if res.DeliveryError != "" {
		s.DeliveryFailures++
	}
}
