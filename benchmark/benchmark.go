// Package benchmark measures per-query latency across search backends under
// identical corpora and query sets. Build cost is timed separately from
// query cost and never included in per-query statistics.
package benchmark

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hupe1980/shindex/index"
)

// Backend names one index under measurement.
type Backend struct {
	Name  string
	Index index.Index
}

// Options contains configuration options for a benchmark run.
type Options struct {
	// Rounds is how many times the full query set is replayed per backend.
	Rounds int

	// Warmup is the number of untimed replays before measurement starts.
	Warmup int

	// SearchOptions is passed through to every search call.
	SearchOptions *index.SearchOptions
}

// DefaultOptions contains the default configuration options for a benchmark
// run.
var DefaultOptions = Options{
	Rounds: 10,
	Warmup: 2,
}

// Stats holds the per-backend latency statistics of a run.
type Stats struct {
	Name    string
	Queries int // total timed search calls
	Mean    time.Duration
	StdDev  time.Duration
	Min     time.Duration
	Max     time.Duration
	Total   time.Duration

	// Build is the one-time index construction cost, filled in by TimeBuild.
	// Zero when the backend was handed over already built.
	Build time.Duration
}

// Report is the outcome of a benchmark run.
type Report struct {
	K      int
	Rounds int
	Stats  []Stats
}

// TimeBuild runs a build function, times it, and returns the backend with the
// build cost attached for reporting.
func TimeBuild(name string, build func() (index.Index, error)) (Backend, time.Duration, error) {
	start := time.Now()
	idx, err := build()
	elapsed := time.Since(start)
	if err != nil {
		return Backend{}, 0, fmt.Errorf("benchmark: build %s: %w", name, err)
	}
	return Backend{Name: name, Index: idx}, elapsed, nil
}

// Run replays the query set against every backend and collects per-call
// wall-clock latency. Backends run one after another so measurements do not
// perturb each other.
func Run(ctx context.Context, backends []Backend, queries [][]float32, k int, optFns ...func(o *Options)) (*Report, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if len(backends) == 0 {
		return nil, &index.ErrInvalidParameter{Name: "backends", Reason: "at least one backend required"}
	}
	if len(queries) == 0 {
		return nil, &index.ErrInvalidParameter{Name: "queries", Reason: "at least one query required"}
	}
	if err := index.ValidateK(k); err != nil {
		return nil, err
	}
	if opts.Rounds < 1 {
		return nil, &index.ErrInvalidParameter{Name: "Rounds", Reason: fmt.Sprintf("must be >= 1, got %d", opts.Rounds)}
	}

	report := &Report{K: k, Rounds: opts.Rounds}

	for _, b := range backends {
		stats, err := runBackend(ctx, b, queries, k, opts)
		if err != nil {
			return nil, err
		}
		report.Stats = append(report.Stats, stats)
	}

	return report, nil
}

func runBackend(ctx context.Context, b Backend, queries [][]float32, k int, opts Options) (Stats, error) {
	for w := 0; w < opts.Warmup; w++ {
		for _, q := range queries {
			if _, err := b.Index.Search(ctx, q, k, opts.SearchOptions); err != nil {
				return Stats{}, fmt.Errorf("benchmark: %s warmup: %w", b.Name, err)
			}
		}
	}

	latencies := make([]time.Duration, 0, opts.Rounds*len(queries))
	for r := 0; r < opts.Rounds; r++ {
		for _, q := range queries {
			start := time.Now()
			_, err := b.Index.Search(ctx, q, k, opts.SearchOptions)
			elapsed := time.Since(start)
			if err != nil {
				return Stats{}, fmt.Errorf("benchmark: %s: %w", b.Name, err)
			}
			latencies = append(latencies, elapsed)
		}
	}

	return summarize(b.Name, latencies), nil
}

func summarize(name string, latencies []time.Duration) Stats {
	s := Stats{
		Name:    name,
		Queries: len(latencies),
		Min:     latencies[0],
		Max:     latencies[0],
	}

	for _, l := range latencies {
		s.Total += l
		if l < s.Min {
			s.Min = l
		}
		if l > s.Max {
			s.Max = l
		}
	}
	s.Mean = s.Total / time.Duration(len(latencies))

	var sq float64
	mean := float64(s.Mean)
	for _, l := range latencies {
		diff := float64(l) - mean
		sq += diff * diff
	}
	s.StdDev = time.Duration(math.Sqrt(sq / float64(len(latencies))))

	return s
}

// String renders the report as a fixed-width table.
func (r *Report) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "k=%d rounds=%d\n", r.K, r.Rounds)
	fmt.Fprintf(&sb, "%-10s %8s %12s %12s %12s %12s %12s\n",
		"backend", "queries", "mean", "stddev", "min", "max", "build")
	for _, s := range r.Stats {
		fmt.Fprintf(&sb, "%-10s %8d %12s %12s %12s %12s %12s\n",
			s.Name, s.Queries, s.Mean, s.StdDev, s.Min, s.Max, s.Build)
	}
	return sb.String()
}
