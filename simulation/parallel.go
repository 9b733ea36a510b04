package simulation

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"

	"go.uber.org/multierr"

	"github.com/signalnine/dilemmalab/config"
	"github.com/signalnine/dilemmalab/engine"
	"github.com/signalnine/dilemmalab/strategy"
)

// ReplicateJob is one run of a replicate batch.
type ReplicateJob struct {
	Index int
	Seed  int64
}

// ReplicateResult is the outcome of one ReplicateJob.
type ReplicateResult struct {
	Index   int
	Seed    int64
	Results *engine.Results
	Err     error
}

// StrategySummary aggregates one strategy's final stats across replicates.
type StrategySummary struct {
	Runs               int     `json:"runs"`
	MeanScore          float64 `json:"mean_score"`
	MinScore           float64 `json:"min_score"`
	MaxScore           float64 `json:"max_score"`
	MeanSustainability float64 `json:"mean_sustainability"`
	MeanWelfare        float64 `json:"mean_welfare"`
}

// ReplicateSummary aggregates a batch of independent runs of one configuration.
type ReplicateSummary struct {
	GameType     engine.GameType             `json:"game_type"`
	Replicates   int                         `json:"replicates"`
	Errors       int                         `json:"errors"`
	FailedRounds int                         `json:"failed_rounds"`
	Seeds        []int64                     `json:"seeds"`
	Strategies   map[string]*StrategySummary `json:"strategies"`
}

// RunReplicates runs n independent simulations of cfg on a pool of workers.
// Each replicate builds its own engine, seeded from a sequence derived from
// seed, so a batch is reproducible regardless of the worker count.
// workers <= 0 uses one worker per CPU.
func RunReplicates(cfg *config.Config, reg *strategy.Registry, n, workers int, seed int64, logger *slog.Logger) (ReplicateSummary, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if n <= 0 {
		return ReplicateSummary{}, fmt.Errorf("replicates must be positive, got %d", n)
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}
	if err := Validate(cfg, reg); err != nil {
		return ReplicateSummary{}, err
	}

	// Seeds are drawn up front so the batch does not depend on scheduling.
	rng := rand.New(rand.NewSource(seed))
	seeds := make([]int64, n)
	for i := range seeds {
		seeds[i] = rng.Int63()
	}

	jobs := make(chan ReplicateJob, n)
	results := make(chan ReplicateResult, n)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go replicateWorker(&wg, jobs, results, cfg, reg, logger)
	}

	for i, s := range seeds {
		jobs <- ReplicateJob{Index: i, Seed: s}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	collected := make([]ReplicateResult, n)
	for r := range results {
		collected[r.Index] = r
	}

	logger.Info("replicates complete", "replicates", n, "workers", workers)
	return aggregateReplicates(collected, seeds)
}

func replicateWorker(wg *sync.WaitGroup, jobs <-chan ReplicateJob, results chan<- ReplicateResult, cfg *config.Config, reg *strategy.Registry, logger *slog.Logger) {
	defer wg.Done()

	for job := range jobs {
		result := ReplicateResult{Index: job.Index, Seed: job.Seed}
		sim, err := New(cfg, reg, WithSeed(job.Seed), WithLogger(logger))
		if err != nil {
			result.Err = fmt.Errorf("replicate %d: %w", job.Index, err)
		} else {
			result.Results = sim.Run()
		}
		results <- result
	}
}

// aggregateReplicates folds results in replicate order so the summary is
// deterministic.
func aggregateReplicates(results []ReplicateResult, seeds []int64) (ReplicateSummary, error) {
	summary := ReplicateSummary{
		Replicates: len(results),
		Seeds:      seeds,
		Strategies: make(map[string]*StrategySummary),
	}

	var errs error
	for _, r := range results {
		if r.Err != nil {
			summary.Errors++
			errs = multierr.Append(errs, r.Err)
			continue
		}
		res := r.Results
		if summary.GameType == "" {
			summary.GameType = res.GameType
		}
		for _, rec := range res.Rounds {
			if rec.Error != "" {
				summary.FailedRounds++
			}
		}
		if res.Error != "" || res.FinalStats.Error != "" {
			summary.Errors++
			continue
		}

		names := make([]string, 0, len(res.FinalStats.Strategies))
		for name := range res.FinalStats.Strategies {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			out := res.FinalStats.Strategies[name]
			s, ok := summary.Strategies[name]
			if !ok {
				s = &StrategySummary{MinScore: math.Inf(1), MaxScore: math.Inf(-1)}
				summary.Strategies[name] = s
			}
			s.Runs++
			s.MeanScore += out.Score
			s.MeanSustainability += out.SustainabilityImpact
			s.MeanWelfare += out.SocialWelfare
			s.MinScore = math.Min(s.MinScore, out.Score)
			s.MaxScore = math.Max(s.MaxScore, out.Score)
		}
	}

	for _, s := range summary.Strategies {
		k := float64(s.Runs)
		s.MeanScore /= k
		s.MeanSustainability /= k
		s.MeanWelfare /= k
	}
	return summary, errs
}
