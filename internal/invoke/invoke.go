// Package invoke turns semantic grading requests into cached, validated AI
// results. Every operation follows the same shape: derive a cache key from
// the request's semantic parameters, probe the store, and only on a miss call
// the AI service through the retry wrapper, parse and clamp the response, and
// persist it.
package invoke

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"gradeflow/internal/cachestore"
	"gradeflow/internal/gemini"
	"gradeflow/internal/observability"
	"gradeflow/internal/retry"
)

// Generator is the external AI collaborator. *gemini.Client satisfies it;
// tests substitute a scripted fake.
type Generator interface {
	GenerateContent(ctx context.Context, model string, parts []gemini.Part, cfg gemini.GenerationConfig) (string, error)
}

// Models names the model used per concern. Moderation reasons over whole
// answer groups and historically runs on the larger model.
type Models struct {
	Default    string
	Moderation string
}

// DefaultModels returns the pipeline's standard model assignment.
func DefaultModels() Models {
	return Models{
		Default:    "gemini-3-flash-preview",
		Moderation: "gemini-3-pro-preview",
	}
}

// Source reports where a result came from.
type Source int

const (
	// SourceCache means the result was served from the store; no AI call.
	SourceCache Source = iota
	// SourceComputed means the AI service produced the result this run.
	SourceComputed
	// SourceDegraded means computation ultimately failed and the result is a
	// well-defined placeholder.
	SourceDegraded
)

func (s Source) String() string {
	switch s {
	case SourceCache:
		return "cached"
	case SourceComputed:
		return "computed"
	case SourceDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Options configures an Invoker.
type Options struct {
	Models  Models
	Policy  retry.Policy
	Sleep   retry.SleepFunc // nil means real sleeping
	Logger  *slog.Logger
	Metrics *observability.Metrics

	// Regrade skips cache probes so every result is recomputed and
	// overwritten wholesale. Writes still go through the store.
	Regrade bool
}

// Invoker is the AI invocation layer.
type Invoker struct {
	store   cachestore.Store
	client  Generator
	models  Models
	policy  retry.Policy
	sleep   retry.SleepFunc
	log     *slog.Logger
	metrics *observability.Metrics
	regrade bool
}

// New creates an Invoker. Zero-valued options fall back to defaults.
func New(store cachestore.Store, client Generator, opts Options) *Invoker {
	if opts.Models.Default == "" {
		opts.Models = DefaultModels()
	}
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = retry.DefaultPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Invoker{
		store:   store,
		client:  client,
		models:  opts.Models,
		policy:  opts.Policy,
		sleep:   opts.Sleep,
		log:     opts.Logger,
		metrics: opts.Metrics,
		regrade: opts.Regrade,
	}
}

// lookup probes the store and decodes the entry into out. Any failure along
// the way (including an entry that no longer matches the expected shape) is a
// miss.
func (inv *Invoker) lookup(ctx context.Context, category, key string, out any) bool {
	if inv.regrade {
		return false
	}
	data, ok := inv.store.Get(ctx, category, key)
	if !ok {
		inv.metrics.CacheMiss(category)
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		inv.log.Warn("cache entry has unexpected shape, recomputing",
			"category", category, "error", err)
		inv.metrics.CacheMiss(category)
		return false
	}
	inv.metrics.CacheHit(category)
	return true
}

// save persists a computed result. Failures degrade performance (the value
// is recomputed next run) but never abort the caller.
func (inv *Invoker) save(ctx context.Context, category, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		inv.log.Warn("failed to marshal cache entry", "category", category, "error", err)
		return
	}
	if err := inv.store.Put(ctx, category, key, data); err != nil {
		inv.log.Warn("failed to save cache entry", "category", category, "error", err)
	}
}

// generate runs one model call through the retry wrapper, recording metrics.
func (inv *Invoker) generate(ctx context.Context, category, model string, parts []gemini.Part, cfg gemini.GenerationConfig) (string, error) {
	start := time.Now()
	attempts := 0

	text, err := retry.Do(ctx, inv.policy, inv.sleep, func(ctx context.Context) (string, error) {
		attempts++
		if attempts > 1 {
			inv.metrics.Retry()
		}
		return inv.client.GenerateContent(ctx, model, parts, cfg)
	})

	outcome := observability.OutcomeOK
	if err != nil {
		outcome = observability.OutcomeError
	}
	inv.metrics.Call(category, outcome, time.Since(start))
	return text, err
}

// generateParsed runs a model call and parses each attempt's response into
// out. A response that fails both the strict and fallback parse is retried:
// the model is nondeterministic, so the next attempt may produce valid
// output.
func generateParsed[T any](inv *Invoker, ctx context.Context, category, model string, parts []gemini.Part, cfg gemini.GenerationConfig, parse func(string) (T, Outcome)) (T, error) {
	start := time.Now()
	attempts := 0

	result, err := retry.Do(ctx, inv.policy, inv.sleep, func(ctx context.Context) (T, error) {
		attempts++
		if attempts > 1 {
			inv.metrics.Retry()
		}
		var zero T
		raw, err := inv.client.GenerateContent(ctx, model, parts, cfg)
		if err != nil {
			return zero, err
		}
		parsed, outcome := parse(raw)
		if outcome == Unparseable {
			return zero, unparseableError(raw)
		}
		if outcome == FallbackParsed {
			inv.log.Debug("strict parse failed, used fallback", "category", category)
		}
		return parsed, nil
	})

	outcome := observability.OutcomeOK
	if err != nil {
		outcome = observability.OutcomeError
	}
	inv.metrics.Call(category, outcome, time.Since(start))
	return result, err
}
