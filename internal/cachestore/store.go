// Package cachestore provides durable key/value persistence for AI results,
// namespaced by category. Supports filesystem, in-memory, SQLite and Redis
// backends; the filesystem backend is the default for single-operator runs.
package cachestore

import (
	"context"
	"sync/atomic"
)

// Cache categories. Each category is an independent namespace so entries for
// different operations can never collide and can be invalidated separately.
const (
	CategoryOCR           = "ocr"
	CategoryGradeAnswer   = "grade_answer"
	CategoryGradeScript   = "grade_answer_ocr"
	CategoryModeration    = "grade_moderator"
	CategoryMarkingScheme = "marking_scheme"
	CategoryAnnotation    = "annotation"
	CategoryReport        = "performance_report"
	CategoryOverview      = "class_overview"
)

// Categories lists every cache category, for operator-facing actions that
// iterate all of them.
func Categories() []string {
	return []string{
		CategoryOCR,
		CategoryGradeAnswer,
		CategoryGradeScript,
		CategoryModeration,
		CategoryMarkingScheme,
		CategoryAnnotation,
		CategoryReport,
		CategoryOverview,
	}
}

// Store defines the interface for cached AI results.
// Implementations must be safe for concurrent use on disjoint keys; for
// concurrent writes to the same key, last write wins (entries are idempotent
// recomputations of the same semantic request).
type Store interface {
	// Get retrieves the value stored under (category, key). A missing,
	// unreadable or structurally invalid entry is reported as a miss, never
	// as an error: corruption fails closed and the caller recomputes.
	Get(ctx context.Context, category, key string) ([]byte, bool)

	// Put stores value durably under (category, key). A failed Put degrades
	// performance (the value is recomputed next run) but never correctness;
	// callers log the error and continue.
	Put(ctx context.Context, category, key string, value []byte) error

	// Stats returns hit/miss counters accumulated since the store was opened.
	Stats() Stats

	// Close releases any resources held by the store.
	Close() error
}

// Stats holds cache performance counters.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// counters is embedded by every backend to track hits and misses.
type counters struct {
	hits   atomic.Int64
	misses atomic.Int64
}

func (c *counters) hit()  { c.hits.Add(1) }
func (c *counters) miss() { c.misses.Add(1) }

func (c *counters) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}
