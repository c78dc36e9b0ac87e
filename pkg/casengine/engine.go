/*
Copyright 2024 The CASD Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package casengine is the core orchestration layer: it wires the metadata
// store (C2), bulk object store (C3), and read cache (C4) into the four
// higher-level algorithms spec.md §4.5-§4.8 name (ingest, verification,
// presence/tag, cleanup) plus retrieval. Everything in this package depends
// only on those three collaborator interfaces plus pkg/taskqueue, never on
// a concrete backend, per spec.md §9's "re-architect as explicit
// collaborator interfaces" redesign note.
package casengine

import (
	"log"
	"time"

	"github.com/cas-project/casd/pkg/bulkstore"
	"github.com/cas-project/casd/pkg/entry"
	"github.com/cas-project/casd/pkg/metastore"
	"github.com/cas-project/casd/pkg/readcache"
	"github.com/cas-project/casd/pkg/stats"
	"github.com/cas-project/casd/pkg/taskqueue"
)

// MaxKeysPerCall bounds the number of digests a single contains request may
// carry, per spec.md §4.7.
const MaxKeysPerCall = 1000

// ItemsToDeleteAsync is the cleanup batch size of spec.md §4.8.
const ItemsToDeleteAsync = 100

// Clock abstracts wall-clock "today" so tests can control cutoffs without
// sleeping, grounded on the teacher's general avoidance of wall-clock-
// dependent tests (see fakeClock in this package's tests).
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the production Clock.
var SystemClock Clock = systemClock{}

// Engine holds the three storage collaborators plus the scheduler and
// stats sink, and exposes the operations of spec.md §4.5-§4.8.
type Engine struct {
	Meta   *metastore.Store
	Bulk   bulkstore.Store
	Cache  *readcache.Cache
	Tasks  *Scheduler
	Stats  stats.Sink
	Clock  Clock
	Logger *log.Logger

	// RetentionDays is the cleanup-old cutoff (spec.md §6 config knob).
	RetentionDays int
}

// Scheduler groups the three task queues casengine enqueues work onto.
// It is a thin facade over pkg/taskqueue.Queue so casengine doesn't need to
// know queue names are strings.
type Scheduler struct {
	Verify  *taskqueue.Queue
	Tag     *taskqueue.Queue
	Cleanup *taskqueue.Queue
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithStats overrides the default discard stats sink.
func WithStats(s stats.Sink) Option { return func(e *Engine) { e.Stats = s } }

// WithClock overrides the default system clock.
func WithClock(c Clock) Option { return func(e *Engine) { e.Clock = c } }

// WithLogger overrides the default logger.
func WithLogger(l *log.Logger) Option { return func(e *Engine) { e.Logger = l } }

// New constructs an Engine. retentionDays is the cleanup-old cutoff.
func New(meta *metastore.Store, bulk bulkstore.Store, cache *readcache.Cache, tasks *Scheduler, retentionDays int, opts ...Option) *Engine {
	e := &Engine{
		Meta:          meta,
		Bulk:          bulk,
		Cache:         cache,
		Tasks:         tasks,
		Stats:         stats.Discard,
		Clock:         SystemClock,
		Logger:        log.New(log.Writer(), "casengine: ", log.LstdFlags),
		RetentionDays: retentionDays,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) today() entry.Day { return entry.DayFromTime(e.Clock.Now()) }
