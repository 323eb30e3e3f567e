package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/stingersec/stinger/internal/observability"
	"github.com/stingersec/stinger/internal/tracing"
)

// Task is one unit of lane work, typically a full turn.
type Task func(ctx context.Context) (interface{}, error)

// ErrLaneReset rejects tasks that were queued before a lane reset.
var ErrLaneReset = fmt.Errorf("lane reset")

// ErrLaneClosed rejects tasks submitted to a closed lane or queue.
var ErrLaneClosed = fmt.Errorf("lane closed")

type pending struct {
	id         string
	task       Task
	ctx        context.Context
	generation int
	result     chan outcome
}

type outcome struct {
	value interface{}
	err   error
}

// lane serializes work for one session. Concurrency within a lane is 1 so
// interactions of the same session never overlap; distinct lanes run
// concurrently.
type lane struct {
	name       string
	generation int
	running    bool
	waiting    []*pending
	mu         sync.Mutex
}

// Queue owns one FIFO lane per session.
type Queue struct {
	lanes  map[string]*lane
	idSeq  int
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// New creates an empty queue.
func New() *Queue {
	observability.EnsureRegistered()
	return &Queue{lanes: make(map[string]*lane)}
}

// Enqueue appends a task to the lane and blocks until it has run. The lane
// is created on first use. Tasks in the same lane run strictly in submit
// order, one at a time.
func (q *Queue) Enqueue(ctx context.Context, laneName string, task Task) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := tracing.StartSpan(
		ctx,
		"stinger.queue",
		"queue.enqueue",
		attribute.String("lane", laneName),
	)
	defer span.End()

	if tracing.GetSessionID(ctx) == "" {
		ctx = tracing.WithSessionID(ctx, laneName)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrLaneClosed
	}
	ln, ok := q.lanes[laneName]
	if !ok {
		ln = &lane{name: laneName}
		q.lanes[laneName] = ln
	}
	q.idSeq++
	taskID := fmt.Sprintf("%s-%d", laneName, q.idSeq)
	q.mu.Unlock()

	ln.mu.Lock()
	rec := &pending{
		id:         taskID,
		task:       task,
		ctx:        ctx,
		generation: ln.generation,
		result:     make(chan outcome, 1),
	}
	ln.waiting = append(ln.waiting, rec)
	depth := len(ln.waiting)
	ln.mu.Unlock()

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Debug().
		Str("lane", laneName).
		Str("task_id", taskID).
		Int("queue_size", depth).
		Msg("Task enqueued")

	observability.RecordQueueEnqueue(laneName, depth)

	q.pump(ln)

	res := <-rec.result
	if res.err != nil {
		span.RecordError(res.err)
		span.SetStatus(codes.Error, res.err.Error())
	}
	return res.value, res.err
}

// pump starts the next waiting task if the lane is idle.
func (q *Queue) pump(ln *lane) {
	ln.mu.Lock()
	defer ln.mu.Unlock()

	for !ln.running && len(ln.waiting) > 0 {
		rec := ln.waiting[0]
		ln.waiting = ln.waiting[1:]

		if rec.generation != ln.generation {
			rec.result <- outcome{err: ErrLaneReset}
			close(rec.result)
			continue
		}

		ln.running = true
		q.wg.Add(1)
		go q.run(ln, rec)
		return
	}
}

func (q *Queue) run(ln *lane, rec *pending) {
	defer q.wg.Done()

	ctx, span := tracing.StartSpan(
		rec.ctx,
		"stinger.queue",
		"queue.run_task",
		attribute.String("lane", ln.name),
		attribute.String("task_id", rec.id),
	)
	defer span.End()

	start := time.Now()
	value, err := rec.task(ctx)
	duration := time.Since(start)

	ln.mu.Lock()
	ln.running = false
	depth := len(ln.waiting)
	ln.mu.Unlock()

	rec.result <- outcome{value: value, err: err}
	close(rec.result)

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().
			Str("lane", ln.name).
			Str("task_id", rec.id).
			Dur("duration", duration).
			Err(err).
			Msg("Task failed")
	} else {
		logger.Debug().
			Str("lane", ln.name).
			Str("task_id", rec.id).
			Dur("duration", duration).
			Msg("Task completed")
	}

	observability.RecordQueueCompletion(ln.name, err == nil, depth)

	q.pump(ln)
}

// Size returns the number of tasks waiting in a lane, not counting the one
// running.
func (q *Queue) Size(laneName string) int {
	q.mu.Lock()
	ln, ok := q.lanes[laneName]
	q.mu.Unlock()
	if !ok {
		return 0
	}

	ln.mu.Lock()
	defer ln.mu.Unlock()
	return len(ln.waiting)
}

// Reset bumps the lane generation and rejects everything waiting. The task
// currently running, if any, is unaffected; cancellation of running work
// belongs to the session's cancel flag.
func (q *Queue) Reset(laneName string) int {
	q.mu.Lock()
	ln, ok := q.lanes[laneName]
	q.mu.Unlock()
	if !ok {
		return 0
	}

	ln.mu.Lock()
	defer ln.mu.Unlock()

	ln.generation++
	rejected := len(ln.waiting)
	for _, rec := range ln.waiting {
		rec.result <- outcome{err: ErrLaneReset}
		close(rec.result)
	}
	ln.waiting = nil

	log.Info().
		Str("lane", laneName).
		Int("generation", ln.generation).
		Int("rejected", rejected).
		Msg("Lane reset")
	observability.SetQueueSize(laneName, 0)

	return rejected
}

// Remove resets a lane and forgets it. Used when a session closes.
func (q *Queue) Remove(laneName string) {
	q.Reset(laneName)

	q.mu.Lock()
	delete(q.lanes, laneName)
	q.mu.Unlock()
}

// LaneStats describes the state of one lane.
type LaneStats struct {
	Waiting    int
	Running    bool
	Generation int
}

// Stats snapshots every lane.
func (q *Queue) Stats() map[string]LaneStats {
	q.mu.Lock()
	lanes := make([]*lane, 0, len(q.lanes))
	for _, ln := range q.lanes {
		lanes = append(lanes, ln)
	}
	q.mu.Unlock()

	stats := make(map[string]LaneStats, len(lanes))
	for _, ln := range lanes {
		ln.mu.Lock()
		stats[ln.name] = LaneStats{
			Waiting:    len(ln.waiting),
			Running:    ln.running,
			Generation: ln.generation,
		}
		ln.mu.Unlock()
	}
	return stats
}

// Close rejects new work and waits for running tasks to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	lanes := make([]string, 0, len(q.lanes))
	for name := range q.lanes {
		lanes = append(lanes, name)
	}
	q.mu.Unlock()

	for _, name := range lanes {
		q.Reset(name)
	}
	q.wg.Wait()
}
