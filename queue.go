package main

import (
	"fmt"
	"sync"
	"time"
)

type triggerState int

const (
	triggerPending triggerState = iota
	triggerFired
)

// QueuedTrigger is one scheduled playback request. It is created pending,
// transitions to fired exactly once when its delay elapses and the send
// succeeds, and is removed once its track duration has elapsed (or
// immediately on a failed send).
type QueuedTrigger struct {
	Track      TrackAsset
	EnqueuedAt time.Time
	FireAt     time.Time

	state   triggerState
	firedAt time.Time
}

// TriggerQueue holds every scheduled-but-not-yet-cleared trigger, bounded by
// max over both pending and fired entries. One mutex guards all state so the
// capacity check and insert are a single atomic step, as are the fire and
// clear transitions driven by the Dispatcher.
//
// Entries are appended in enqueue order; with a constant delay that is also
// ascending FireAt order, so in-order iteration fires FIFO and breaks
// simultaneous due times by enqueue order.
type TriggerQueue struct {
	mu      sync.Mutex
	clock   Clock
	lib     *Library
	delay   time.Duration
	max     int
	entries []*QueuedTrigger
}

func NewTriggerQueue(lib *Library, delay time.Duration, max int, clock Clock) *TriggerQueue {
	return &TriggerQueue{
		clock: clock,
		lib:   lib,
		delay: delay,
		max:   max,
	}
}

// Enqueue schedules a trigger for the identified track, to fire after the
// configured delay. It returns false with no error when the queue is at
// capacity (an expected condition, not a failure) and an error for an
// identifier the library does not know.
func (q *TriggerQueue) Enqueue(id uint8) (bool, error) {
	track, ok := q.lib.Lookup(id)
	if !ok {
		return false, fmt.Errorf("unknown track identifier %d", id)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.max {
		logger.Info("queue: full, trigger dropped", "id", id, "queued", len(q.entries), "max", q.max)
		return false, nil
	}

	now := q.clock.Now()
	e := &QueuedTrigger{
		Track:      track,
		EnqueuedAt: now,
		FireAt:     now.Add(q.delay),
		state:      triggerPending,
	}
	q.entries = append(q.entries, e)
	logger.Info("queue: trigger scheduled",
		"id", track.ID,
		"fire_in", q.delay,
		"duration", track.Duration,
		"queued", len(q.entries),
		"max", q.max,
	)
	return true, nil
}

// Len reports how many entries currently occupy capacity (pending + fired).
func (q *TriggerQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// due returns the pending entries whose fire time has arrived, in enqueue
// order. The entries stay in the queue (still counted against capacity)
// until markFired or drop resolves them.
func (q *TriggerQueue) due(now time.Time) []*QueuedTrigger {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*QueuedTrigger
	for _, e := range q.entries {
		if e.state == triggerPending && !now.Before(e.FireAt) {
			out = append(out, e)
		}
	}
	return out
}

func (q *TriggerQueue) markFired(e *QueuedTrigger, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e.state = triggerFired
	e.firedAt = now
}

// drop removes an entry outright, freeing its capacity slot. Used when a
// send fails; the entry is not retried.
func (q *TriggerQueue) drop(dead *QueuedTrigger) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e == dead {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return
		}
	}
}

// clearElapsed removes fired entries whose track duration has elapsed and
// returns them. Clearing is pure bookkeeping; no message is sent.
func (q *TriggerQueue) clearElapsed(now time.Time) []*QueuedTrigger {
	q.mu.Lock()
	defer q.mu.Unlock()
	var cleared []*QueuedTrigger
	kept := q.entries[:0]
	for _, e := range q.entries {
		if e.state == triggerFired && !now.Before(e.firedAt.Add(e.Track.Duration)) {
			cleared = append(cleared, e)
		} else {
			kept = append(kept, e)
		}
	}
	q.entries = kept
	return cleared
}

// Sender delivers one playback trigger to the output sink.
type Sender interface {
	SendNote(note uint8) error
}

// Dispatcher drives the queue's timed transitions from the event loop's poll
// tick: fire every due pending entry, then clear every fired entry whose
// duration has run out. Exactly one trigger message goes out per successful
// fire; a failed send drops the entry immediately so its slot frees up.
type Dispatcher struct {
	queue *TriggerQueue
	out   Sender
	clock Clock
}

func NewDispatcher(queue *TriggerQueue, out Sender, clock Clock) *Dispatcher {
	return &Dispatcher{queue: queue, out: out, clock: clock}
}

func (d *Dispatcher) Tick() {
	now := d.clock.Now()

	for _, e := range d.queue.due(now) {
		if err := d.out.SendNote(e.Track.ID); err != nil {
			d.queue.drop(e)
			logger.Error("dispatch: send failed, trigger dropped",
				"id", e.Track.ID,
				"queued", d.queue.Len(),
				"err", err,
			)
			continue
		}
		d.queue.markFired(e, now)
		logger.Info("dispatch: trigger fired",
			"id", e.Track.ID,
			"waited", now.Sub(e.EnqueuedAt),
			"clear_in", e.Track.Duration,
		)
	}

	for _, e := range d.queue.clearElapsed(now) {
		logger.Info("dispatch: trigger cleared",
			"id", e.Track.ID,
			"played", now.Sub(e.firedAt),
			"queued", d.queue.Len(),
		)
	}
}
