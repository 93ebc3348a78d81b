// ABOUTME: Timestamp-ordered playback scheduler for decoded audio chunks
// ABOUTME: Late chunks are played immediately with logged lateness, never dropped
package receiver

import (
	"container/heap"
	"log"
	"sync"
	"time"
)

// scheduledChunk is one decoded audio chunk waiting for its play time.
type scheduledChunk struct {
	playAt      time.Time
	timestampUs int64
	planes      [][]float64
}

// chunkQueue is a min-heap ordered by playAt.
type chunkQueue struct {
	items []scheduledChunk
}

func (q *chunkQueue) Len() int { return len(q.items) }
func (q *chunkQueue) Less(i, j int) bool {
	return q.items[i].playAt.Before(q.items[j].playAt)
}
func (q *chunkQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }
func (q *chunkQueue) Push(x interface{}) {
	q.items = append(q.items, x.(scheduledChunk))
}
func (q *chunkQueue) Pop() interface{} {
	n := len(q.items)
	item := q.items[n-1]
	q.items = q.items[:n-1]
	return item
}
func (q *chunkQueue) Peek() scheduledChunk { return q.items[0] }

// SchedulerStats tracks simple playback counters, surfaced via Status.
type SchedulerStats struct {
	Received int64
	Played   int64
	Late     int64
}

// Scheduler holds decoded chunks until their computed local play time,
// then delivers them on Output. Chunks scheduled for a time already in
// the past are delivered on the next tick anyway: lateness is logged,
// never a reason to drop a chunk.
type Scheduler struct {
	mu     sync.Mutex
	queue  chunkQueue
	output chan DecodedChunk
	done   chan struct{}
	stats  SchedulerStats
}

// DecodedChunk is what the scheduler hands to a consumer: per-channel
// float64 planes in [-1, 1], ready for an Output.
type DecodedChunk struct {
	TimestampUs int64
	Planes      [][]float64
}

// NewScheduler creates a scheduler with a small output buffer, mirroring
// the teacher's bounded output channel.
func NewScheduler() *Scheduler {
	s := &Scheduler{
		output: make(chan DecodedChunk, 16),
		done:   make(chan struct{}),
	}
	heap.Init(&s.queue)
	return s
}

// Schedule enqueues planes for delivery at playAt. If playAt is already
// in the past, the next tick delivers it immediately and logs the
// lateness.
func (s *Scheduler) Schedule(timestampUs int64, playAt time.Time, planes [][]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Received++
	heap.Push(&s.queue, scheduledChunk{playAt: playAt, timestampUs: timestampUs, planes: planes})
}

// Run drives the scheduling loop until Stop is called. Call it in its
// own goroutine.
func (s *Scheduler) Run() {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.tick(time.Now())
		}
	}
}

func (s *Scheduler) tick(now time.Time) {
	for {
		s.mu.Lock()
		if s.queue.Len() == 0 || s.queue.Peek().playAt.After(now) {
			s.mu.Unlock()
			return
		}
		next := heap.Pop(&s.queue).(scheduledChunk)
		lateness := now.Sub(next.playAt)
		if lateness > 0 {
			s.stats.Late++
		}
		s.mu.Unlock()

		if lateness > 0 {
			log.Printf("receiver: chunk at %dus played %v late", next.timestampUs, lateness)
		}

		select {
		case s.output <- DecodedChunk{TimestampUs: next.timestampUs, Planes: next.planes}:
			s.mu.Lock()
			s.stats.Played++
			s.mu.Unlock()
		case <-s.done:
			return
		}
	}
}

// Output is the channel decoded, due chunks are delivered on.
func (s *Scheduler) Output() <-chan DecodedChunk { return s.output }

// Stats returns a snapshot of the scheduler's counters.
func (s *Scheduler) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Stop halts the scheduling loop. Safe to call once.
func (s *Scheduler) Stop() { close(s.done) }
