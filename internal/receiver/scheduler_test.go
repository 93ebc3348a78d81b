// ABOUTME: Tests for the playback scheduler
// ABOUTME: Tests timestamp ordering, tick delivery, and late-chunk accounting
package receiver

import (
	"testing"
	"time"
)

func TestSchedulerDeliversInTimestampOrder(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	now := time.Now()
	s.Schedule(3000, now.Add(-3*time.Millisecond), [][]float64{{0.3}})
	s.Schedule(1000, now.Add(-5*time.Millisecond), [][]float64{{0.1}})
	s.Schedule(2000, now.Add(-4*time.Millisecond), [][]float64{{0.2}})

	s.tick(now)

	var got []int64
	for i := 0; i < 3; i++ {
		select {
		case c := <-s.Output():
			got = append(got, c.TimestampUs)
		default:
			t.Fatalf("expected chunk %d on output channel", i)
		}
	}

	want := []int64{1000, 2000, 3000}
	for i, ts := range want {
		if got[i] != ts {
			t.Errorf("position %d: got timestamp %d, want %d", i, got[i], ts)
		}
	}
}

func TestSchedulerHoldsFutureChunks(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	now := time.Now()
	s.Schedule(1000, now.Add(100*time.Millisecond), [][]float64{{0.1}})

	s.tick(now)

	select {
	case c := <-s.Output():
		t.Fatalf("expected no chunk delivered yet, got %+v", c)
	default:
	}

	s.tick(now.Add(150 * time.Millisecond))

	select {
	case <-s.Output():
	default:
		t.Fatal("expected chunk delivered once its play time passed")
	}
}

func TestSchedulerCountsLateChunksButStillPlaysThem(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	now := time.Now()
	// Scheduled 100ms in the past: late, but still delivered rather
	// than dropped.
	s.Schedule(1000, now.Add(-100*time.Millisecond), [][]float64{{0.1}})

	s.tick(now)

	select {
	case c := <-s.Output():
		if c.TimestampUs != 1000 {
			t.Errorf("got timestamp %d, want 1000", c.TimestampUs)
		}
	default:
		t.Fatal("expected late chunk to still be delivered")
	}

	stats := s.Stats()
	if stats.Late != 1 {
		t.Errorf("got Late=%d, want 1", stats.Late)
	}
	if stats.Played != 1 {
		t.Errorf("got Played=%d, want 1", stats.Played)
	}
	if stats.Received != 1 {
		t.Errorf("got Received=%d, want 1", stats.Received)
	}
}
