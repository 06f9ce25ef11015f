// Package playback schedules decoded audio buffers for gapless playback on an
// output audio clock.
//
// [Context] is the output side: a sample clock advanced by the output device
// and the set of buffers scheduled against it. [Scheduler] sits in front of
// it and keeps a cursor so that consecutive buffers play back to back:
//
//	start  = max(cursor, now)
//	cursor = start + duration
//
// If audio arrives late (the cursor is already behind the clock) the buffer
// starts immediately, leaving a short silence but never an overlap.
package playback

import (
	"fmt"
	"sync"

	"github.com/MrWong99/sereno/pkg/audio"
)

// Output is the destination of scheduled buffers. [Context] implements it;
// tests substitute a fake clock.
type Output interface {
	// Enqueue schedules buf to begin at max(notBefore, now) on the output
	// clock and returns that start time. The choice and the queueing must be
	// atomic with respect to the clock advancing.
	Enqueue(buf *audio.Buffer, notBefore float64) (float64, error)
}

// Placement describes where a buffer was put on the output clock.
type Placement struct {
	// Start is the time in seconds the buffer begins playing.
	Start float64
	// End is Start plus the buffer duration; it is the new cursor.
	End float64
	// Gap is the silence in seconds between the previous buffer's end and
	// Start. It is zero for the first buffer after a reset and for gapless
	// continuation.
	Gap float64
}

// Scheduler places buffers back to back on an [Output]. It is safe for
// concurrent use, although callers normally schedule from one goroutine to
// preserve arrival order.
type Scheduler struct {
	out Output

	mu     sync.Mutex
	cursor float64
	count  uint64
}

// NewScheduler returns a Scheduler writing to out with the cursor at zero.
func NewScheduler(out Output) *Scheduler {
	return &Scheduler{out: out}
}

// Schedule places buf at max(cursor, now) and advances the cursor by its
// duration. Buffers are handed to the output exactly once, in call order. On
// error the cursor is left unchanged.
func (s *Scheduler) Schedule(buf *audio.Buffer) (Placement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start, err := s.out.Enqueue(buf, s.cursor)
	if err != nil {
		return Placement{}, fmt.Errorf("playback: schedule: %w", err)
	}

	p := Placement{Start: start, End: start + buf.Seconds()}
	if s.count > 0 && start > s.cursor {
		p.Gap = start - s.cursor
	}
	s.cursor = p.End
	s.count++
	return p, nil
}

// Cursor returns the time at which the next buffer would start if it arrived
// now and the clock were behind.
func (s *Scheduler) Cursor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Reset sets the cursor back to zero. Buffers already handed to the output
// keep playing unless the output itself is closed.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = 0
	s.count = 0
}

// SetOutput swaps the output used by subsequent Schedule calls and resets the
// cursor. Sessions use it to attach a fresh output context.
func (s *Scheduler) SetOutput(out Output) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = out
	s.cursor = 0
	s.count = 0
}
