package renderer

import (
	"time"

	"github.com/loov/hrtime"
)

// frameHistory is how many frame times FrameStats keeps for graphing.
const frameHistory = 120

// FrameStats describes the most recent frames.
type FrameStats struct {
	Frames uint64
	// CPUFrame is the time between BeginFrame and the end of SwapBuffers.
	CPUFrame time.Duration
	// FenceWait is how long BeginFrame blocked on the frame slot.
	FenceWait time.Duration
	// History holds recent CPU frame times, oldest first.
	History []time.Duration
}

type frameTimer struct {
	frameStart time.Duration
	stats      FrameStats
	history    [frameHistory]time.Duration
	next       int
	filled     bool
}

func (t *frameTimer) begin() {
	t.frameStart = hrtime.Now()
}

// measure times fn and records it as the fence wait.
func (t *frameTimer) measure(fn func() error) error {
	start := hrtime.Now()
	err := fn()
	t.stats.FenceWait = hrtime.Since(start)
	return err
}

func (t *frameTimer) end() {
	t.record(hrtime.Since(t.frameStart))
}

func (t *frameTimer) record(frame time.Duration) {
	t.stats.Frames++
	t.stats.CPUFrame = frame
	t.history[t.next] = frame
	t.next = (t.next + 1) % frameHistory
	if t.next == 0 {
		t.filled = true
	}
}

func (t *frameTimer) snapshot() FrameStats {
	stats := t.stats
	if t.filled {
		stats.History = append(append([]time.Duration(nil), t.history[t.next:]...), t.history[:t.next]...)
	} else {
		stats.History = append([]time.Duration(nil), t.history[:t.next]...)
	}
	return stats
}
