// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"time"

	"github.com/loov/hrtime"
)

// NewTime creates a new time service
func NewTime(cfg TimeConfiguration) *Time {
	var interval time.Duration
	if cfg.FramesPerSecond == 0 {
		interval = time.Nanosecond
	} else {
		interval = time.Second / time.Duration(cfg.FramesPerSecond)
	}
	pollDelay := time.Duration(cfg.EventPollDelay) * time.Millisecond
	if pollDelay <= 0 {
		pollDelay = time.Millisecond
	}

	return &Time{
		fps:            cfg.FramesPerSecond,
		fpsTicker:      time.NewTicker(interval),
		eventPollDelay: cfg.EventPollDelay,
		eventTicker:    time.NewTicker(pollDelay),
	}
}

// Time contains all the time services and tickers
type Time struct {
	fps       int
	fpsTicker *time.Ticker

	eventPollDelay int
	eventTicker    *time.Ticker
}

// Fps gets the set frames per second
func (t *Time) Fps() int {
	return t.fps
}

// FpsTicker gets the initialized fps ticker
func (t *Time) FpsTicker() *time.Ticker {
	return t.fpsTicker
}

// EventTicker gets the initialized event ticker for the event loop
func (t *Time) EventTicker() *time.Ticker {
	return t.eventTicker
}

// Stop stops both tickers.
func (t *Time) Stop() {
	t.fpsTicker.Stop()
	t.eventTicker.Stop()
}

// frameTimerWindow is how many samples the rolling average covers.
const frameTimerWindow = 64

// FrameTimer measures the CPU time spent per frame.
type FrameTimer struct {
	start   time.Duration
	running bool

	samples [frameTimerWindow]time.Duration
	next    int
	count   int
	sum     time.Duration
	last    time.Duration
	frames  uint64
}

// Start marks the beginning of a frame.
func (t *FrameTimer) Start() {
	t.start = hrtime.Now()
	t.running = true
}

// Stop ends the frame begun with Start and records its duration.
func (t *FrameTimer) Stop() time.Duration {
	if !t.running {
		return 0
	}
	t.running = false
	t.Record(hrtime.Since(t.start))
	return t.last
}

// Record adds one frame duration.
func (t *FrameTimer) Record(d time.Duration) {
	if t.count == frameTimerWindow {
		t.sum -= t.samples[t.next]
	} else {
		t.count++
	}
	t.samples[t.next] = d
	t.sum += d
	t.next = (t.next + 1) % frameTimerWindow
	t.last = d
	t.frames++
}

// Last returns the duration of the last recorded frame.
func (t *FrameTimer) Last() time.Duration { return t.last }

// Frames returns how many frames were recorded.
func (t *FrameTimer) Frames() uint64 { return t.frames }

// Average returns the mean over the most recent frames.
func (t *FrameTimer) Average() time.Duration {
	if t.count == 0 {
		return 0
	}
	return t.sum / time.Duration(t.count)
}

// FPS estimates frames per second from the average frame time.
func (t *FrameTimer) FPS() float64 {
	avg := t.Average()
	if avg <= 0 {
		return 0
	}
	return float64(time.Second) / float64(avg)
}
