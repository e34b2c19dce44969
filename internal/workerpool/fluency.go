package workerpool

import (
	"sync"
	"time"
)

// FluencyController smooths bursts where the capture device outputs
// frames faster than the encoders can sustain. After each compress, the
// worker pool records its duration; the next frame is admitted only once
// now has passed grab_after = (time the last duration was recorded) +
// avgDuration/N, so capture ticks
// that land before that are dropped rather than queued.
type FluencyController struct {
	mu         sync.Mutex
	workers    int
	avg        time.Duration
	grabAfter  time.Time
	haveSample bool
}

// NewFluencyController builds a controller for a pool of the given size.
func NewFluencyController(workers int) *FluencyController {
	if workers < 1 {
		workers = 1
	}
	return &FluencyController{workers: workers}
}

// Admit reports whether a frame arriving at now should be accepted for
// encoding. Before any duration sample exists, every frame is admitted.
func (c *FluencyController) Admit(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.haveSample {
		return true
	}
	return !now.Before(c.grabAfter)
}

// RecordDuration folds a completed encode's duration into the running
// average and recomputes the admission deadline for the next frame.
func (c *FluencyController) RecordDuration(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.haveSample {
		c.avg = d
		c.haveSample = true
	} else {
		// exponential moving average, weighted towards recent samples so
		// the controller reacts to sustained slowdowns within a few frames.
		c.avg = (c.avg*3 + d) / 4
	}
	c.grabAfter = time.Now().Add(c.avg / time.Duration(c.workers))
}

// AverageDuration returns the current running average encode duration.
func (c *FluencyController) AverageDuration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.avg
}
