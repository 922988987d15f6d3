package watch

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// sweeper triggers a periodic full rebuild pass. The file watcher can miss
// changes (editor swaps, network mounts), so the sweep is the safety net.
type sweeper struct {
	scheduler gocron.Scheduler
}

func newSweeper(interval time.Duration, fire func()) (*sweeper, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create sweep scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(fire),
		gocron.WithName("staleness-sweep"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule staleness sweep: %w", err)
	}
	return &sweeper{scheduler: s}, nil
}

func (s *sweeper) Start() {
	s.scheduler.Start()
}

func (s *sweeper) Stop() error {
	return s.scheduler.Shutdown()
}
