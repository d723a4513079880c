// Package jobs schedules the stats service's background maintenance.
package jobs

import (
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Sweeper evicts expired cache entries and reports how many it dropped.
type Sweeper interface {
	Sweep() int
}

// NewScheduler returns a UTC scheduler that never overlaps runs of a job.
func NewScheduler() *gocron.Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return s
}

// ScheduleCacheSweep runs c.Sweep every interval. A non-positive interval
// disables the job.
func ScheduleCacheSweep(s *gocron.Scheduler, c Sweeper, every time.Duration, log *zap.Logger) error {
	if every <= 0 {
		log.Info("cache sweep disabled")
		return nil
	}
	_, err := s.Every(every).Tag("cache-sweep").Do(func() {
		if n := c.Sweep(); n > 0 {
			log.Debug("cache sweep", zap.Int("evicted", n))
		}
	})
	return err
}
