package dialog

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/deskhelp/deskbot/internal/logging"
)

// Sweeper periodically evicts idle sessions through the engine, so eviction
// runs under the same per-user locks as message handling. Evicted sessions
// with at least one turn still produce a persistence row, tagged so the sink
// can tell an abandoned dialog from a completed one.
type Sweeper struct {
	engine *Engine
	ttl    time.Duration
	cron   *cron.Cron
}

func NewSweeper(engine *Engine, ttl time.Duration) *Sweeper {
	return &Sweeper{engine: engine, ttl: ttl, cron: cron.New()}
}

// Start schedules the sweep. schedule is a cron spec, typically "@every 1m".
func (sw *Sweeper) Start(schedule string) error {
	if _, err := sw.cron.AddFunc(schedule, sw.Sweep); err != nil {
		return err
	}
	sw.cron.Start()
	return nil
}

func (sw *Sweeper) Stop() {
	ctx := sw.cron.Stop()
	<-ctx.Done()
}

// Sweep runs one eviction pass. Exported so tests and shutdown paths can
// run it directly.
func (sw *Sweeper) Sweep() {
	if n := sw.engine.EvictIdle(sw.ttl); n > 0 {
		logging.Infof("swept %d idle session(s)", n)
	}
}
