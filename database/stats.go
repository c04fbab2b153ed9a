package database

import (
	"context"
	"time"

	"github.com/myjettools/myjetpg/periodic"
)

// LogStats periodically reports how many statements this pipeline executed since
// the last tick, at debug level, until ctx is done or Stop is called on the
// returned Stopper. Quiet intervals produce no log line. interval is typically
// logging.Config.Interval.
func (d *Database) LogStats(ctx context.Context, interval time.Duration) periodic.Stopper {
	return periodic.Start(ctx, interval, func(periodic.Tick) {
		ok, failed := d.okCount.Reset(), d.failCount.Reset()
		if d.logger != nil && ok+failed > 0 {
			d.logger.Debugw("Executed statements", "ok", ok, "failed", failed)
		}
	}, periodic.OnStop(func(tick periodic.Tick) {
		if d.logger != nil {
			d.logger.Debugw("Finished executing statements",
				"ok", d.okCount.Total(), "failed", d.failCount.Total(), "elapsed", tick.Elapsed)
		}
	}))
}
