package scheduler

import (
	"context"
	"log/slog"
	"time"

	"elastiview/src-server/model"
	"elastiview/src-server/timezone"
	"elastiview/src-server/utils"
)

// SnapshotRefresh keeps the local occurrence snapshot table in sync
// with the recurrence store. Each pass fetches every occurrence whose
// schedulable window can intersect the current year view (widened by a
// week on each side) and swaps the whole table in one transaction.
func SnapshotRefresh(as *utils.AppState) {
	gracefulShutdownCh := as.CreateGracefulShutdownChan()
	loc := as.Config.GetUserLocation()

	for {
		start := time.Now()

		from, to := timezone.ViewRange(timezone.ViewYear, time.Now().In(loc), loc)
		from = timezone.AddDays(from, -7, loc)
		to = timezone.AddDays(to, 7, loc)

		ctx, cancel := context.WithTimeout(context.Background(), as.Config.GetRemoteTimeout())
		occs, err := as.Remote.ListOccurrences(ctx, from, to)
		cancel()
		if err != nil {
			slog.Error("SnapshotRefresh: can't list occurrences", "error", err)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if err := model.ReplaceSnapshots(ctx, as.BunDb, occs, as.Resolver); err != nil {
				slog.Error("SnapshotRefresh: can't replace snapshots", "error", err)
			} else {
				as.RecordLatency(as.MetricChans.SnapshotRefresh, time.Since(start))
				slog.Debug("SnapshotRefresh: snapshots replaced", "count", len(occs), "took", time.Since(start))
			}
			cancel()
		}

		select {
		case <-*gracefulShutdownCh:
			return
		case <-as.SnapshotRefreshChan:
		case <-time.After(as.Config.GetSnapshotInterval()):
		}
	}
}
