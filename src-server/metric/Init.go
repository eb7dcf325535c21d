package metric

import (
	"log/slog"
	"time"

	"elastiview/src-server/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func databaseEmptyRead(as *utils.AppState, tickerInterval *time.Duration) {
	databaseEmptyRead := promauto.NewGauge(prometheus.GaugeOpts{
		Name: "elastiview_database_empty_read_microsec",
		Help: "The latency of an empty snapshot table read in microseconds",
	})
	good := true
	if err := prometheus.Register(databaseEmptyRead); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			slog.Error("can't register elastiview_database_empty_read_microsec metric", "error", err)
			good = false
		}
	}
	if good {
		slog.Debug("elastiview_database_empty_read_microsec metric registered")
		databaseEmptyRead.Set(0)
	}
	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		ticker := time.NewTicker(*tickerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-*gracefulShutdownCh:
				switch prometheus.Unregister(databaseEmptyRead) {
				case true:
					slog.Debug("elastiview_database_empty_read_microsec metric unregistered")
				case false:
					slog.Warn("elastiview_database_empty_read_microsec metric not registered")
				}
				return
			case <-ticker.C:
				latency, err := database(as)
				if err != nil {
					slog.Error("can't get database latency", "error", err)
					continue
				}
				databaseEmptyRead.Set(float64(latency.Microseconds()))
			}
		}
	}()
}

func remoteRoundTrip(as *utils.AppState, clearTickerInterval *time.Duration) {
	remoteRoundTrip := promauto.NewGauge(prometheus.GaugeOpts{
		Name: "elastiview_remote_round_trip_microsec",
		Help: "The latency of a recurrence store round trip in microseconds",
	})
	good := true
	if err := prometheus.Register(remoteRoundTrip); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			slog.Error("can't register elastiview_remote_round_trip_microsec metric", "error", err)
			good = false
		}
	}
	if good {
		slog.Debug("elastiview_remote_round_trip_microsec metric registered")
		remoteRoundTrip.Set(0)
	}
	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		clearTicker := time.NewTicker(*clearTickerInterval)
		defer clearTicker.Stop()
		for {
			select {
			case <-*gracefulShutdownCh:
				switch prometheus.Unregister(remoteRoundTrip) {
				case true:
					slog.Debug("elastiview_remote_round_trip_microsec metric unregistered")
				case false:
					slog.Warn("elastiview_remote_round_trip_microsec metric not registered")
				}
				return
			case latency := <-as.MetricChans.RemoteRoundTrip:
				remoteRoundTrip.Set(latency)
				clearTicker.Reset(*clearTickerInterval)
			case <-clearTicker.C:
				remoteRoundTrip.Set(0)
			}
		}
	}()
}

func snapshotRefresh(as *utils.AppState, clearTickerInterval *time.Duration) {
	snapshotRefresh := promauto.NewGauge(prometheus.GaugeOpts{
		Name: "elastiview_snapshot_refresh_microsec",
		Help: "The duration of a full occurrence snapshot refresh in microseconds",
	})
	good := true
	if err := prometheus.Register(snapshotRefresh); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			slog.Error("can't register elastiview_snapshot_refresh_microsec metric", "error", err)
			good = false
		}
	}
	if good {
		slog.Debug("elastiview_snapshot_refresh_microsec metric registered")
		snapshotRefresh.Set(0)
	}
	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		clearTicker := time.NewTicker(*clearTickerInterval)
		defer clearTicker.Stop()
		for {
			select {
			case <-*gracefulShutdownCh:
				switch prometheus.Unregister(snapshotRefresh) {
				case true:
					slog.Debug("elastiview_snapshot_refresh_microsec metric unregistered")
				case false:
					slog.Warn("elastiview_snapshot_refresh_microsec metric not registered")
				}
				return
			case latency := <-as.MetricChans.SnapshotRefresh:
				snapshotRefresh.Set(latency)
				clearTicker.Reset(*clearTickerInterval)
			case <-clearTicker.C:
				snapshotRefresh.Set(0)
			}
		}
	}()
}

func timelineBuild(as *utils.AppState, clearTickerInterval *time.Duration) {
	timelineBuild := promauto.NewGauge(prometheus.GaugeOpts{
		Name: "elastiview_timeline_build_microsec",
		Help: "The duration of a timeline layout build in microseconds",
	})
	good := true
	if err := prometheus.Register(timelineBuild); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			slog.Error("can't register elastiview_timeline_build_microsec metric", "error", err)
			good = false
		}
	}
	if good {
		slog.Debug("elastiview_timeline_build_microsec metric registered")
		timelineBuild.Set(0)
	}
	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		clearTicker := time.NewTicker(*clearTickerInterval)
		defer clearTicker.Stop()
		for {
			select {
			case <-*gracefulShutdownCh:
				switch prometheus.Unregister(timelineBuild) {
				case true:
					slog.Debug("elastiview_timeline_build_microsec metric unregistered")
				case false:
					slog.Warn("elastiview_timeline_build_microsec metric not registered")
				}
				return
			case latency := <-as.MetricChans.TimelineBuild:
				timelineBuild.Set(latency)
				clearTicker.Reset(*clearTickerInterval)
			case <-clearTicker.C:
				timelineBuild.Set(0)
			}
		}
	}()
}

func historyDepth(as *utils.AppState, tickerInterval *time.Duration) {
	undoDepth := promauto.NewGauge(prometheus.GaugeOpts{
		Name: "elastiview_history_undo_depth",
		Help: "The number of records on the undo stack",
	})
	redoDepth := promauto.NewGauge(prometheus.GaugeOpts{
		Name: "elastiview_history_redo_depth",
		Help: "The number of records on the redo stack",
	})
	good := true
	for _, gauge := range []prometheus.Gauge{undoDepth, redoDepth} {
		if err := prometheus.Register(gauge); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				slog.Error("can't register history depth metric", "error", err)
				good = false
			}
		}
	}
	if good {
		slog.Debug("history depth metrics registered")
		undoDepth.Set(0)
		redoDepth.Set(0)
	}
	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		ticker := time.NewTicker(*tickerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-*gracefulShutdownCh:
				for _, gauge := range []prometheus.Gauge{undoDepth, redoDepth} {
					switch prometheus.Unregister(gauge) {
					case true:
						slog.Debug("history depth metric unregistered")
					case false:
						slog.Warn("history depth metric not registered")
					}
				}
				return
			case <-ticker.C:
				undo, redo := as.History.Depths()
				undoDepth.Set(float64(undo))
				redoDepth.Set(float64(redo))
			}
		}
	}()
}

func Init(as *utils.AppState) {
	tickerInterval := as.Config.GetMetricCollectionInterval()
	clearTickerInterval := as.Config.GetMetricCollectionInterval() * 2

	databaseEmptyRead(as, &tickerInterval)
	remoteRoundTrip(as, &clearTickerInterval)
	snapshotRefresh(as, &clearTickerInterval)
	timelineBuild(as, &clearTickerInterval)
	historyDepth(as, &tickerInterval)
}
