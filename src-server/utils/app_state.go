package utils

import (
	"database/sql"
	"log/slog"
	"os"
	"sync"
	"time"

	"elastiview/src-server/history"
	"elastiview/src-server/occurrence"
	"elastiview/src-server/remote"
	"elastiview/src-server/timeline"
	"elastiview/src-server/workflow"

	"github.com/google/uuid"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

type AppState struct {
	Config   *Config
	RawDb    *sql.DB
	BunDb    *bun.DB
	Remote   *remote.Client
	Resolver *occurrence.Resolver
	Builder  *timeline.Builder
	History  *history.Log
	Workflow *workflow.Workflow
	When     *when.Parser

	// latency samples for the Prometheus gauges in src-server/metric
	MetricChans *Metric

	// nudges the snapshot scheduler to run its next pass early
	SnapshotRefreshChan chan struct{}

	AppCloseSignalChan chan os.Signal

	gracefulShutdownChansMutex sync.Mutex
	gracefulShutdownChans      map[uuid.UUID]*chan struct{}
}

func NewAppState() *AppState {
	as := &AppState{}

	as.MetricChans = NewMetric()
	as.SnapshotRefreshChan = make(chan struct{}, 1)
	as.AppCloseSignalChan = make(chan os.Signal, 1)
	as.gracefulShutdownChans = make(map[uuid.UUID]*chan struct{})

	// date parser
	as.When = when.New(nil)
	as.When.Add(en.All...)
	as.When.Add(common.All...)

	// env
	as.Config = NewConfig()

	// database
	var err error
	as.RawDb, err = sql.Open(sqliteshim.ShimName, as.Config.GetSqlitePath()+"?mode=rwc")
	if err != nil {
		slog.Error("cannot open sqlite database", "error", err)
		os.Exit(1)
	}
	as.RawDb.SetMaxIdleConns(8)

	as.BunDb = bun.NewDB(as.RawDb, sqlitedialect.New())
	as.BunDb.AddQueryHook(bundebug.NewQueryHook(
		bundebug.WithVerbose(true),
		bundebug.FromEnv("BUNDEBUG"),
	))

	// recurrence store client
	as.Remote = remote.New(
		as.Config.GetRecurrenceApiUrl(),
		remote.WithTimeout(as.Config.GetRemoteTimeout()),
		remote.WithLatencyHook(func(latency time.Duration) {
			as.RecordLatency(as.MetricChans.RemoteRoundTrip, latency)
		}),
	)

	as.Resolver = &occurrence.Resolver{
		DefaultZone:  as.Config.GetUserLocation(),
		FinishBuffer: time.Duration(as.Config.GetFinishEarlyBufferMinutes()) * time.Minute,
	}
	as.Builder = &timeline.Builder{
		Resolver:    as.Resolver,
		Zone:        as.Config.GetUserLocation(),
		Granularity: as.Config.GetMinuteGranularity(),
	}
	as.History = history.NewLog(as.BunDb, as.Remote)
	as.Workflow = &workflow.Workflow{
		Remote:      as.Remote,
		History:     as.History,
		Resolver:    as.Resolver,
		Db:          as.BunDb,
		RefreshChan: as.SnapshotRefreshChan,
	}

	return as
}

// RequestSnapshotRefresh nudges the snapshot scheduler to run its next
// pass now instead of waiting out the interval.
func (as *AppState) RequestSnapshotRefresh() {
	select {
	case as.SnapshotRefreshChan <- struct{}{}:
	default:
	}
}

// RecordLatency feeds a latency sample to one of the MetricChans
// without blocking when no metric collector is listening.
func (as *AppState) RecordLatency(ch chan float64, latency time.Duration) {
	select {
	case ch <- float64(latency.Microseconds()):
	default:
	}
}

// CreateGracefulShutdownChan returns a channel that receives exactly
// one value when GracefulShutdown runs.
func (as *AppState) CreateGracefulShutdownChan() *chan struct{} {
	ch := make(chan struct{}, 1)

	as.gracefulShutdownChansMutex.Lock()
	defer as.gracefulShutdownChansMutex.Unlock()
	as.gracefulShutdownChans[uuid.New()] = &ch

	return &ch
}

func (as *AppState) GracefulShutdown() {
	as.gracefulShutdownChansMutex.Lock()
	defer as.gracefulShutdownChansMutex.Unlock()
	for id, ch := range as.gracefulShutdownChans {
		*ch <- struct{}{}
		delete(as.gracefulShutdownChans, id)
	}
}
