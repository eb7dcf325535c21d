package main

import (
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"elastiview/src-server/metric"
	"elastiview/src-server/model"
	"elastiview/src-server/route"
	"elastiview/src-server/scheduler"
	"elastiview/src-server/utils"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func init() {
	if err := godotenv.Load(); err != nil {
		slog.Info(err.Error())
	}
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.RFC1123Z,
		}),
	))
}

func main() {
	as := utils.NewAppState()

	if err := model.CreateSchema(as.BunDb); err != nil {
		slog.Error("can't create database schema", "error", err)
		os.Exit(1)
	}

	// keep the local occurrence snapshots fresh
	go scheduler.SnapshotRefresh(as)

	go metric.Init(as)

	// http server
	go func() {
		muxer := http.NewServeMux()
		muxer.Handle("GET /metrics", promhttp.Handler())
		route.Timeline(muxer, as)
		route.Occurrence(muxer, as)
		route.History(muxer, as)
		if err := http.ListenAndServe(":"+as.Config.GetPort(), muxer); err != nil {
			slog.Error("cannot start HTTP server", "error", err)
			as.AppCloseSignalChan <- syscall.SIGTERM
		}
	}()

	slog.Info("app is now running, press Ctrl+C to exit")

	signal.Notify(as.AppCloseSignalChan, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-as.AppCloseSignalChan
	as.GracefulShutdown()

	slog.Info("Gracefully shutting down...")
}
