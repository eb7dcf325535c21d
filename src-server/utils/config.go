package utils

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

type Config struct {
	port string

	recurrenceApiUrl string
	remoteTimeout    time.Duration

	location     *time.Location
	userLocation *time.Location

	finishEarlyBufferMinutes int
	minuteGranularity        int

	snapshotInterval         time.Duration
	metricCollectionInterval time.Duration

	sqlitePath string
}

func NewConfig() *Config {
	return &Config{
		port: func() string {
			port := os.Getenv("PORT")
			if port == "" {
				port = "8080"
			}
			slog.Debug("env", "PORT", port)
			return port
		}(),

		recurrenceApiUrl: func() string {
			recurrenceApiUrl := os.Getenv("RECURRENCE_API_URL")
			if recurrenceApiUrl == "" {
				slog.Error("RECURRENCE_API_URL is not set")
				os.Exit(1)
			}
			slog.Debug("env", "RECURRENCE_API_URL", recurrenceApiUrl)
			return recurrenceApiUrl
		}(),
		remoteTimeout: func() time.Duration {
			remoteTimeout := os.Getenv("REMOTE_TIMEOUT")
			if remoteTimeout == "" {
				remoteTimeout = "30s"
			}
			duration, err := time.ParseDuration(remoteTimeout)
			if err != nil {
				slog.Error("invalid REMOTE_TIMEOUT", "error", err)
				os.Exit(1)
			}
			slog.Debug("env", "REMOTE_TIMEOUT", remoteTimeout, "duration", duration)
			return duration
		}(),

		location: func() *time.Location {
			timezoneStr := os.Getenv("TIMEZONE")
			var loc *time.Location
			var err error
			switch timezoneStr {
			case "":
				slog.Warn("TIMEZONE is not set, using local timezone", "timezone", time.Local)
				loc = time.Local
			case "UTC":
				loc = time.UTC
			default:
				loc, err = time.LoadLocation(timezoneStr)
				if err != nil {
					slog.Error("invalid timezone", "timezone", timezoneStr, "error", err)
					os.Exit(1)
				}
			}
			slog.Debug("env", "TIMEZONE", timezoneStr)
			return loc
		}(),
		userLocation: func() *time.Location {
			timezoneStr := os.Getenv("USER_TIMEZONE")
			if timezoneStr == "" {
				return nil
			}
			loc, err := time.LoadLocation(timezoneStr)
			if err != nil {
				slog.Error("invalid user timezone", "timezone", timezoneStr, "error", err)
				os.Exit(1)
			}
			slog.Debug("env", "USER_TIMEZONE", timezoneStr)
			return loc
		}(),

		finishEarlyBufferMinutes: func() int {
			finishEarlyBufferMinutes := os.Getenv("FINISH_EARLY_BUFFER_MINUTES")
			if finishEarlyBufferMinutes == "" {
				finishEarlyBufferMinutes = "15"
			}
			minutes, err := strconv.Atoi(finishEarlyBufferMinutes)
			if err != nil || minutes < 0 {
				slog.Error("invalid FINISH_EARLY_BUFFER_MINUTES", "value", finishEarlyBufferMinutes, "error", err)
				os.Exit(1)
			}
			slog.Debug("env", "FINISH_EARLY_BUFFER_MINUTES", minutes)
			return minutes
		}(),
		minuteGranularity: func() int {
			minuteGranularity := os.Getenv("MINUTE_GRANULARITY")
			if minuteGranularity == "" {
				minuteGranularity = "5"
			}
			minutes, err := strconv.Atoi(minuteGranularity)
			if err != nil || minutes <= 0 {
				slog.Error("invalid MINUTE_GRANULARITY", "value", minuteGranularity, "error", err)
				os.Exit(1)
			}
			slog.Debug("env", "MINUTE_GRANULARITY", minutes)
			return minutes
		}(),

		snapshotInterval: func() time.Duration {
			snapshotInterval := os.Getenv("SNAPSHOT_INTERVAL")
			if snapshotInterval == "" {
				snapshotInterval = "5m"
			}
			duration, err := time.ParseDuration(snapshotInterval)
			if err != nil {
				slog.Error("invalid SNAPSHOT_INTERVAL", "error", err)
				os.Exit(1)
			}
			slog.Debug("env", "SNAPSHOT_INTERVAL", snapshotInterval, "duration", duration)
			return duration
		}(),
		metricCollectionInterval: func() time.Duration {
			metricCollectionInterval := os.Getenv("METRIC_COLLECTION_INTERVAL")
			if metricCollectionInterval == "" {
				metricCollectionInterval = "10m"
			}
			duration, err := time.ParseDuration(metricCollectionInterval)
			if err != nil {
				slog.Error("invalid METRIC_COLLECTION_INTERVAL", "error", err)
				os.Exit(1)
			}
			slog.Debug("env", "METRIC_COLLECTION_INTERVAL", metricCollectionInterval, "duration", duration)
			return duration
		}(),

		sqlitePath: func() string {
			sqlitePath := os.Getenv("SQLITE_PATH")
			if sqlitePath == "" {
				sqlitePath = "./sqlite.db"
			}
			slog.Debug("env", "SQLITE_PATH", sqlitePath)
			return sqlitePath
		}(),
	}
}

// Get PORT env, default to 8080
func (c *Config) GetPort() string {
	return c.port
}

// Get RECURRENCE_API_URL env
func (c *Config) GetRecurrenceApiUrl() string {
	return c.recurrenceApiUrl
}

// Get REMOTE_TIMEOUT env, default to 30s
func (c *Config) GetRemoteTimeout() time.Duration {
	return c.remoteTimeout
}

// Get TIMEZONE env
func (c *Config) GetLocation() *time.Location {
	return c.location
}

// Get USER_TIMEZONE env; falls back to TIMEZONE when not set
func (c *Config) GetUserLocation() *time.Location {
	if c.userLocation == nil {
		return c.location
	}
	return c.userLocation
}

// Get FINISH_EARLY_BUFFER_MINUTES env, default to 15
func (c *Config) GetFinishEarlyBufferMinutes() int {
	return c.finishEarlyBufferMinutes
}

// Get MINUTE_GRANULARITY env, default to 5
func (c *Config) GetMinuteGranularity() int {
	return c.minuteGranularity
}

// Get SNAPSHOT_INTERVAL env, default to 5m
func (c *Config) GetSnapshotInterval() time.Duration {
	return c.snapshotInterval
}

// Get METRIC_COLLECTION_INTERVAL env, default to 10m
func (c *Config) GetMetricCollectionInterval() time.Duration {
	return c.metricCollectionInterval
}

// Get SQLITE_PATH env, default to ./sqlite.db
func (c *Config) GetSqlitePath() string {
	return c.sqlitePath
}
