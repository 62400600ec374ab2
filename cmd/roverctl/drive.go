package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"roverctl/internal/config"
	"roverctl/internal/history"
	"roverctl/internal/logging"
	"roverctl/internal/prefs"
	"roverctl/internal/session"
	"roverctl/internal/tui"
)

var (
	driveAddress    string
	driveConfigPath string
	driveDataDir    string
	driveSpeed      int
	drivePoll       time.Duration
	driveLogFile    string
	driveHistoryDB  string
	driveGreptime   string
	driveGreptimeDB string
)

var driveCmd = &cobra.Command{
	Use:   "drive",
	Short: "Open the interactive rover console",
	Long:  "drive starts the operator console: keyboard movement control, mode switching, telemetry polling, and optional history recording.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()
		if driveConfigPath != "" {
			loaded, err := config.Load(driveConfigPath)
			if err != nil {
				return err
			}
			cfg = loaded
		}

		store, err := prefs.Open(filepath.Join(driveDataDir, "roverctl.db"))
		if err != nil {
			return err
		}
		defer store.Close()

		address := driveAddress
		if address == "" {
			if address, err = store.Address(); err != nil {
				return err
			}
		}
		if address == "" {
			address = cfg.Address
		}
		mode, err := store.LastMode()
		if err != nil {
			return err
		}

		poll := drivePoll
		if poll == 0 {
			if poll, err = cfg.Poll(); err != nil {
				return err
			}
		}
		speed := driveSpeed
		if speed < 0 {
			speed = cfg.Speed
		}

		// The console owns the terminal; session logs go to its event pane
		// once the listener is attached.
		ctrl := session.New(store, mode, logging.New(io.Discard, false))
		ui := tui.New(ctrl, address, speed)
		ctrl.SetListener(ui)
		ctrl.SetLogger(ui.Logger())

		recorder, cleanup, err := newRecorder(cfg, ui.Logger())
		if err != nil {
			return err
		}
		defer cleanup()
		if recorder != nil {
			ctrl.SetRecorder(history.Recorder(recorder, uuid.NewString(), ctrl.Address))
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		go func() {
			if address != "" {
				_ = ctrl.Connect(address)
				ctrl.SetSpeed(speed)
			}
			ctrl.RunPolling(ctx, poll)
		}()

		return ui.Run()
	},
}

// newRecorder assembles the configured history sinks, flags overriding the
// config file. Returns a nil writer when no sink is enabled.
func newRecorder(cfg *config.Config, log *slog.Logger) (history.Writer, func(), error) {
	logFile := driveLogFile
	if logFile == "" {
		logFile = cfg.History.File
	}
	historyDB := driveHistoryDB
	if historyDB == "" {
		historyDB = cfg.History.SQLite
	}
	greptime := driveGreptime
	if greptime == "" {
		greptime = cfg.History.GreptimeEndpoint
	}
	greptimeDB := driveGreptimeDB
	if greptimeDB == "" {
		greptimeDB = cfg.History.GreptimeDatabase
	}

	var writers []history.Writer
	var closers []func()
	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}

	if logFile != "" {
		fw, err := history.NewFileWriter(logFile)
		if err != nil {
			return nil, cleanup, err
		}
		writers = append(writers, fw)
		closers = append(closers, func() { fw.Close() })
	}
	if historyDB != "" {
		sw, err := history.NewSQLiteWriter(historyDB)
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		writers = append(writers, sw)
		closers = append(closers, func() { sw.Close() })
	}
	if greptime != "" {
		gw, err := history.NewGreptimeWriter(greptime, greptimeDB, cfg.History.GreptimeTable, log)
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		writers = append(writers, gw)
	}

	if len(writers) == 0 {
		return nil, cleanup, nil
	}
	return history.NewMultiWriter(writers...), cleanup, nil
}

// defaultDataDir keeps the preference database under the user config dir,
// falling back to the working directory.
func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "roverctl")
	}
	return "."
}

func init() {
	driveCmd.Flags().StringVar(&driveAddress, "address", "", "Rover address (host[:port]); defaults to the saved preference")
	driveCmd.Flags().StringVar(&driveConfigPath, "config", "", "Path to client configuration YAML")
	driveCmd.Flags().StringVar(&driveDataDir, "data-dir", defaultDataDir(), "Directory for the preference database")
	driveCmd.Flags().IntVar(&driveSpeed, "speed", -1, "Initial speed setting (0-255)")
	driveCmd.Flags().DurationVar(&drivePoll, "poll", 0, "Telemetry poll interval (e.g. 500ms, 1s)")
	driveCmd.Flags().StringVar(&driveLogFile, "log-file", "", "Path to record telemetry history (JSONL)")
	driveCmd.Flags().StringVar(&driveHistoryDB, "history-db", "", "Path to record telemetry history (SQLite)")
	driveCmd.Flags().StringVar(&driveGreptime, "greptime-endpoint", "", "GreptimeDB endpoint for telemetry history")
	driveCmd.Flags().StringVar(&driveGreptimeDB, "greptime-database", "", "GreptimeDB database name")
}
