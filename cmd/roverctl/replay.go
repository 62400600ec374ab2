package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"roverctl/internal/history"
)

var (
	replayInput string
	replaySpeed float64
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded telemetry log",
	Long:  "replay feeds rows from a JSONL history log back to STDOUT, paced by their timestamps.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		return history.ReplayFile(replayInput, newPrintWriter(), replaySpeed)
	},
}

// printWriter renders replayed rows as colored lines on a terminal, JSONL
// otherwise.
type printWriter struct {
	colorize bool
	enc      *json.Encoder
}

func newPrintWriter() *printWriter {
	return &printWriter{
		colorize: term.IsTerminal(int(os.Stdout.Fd())),
		enc:      json.NewEncoder(os.Stdout),
	}
}

func (w *printWriter) Write(row history.Row) error {
	if !w.colorize {
		return w.enc.Encode(row)
	}
	dist := "n/a"
	if row.Distance != nil {
		dist = fmt.Sprintf("%.1f", *row.Distance)
	}
	distColor := colorGreen
	switch row.Band {
	case "red":
		distColor = colorRed
	case "orange":
		distColor = colorYellow
	case "":
		distColor = colorGray
	}
	fmt.Printf("%s[%s]%s batt=%.2f rssi=%d cmd=%s mode=%s %sdist=%s%s\n",
		colorGray, row.Timestamp.Format(time.RFC3339), colorReset,
		row.Battery, row.RSSI, row.Command, row.Mode,
		distColor, dist, colorReset,
	)
	return nil
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to JSONL history log")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (0 disables pacing)")
	replayCmd.MarkFlagRequired("input")
}
