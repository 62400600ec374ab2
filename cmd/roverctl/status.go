package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"roverctl/internal/config"
	"roverctl/internal/prefs"
	"roverctl/internal/rover"
)

const (
	colorReset  = "\x1b[0m"
	colorRed    = "\x1b[31m"
	colorGreen  = "\x1b[32m"
	colorYellow = "\x1b[33m"
	colorGray   = "\x1b[90m"
)

var (
	statusAddress    string
	statusConfigPath string
	statusDataDir    string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Fetch one telemetry readout",
	Long:  "status polls the rover once and prints the telemetry. Output is colorized on a terminal, JSON when piped.",
	RunE: func(cmd *cobra.Command, args []string) error {
		address := statusAddress
		if address == "" {
			store, err := prefs.Open(filepath.Join(statusDataDir, "roverctl.db"))
			if err != nil {
				return err
			}
			address, err = store.Address()
			store.Close()
			if err != nil {
				return err
			}
		}
		if address == "" && statusConfigPath != "" {
			cfg, err := config.Load(statusConfigPath)
			if err != nil {
				return err
			}
			address = cfg.Address
		}
		if address == "" {
			return fmt.Errorf("no rover address: pass --address or connect once with drive")
		}

		client := rover.NewClient(address)
		ctx, cancel := context.WithTimeout(cmd.Context(), rover.RequestTimeout)
		defer cancel()
		tel, err := client.Status(ctx)
		if err != nil {
			return err
		}

		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return json.NewEncoder(os.Stdout).Encode(tel)
		}
		printTelemetry(client.BaseURL(), tel)
		return nil
	},
}

func printTelemetry(base string, tel rover.Telemetry) {
	fmt.Printf("%srover%s    %s\n", colorGray, colorReset, base)
	fmt.Printf("battery  %.2f V\n", tel.Battery)
	fmt.Printf("signal   %d dBm\n", tel.RSSI)
	fmt.Printf("command  %s\n", tel.Command)
	if tel.Mode != "" {
		fmt.Printf("mode     %s\n", tel.Mode)
	}
	if tel.Distance == nil {
		fmt.Printf("distance %sn/a%s\n", colorGray, colorReset)
		return
	}
	color := colorGreen
	switch {
	case *tel.Distance < 15:
		color = colorRed
	case *tel.Distance < 35:
		color = colorYellow
	}
	fmt.Printf("distance %s%.1f cm%s\n", color, *tel.Distance, colorReset)
}

func init() {
	statusCmd.Flags().StringVar(&statusAddress, "address", "", "Rover address (host[:port]); defaults to the saved preference")
	statusCmd.Flags().StringVar(&statusConfigPath, "config", "", "Path to client configuration YAML")
	statusCmd.Flags().StringVar(&statusDataDir, "data-dir", defaultDataDir(), "Directory for the preference database")
}
