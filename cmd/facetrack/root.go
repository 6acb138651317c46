package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"facetrack"
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "facetrack",
	Short:   "Real-time face tracking engine",
	Version: Version,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// loadConfigFile reads a JSON tracker configuration over the defaults
func loadConfigFile(filename string) (facetrack.Config, error) {
	cfg := facetrack.DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}
	return cfg, nil
}
