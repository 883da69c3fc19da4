package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Options Analyzer Configuration

[store]
# SQLite snapshot database (default: <config dir>/snapshots.db)
path = ""

[log]
# Log level: debug, info, warn, error
level = "info"
# Write a rotating log file next to the config
file = true
max_size = 50
max_backups = 5
max_age = 30

[market]
# Timezone the price bars are expressed in
timezone = "Etc/GMT-1"
# Hour bucket that stands for the session close
close_hour = "21_59"
# Ticker whose daily close quotes the risk-free rate in percent
rate_proxy = "^IRX"

[analytics]
# Target maturity for interpolated ATM IV and skew
target_dte = 30
# Absolute delta used by the skew indicators
delta_target = 0.25
# Smile smoothing: interpolate, savgol, none
smoothing = "interpolate"
# Resolution of the IV surface grid
surface_grid = 50
trading_days = 252
# Compare open interest on both snapshots in variation "oi" mode
symmetric_oi = false
# Use a single spot factor in the vanna exposure
single_spot_vex = false

[montecarlo]
simulations = 1000
# 0 draws a fresh seed per run
seed = 0

[retry]
max_attempts = 3
initial_delay = "500ms"
max_delay = "5s"

[workers]
count = 4
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}

// TemplatePath returns where the config file lives in configDir.
func TemplatePath(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "config.toml")
}
