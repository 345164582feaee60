package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/raykavin/intrabot/trailing"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
log_level: debug
data:
  dir: ./testdata
  feeds:
    - symbol: RELIANCE
      file: reliance.csv
    - symbol: TCS
      file: tcs.csv
simulation:
  seed: 42
  ticks_per_candle: 10
  spread: 0.001
  speed: 0
risk:
  capital: 500000
  per_strategy_cap: 2
  global_cap: 4
  notional_cap: 400000
  daily_loss_cap: 15000
strategies:
  - class: rsi_momentum
    id: rsi-1
    params:
      rsi_period: 14
      oversold: 30
    trailing:
      policy: atr
      atr_period: 14
      multiplier: 2.5
  - class: super_trend
    id: st-1
storage:
  backend: buntdb
  path: ./journal.db
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "intrabot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FullFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.LogLevel)
	require.Len(t, cfg.Data.Feeds, 2)
	require.Equal(t, "RELIANCE", cfg.Data.Feeds[0].Symbol)
	require.EqualValues(t, 42, cfg.Simulation.Seed)
	require.InDelta(t, 500000, cfg.Risk.Capital, 1e-9)
	require.Equal(t, 2, cfg.Risk.PerStrategyCap)

	require.Len(t, cfg.Strategies, 2)
	require.Equal(t, "rsi_momentum", cfg.Strategies[0].Class)
	require.Equal(t, trailing.PolicyATR, cfg.Strategies[0].Trailing.Policy)
	require.InDelta(t, 2.5, cfg.Strategies[0].Trailing.Multiplier, 1e-9)
	require.EqualValues(t, 14, cfg.Strategies[0].Params["rsi_period"])

	require.Equal(t, "buntdb", cfg.Storage.Backend)
}

func TestLoad_DefaultsFillGaps(t *testing.T) {
	cfg, err := Load(writeConfig(t, "risk:\n  capital: 100000\n"))
	require.NoError(t, err)

	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 10, cfg.Simulation.TicksPerCandle)
	require.InDelta(t, 0.001, cfg.Simulation.Spread, 1e-12)
	require.Equal(t, "15:00", cfg.Session.WarningAt)
	require.Equal(t, "15:15", cfg.Session.SquareOffAt)
	require.Equal(t, 3, cfg.Risk.PerStrategyCap)
	require.Equal(t, 5, cfg.Risk.GlobalCap)
	require.InDelta(t, 0.10, cfg.Order.AllocationPct, 1e-12)
	require.Equal(t, "none", cfg.Storage.Backend)
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name  string
		yaml  string
		wants string
	}{
		{"negative capital", "risk:\n  capital: -5\n", "risk.capital"},
		{"one tick per candle", "simulation:\n  ticks_per_candle: 1\n", "ticks_per_candle"},
		{"bad warning time", "session:\n  warning_at: quarter-past\n", "warning_at"},
		{"strategy without id", "strategies:\n  - class: rsi_momentum\n", "id is required"},
		{"duplicate strategy id", "strategies:\n  - class: rsi_momentum\n    id: a\n  - class: super_trend\n    id: a\n", "duplicate id"},
		{"unknown backend", "storage:\n  backend: cassandra\n", "storage.backend"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wants)
		})
	}
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}
