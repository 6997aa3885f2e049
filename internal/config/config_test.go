// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromBytes(t *testing.T) {
	src := `
node {
  capacity          = 20
  neighbor_capacity = 6
}

thresholds {
  round_interval          = "60s"
  recent_window           = 1
  inconsistency_threshold = 3
}

rpl {
  instance_id    = 1
  min_hoprankinc = 256
  dag_id         = "aaaa::1"
  dag_version    = 1
}

log_level = "debug"
`
	cf, err := LoadConfigFromBytes("test.hcl", []byte(src))
	require.NoError(t, err)
	require.Equal(t, 20, cf.Config.Node.Capacity)
	require.Equal(t, 6, cf.Config.Node.NeighborCapacity)
	require.Equal(t, "60s", cf.Config.Thresholds.RoundInterval)
	require.Equal(t, 3, cf.Config.Thresholds.InconsistencyThreshold)
	require.Equal(t, uint16(256), cf.Config.RPL.MinHopRankInc)
	require.Equal(t, "aaaa::1", cf.Config.RPL.DAGID)
	require.Equal(t, "debug", cf.Config.LogLevel)
	require.False(t, cf.HasChanges())
	require.Empty(t, cf.Config.Validate())
}

func TestLoadConfigFromBytesRejectsBadHCL(t *testing.T) {
	_, err := LoadConfigFromBytes("bad.hcl", []byte("node {"))
	require.Error(t, err)
}

func TestSetAttributeRoundTrip(t *testing.T) {
	cf, err := LoadConfigFromBytes("test.hcl", []byte(`log_level = "info"`))
	require.NoError(t, err)

	require.NoError(t, cf.SetAttribute("log_level", "warn"))
	require.Equal(t, "warn", cf.Config.LogLevel)
	require.True(t, cf.HasChanges())
}

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); errs.HasErrors() {
		t.Fatalf("default config should validate cleanly, got: %v", errs)
	}
}

func TestValidateRejectsZeroNodeCapacity(t *testing.T) {
	cfg := Default()
	cfg.Node.Capacity = 0
	errs := cfg.Validate()
	if !errs.HasErrors() {
		t.Fatal("expected validation error for zero node capacity")
	}
}

func TestValidateRejectsBadRoundInterval(t *testing.T) {
	cfg := Default()
	cfg.Thresholds.RoundInterval = "not-a-duration"
	errs := cfg.Validate()
	if !errs.HasErrors() {
		t.Fatal("expected validation error for malformed round_interval")
	}
}

func TestValidateRejectsMetricsWithoutListenAddr(t *testing.T) {
	cfg := Default()
	cfg.Metrics.Enabled = true
	cfg.Metrics.ListenAddr = ""
	errs := cfg.Validate()
	if !errs.HasErrors() {
		t.Fatal("expected validation error for metrics enabled without listen_addr")
	}
}

func TestValidateRejectsOutOfRangeQueueNum(t *testing.T) {
	cfg := Default()
	cfg.Firewall.QueueNum = 1 << 17
	errs := cfg.Validate()
	if !errs.HasErrors() {
		t.Fatal("expected validation error for queue_num outside 16 bits")
	}
}

func TestLoadConfigFromBytesRoundTrip(t *testing.T) {
	src := `
log_level = "debug"

node {
  capacity          = 20
  neighbor_capacity = 4
}

thresholds {
  round_interval          = "60s"
  recent_window           = 2
  inconsistency_threshold = 3
}
`
	cf, err := LoadConfigFromBytes("test.hcl", []byte(src))
	if err != nil {
		t.Fatalf("LoadConfigFromBytes: %v", err)
	}
	if cf.Config.Node.Capacity != 20 {
		t.Errorf("Node.Capacity = %d, want 20", cf.Config.Node.Capacity)
	}
	if cf.Config.Thresholds.RecentWindow != 2 {
		t.Errorf("Thresholds.RecentWindow = %d, want 2", cf.Config.Thresholds.RecentWindow)
	}
	if cf.HasChanges() {
		t.Error("freshly loaded config should report no changes")
	}
}
