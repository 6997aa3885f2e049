// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import "ravelid.dev/ravelid/internal/logging"

// CurrentSchemaVersion defines the current schema version of the configuration.
const CurrentSchemaVersion = "1.0"

// Config is the top-level structure for ravelid's root configuration: the
// mapping/detector tunables, the UDP listen addresses for the four ports,
// and the logging/metrics blocks.
type Config struct {
	// Schema version for backward compatibility.
	// @default: "1.0"
	SchemaVersion string `hcl:"schema_version,optional" json:"schema_version,omitempty"`

	Node       *NodeConfig       `hcl:"node,block" json:"node,omitempty"`
	Thresholds *ThresholdsConfig `hcl:"thresholds,block" json:"thresholds,omitempty"`
	Network    *NetworkConfig    `hcl:"network,block" json:"network,omitempty"`
	Firewall   *FirewallConfig   `hcl:"firewall,block" json:"firewall,omitempty"`
	RPL        *RPLConfig        `hcl:"rpl,block" json:"rpl,omitempty"`
	Metrics    *MetricsConfig    `hcl:"metrics,block" json:"metrics,omitempty"`

	// Syslog remote logging, shared with internal/logging's own config shape.
	Syslog *logging.SyslogConfig `hcl:"syslog,block" json:"syslog,omitempty"`

	// Log directory; when set, records are also written to ravelid.log in
	// it. Empty disables file logging.
	LogDir string `hcl:"log_dir,optional" json:"log_dir,omitempty"`
	// @enum: debug,info,warn,error
	// @default: "info"
	LogLevel string `hcl:"log_level,optional" json:"log_level,omitempty"`
}

// NodeConfig sizes the fixed-capacity network graph arena.
type NodeConfig struct {
	// Node capacity (N). Index 0 is reserved for the root.
	// @default: 13
	Capacity int `hcl:"capacity,optional" json:"capacity,omitempty"`
	// Neighbors per node (D).
	// @default: 8
	NeighborCapacity int `hcl:"neighbor_capacity,optional" json:"neighbor_capacity,omitempty"`
}

// ThresholdsConfig holds the round timing and detector tunables.
type ThresholdsConfig struct {
	// @default: "120s"
	RoundInterval string `hcl:"round_interval,optional" json:"round_interval,omitempty"`
	// Rounds within which a node's reply is considered current, not stale.
	// @default: 1
	RecentWindow int `hcl:"recent_window,optional" json:"recent_window,omitempty"`
	// Repeated-offense count before a detector flag is believed.
	// @default: 2
	InconsistencyThreshold int `hcl:"inconsistency_threshold,optional" json:"inconsistency_threshold,omitempty"`
}

// NetworkConfig carries the UDP listen addresses for the mapping and
// firewall-install protocols.
type NetworkConfig struct {
	// @default: ":4713"
	MapperClientAddr string `hcl:"mapper_client_addr,optional" json:"mapper_client_addr,omitempty"`
	// @default: ":4714"
	MapperServerAddr string `hcl:"mapper_server_addr,optional" json:"mapper_server_addr,omitempty"`
	// @default: ":4715"
	FirewallClientAddr string `hcl:"firewall_client_addr,optional" json:"firewall_client_addr,omitempty"`
	// @default: ":4716"
	FirewallServerAddr string `hcl:"firewall_server_addr,optional" json:"firewall_server_addr,omitempty"`
}

// FirewallConfig sizes the global/small filter tables and names the
// kernel hook attachment points.
type FirewallConfig struct {
	// Global filter ring capacity (G).
	// @default: 10
	GlobalFilters int `hcl:"global_filters,optional" json:"global_filters,omitempty"`
	// Small (per-destination) filter table capacity (S).
	// @default: 10
	SmallFilters int `hcl:"small_filters,optional" json:"small_filters,omitempty"`
	// Linux interface the nftables datapath hook attaches to.
	Interface string `hcl:"interface,optional" json:"interface,omitempty"`
	// nftables table name for the global-filter set and forward chain.
	// @default: "ravelid"
	NFTTable string `hcl:"nft_table,optional" json:"nft_table,omitempty"`
	// NFQUEUE number forwarded packets are queued to for the small-filter
	// check.
	// @default: 713
	QueueNum int `hcl:"queue_num,optional" json:"queue_num,omitempty"`
	// NFLOG group the datapath reads for the audit trail. The nftables rules
	// ravelid installs do not log to this group themselves.
	// @default: 713
	NFLOGroup int `hcl:"nflog_group,optional" json:"nflog_group,omitempty"`
}

// RPLConfig declares the static instance/DAG table. The instance state
// lives inside the embedded RPL stack on the mesh nodes, which the border
// router does not itself run, so the values are declared here instead of
// read from the kernel.
type RPLConfig struct {
	InstanceID    uint8  `hcl:"instance_id" json:"instance_id"`
	MinHopRankInc uint16 `hcl:"min_hoprankinc" json:"min_hoprankinc"`
	DAGID         string `hcl:"dag_id" json:"dag_id"`
	DAGVersion    uint8  `hcl:"dag_version,optional" json:"dag_version,omitempty"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	// @default: false
	Enabled bool `hcl:"enabled,optional" json:"enabled,omitempty"`
	// @default: ":9713"
	ListenAddr string `hcl:"listen_addr,optional" json:"listen_addr,omitempty"`
}

// Default returns a Config populated with every documented default.
func Default() *Config {
	return &Config{
		SchemaVersion: CurrentSchemaVersion,
		Node:          &NodeConfig{Capacity: 13, NeighborCapacity: 8},
		Thresholds:    &ThresholdsConfig{RoundInterval: "120s", RecentWindow: 1, InconsistencyThreshold: 2},
		Network: &NetworkConfig{
			MapperClientAddr:   ":4713",
			MapperServerAddr:   ":4714",
			FirewallClientAddr: ":4715",
			FirewallServerAddr: ":4716",
		},
		Firewall: &FirewallConfig{GlobalFilters: 10, SmallFilters: 10, NFTTable: "ravelid", QueueNum: 713, NFLOGroup: 713},
		Metrics:  &MetricsConfig{Enabled: false, ListenAddr: ":9713"},
		LogLevel: "info",
	}
}
