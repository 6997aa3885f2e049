// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"fmt"
	"net/netip"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field    string
	Message  string
	Severity string // "error" (default), "warning"
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msg string
	for i, err := range e {
		if i > 0 {
			msg += "; "
		}
		msg += err.Error()
	}
	return msg
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validate validates the entire configuration, range-checking every
// tunable before any service is constructed from it.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	errs = append(errs, c.validateNode()...)
	errs = append(errs, c.validateThresholds()...)
	errs = append(errs, c.validateFirewall()...)
	errs = append(errs, c.validateRPL()...)
	errs = append(errs, c.validateMetrics()...)

	return errs
}

func (c *Config) validateNode() ValidationErrors {
	var errs ValidationErrors
	if c.Node == nil {
		return errs
	}
	if c.Node.Capacity < 1 {
		errs = append(errs, ValidationError{Field: "node.capacity", Message: "must be at least 1 (slot 0 is the root)"})
	}
	if c.Node.NeighborCapacity < 1 {
		errs = append(errs, ValidationError{Field: "node.neighbor_capacity", Message: "must be at least 1"})
	}
	return errs
}

func (c *Config) validateThresholds() ValidationErrors {
	var errs ValidationErrors
	if c.Thresholds == nil {
		return errs
	}
	if c.Thresholds.RoundInterval != "" {
		if d, err := time.ParseDuration(c.Thresholds.RoundInterval); err != nil || d <= 0 {
			errs = append(errs, ValidationError{Field: "thresholds.round_interval", Message: fmt.Sprintf("invalid duration: %s", c.Thresholds.RoundInterval)})
		}
	}
	if c.Thresholds.RecentWindow < 1 {
		errs = append(errs, ValidationError{Field: "thresholds.recent_window", Message: "must be at least 1 round"})
	}
	if c.Thresholds.InconsistencyThreshold < 0 {
		errs = append(errs, ValidationError{Field: "thresholds.inconsistency_threshold", Message: "cannot be negative"})
	}
	return errs
}

func (c *Config) validateFirewall() ValidationErrors {
	var errs ValidationErrors
	if c.Firewall == nil {
		return errs
	}
	if c.Firewall.GlobalFilters < 1 {
		errs = append(errs, ValidationError{Field: "firewall.global_filters", Message: "must be at least 1"})
	}
	if c.Firewall.SmallFilters < 1 {
		errs = append(errs, ValidationError{Field: "firewall.small_filters", Message: "must be at least 1"})
	}
	if c.Firewall.QueueNum < 0 || c.Firewall.QueueNum > 0xffff {
		errs = append(errs, ValidationError{Field: "firewall.queue_num", Message: "must fit in 16 bits"})
	}
	if c.Firewall.NFLOGroup < 0 || c.Firewall.NFLOGroup > 0xffff {
		errs = append(errs, ValidationError{Field: "firewall.nflog_group", Message: "must fit in 16 bits"})
	}
	return errs
}

func (c *Config) validateRPL() ValidationErrors {
	var errs ValidationErrors
	if c.RPL == nil {
		return errs
	}
	if c.RPL.MinHopRankInc == 0 {
		errs = append(errs, ValidationError{Field: "rpl.min_hoprankinc", Message: "must be nonzero"})
	}
	if c.RPL.DAGID != "" {
		if _, err := netip.ParseAddr(c.RPL.DAGID); err != nil {
			errs = append(errs, ValidationError{Field: "rpl.dag_id", Message: fmt.Sprintf("invalid IPv6 address: %s", c.RPL.DAGID)})
		}
	}
	return errs
}

func (c *Config) validateMetrics() ValidationErrors {
	var errs ValidationErrors
	if c.Metrics == nil || !c.Metrics.Enabled {
		return errs
	}
	if c.Metrics.ListenAddr == "" {
		errs = append(errs, ValidationError{Field: "metrics.listen_addr", Message: "required when metrics are enabled"})
	}
	return errs
}
