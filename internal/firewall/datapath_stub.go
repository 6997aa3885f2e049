// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux
// +build !linux

package firewall

import (
	"context"

	"ravelid.dev/ravelid/internal/config"
	"ravelid.dev/ravelid/internal/errors"
	"ravelid.dev/ravelid/internal/logging"
	"ravelid.dev/ravelid/internal/metrics"
	"ravelid.dev/ravelid/internal/services"
)

var _ services.Service = (*Datapath)(nil)

// Config carries the Linux-only datapath tunables. It stays defined on every
// platform so cmd/ravelid can build its flag set uniformly.
type Config struct {
	TableName string
	QueueNum  uint16
	NFLOGroup uint16
}

// Datapath is a stub on non-Linux systems; the nftables/nfqueue/nflog
// kernel hooks only exist on Linux border routers. Listener (listener.go)
// still handles FirewallInstall requests and keeps FilterSet up to date on
// every platform — only the in-kernel drop/queue wiring is unavailable.
type Datapath struct{}

// NewDatapath returns a Datapath whose Start always fails on non-Linux.
func NewDatapath(cfg Config, filters *FilterSet, logger *logging.Logger, mc *metrics.Collector) *Datapath {
	return &Datapath{}
}

// Name implements services.Service.
func (d *Datapath) Name() string { return "firewall-datapath" }

// Status implements services.Service.
func (d *Datapath) Status() services.ServiceStatus {
	return services.ServiceStatus{Name: d.Name(), Running: false, Error: "unsupported on this platform"}
}

// Reload implements services.Service.
func (d *Datapath) Reload(cfg *config.Config) (restarted bool, err error) { return false, nil }

// Start always fails on non-Linux systems.
func (d *Datapath) Start(ctx context.Context) error {
	return errors.New(errors.KindUnavailable, "firewall: nftables/nfqueue/nflog datapath is only supported on linux")
}

// Stop is a no-op; Start never succeeded.
func (d *Datapath) Stop(ctx context.Context) error { return nil }

// Resync is a no-op on non-Linux systems.
func (d *Datapath) Resync() {}
