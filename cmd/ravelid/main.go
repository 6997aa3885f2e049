// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command ravelid is the RPL border-router daemon: it runs the mapping
// engine, the detector, and the firewall aggregator's listener and kernel
// datapath hook side by side, and serves Prometheus metrics when enabled.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"ravelid.dev/ravelid/internal/audit"
	"ravelid.dev/ravelid/internal/config"
	"ravelid.dev/ravelid/internal/firewall"
	"ravelid.dev/ravelid/internal/graph"
	"ravelid.dev/ravelid/internal/logging"
	"ravelid.dev/ravelid/internal/mapping"
	"ravelid.dev/ravelid/internal/metrics"
	"ravelid.dev/ravelid/internal/rpl"
	"ravelid.dev/ravelid/internal/services"
)

func main() {
	configPath := flag.String("config", "", "Path to HCL config file")
	simMode := flag.Bool("sim", false, "Run against an in-memory RPL table instead of the kernel's")
	iface := flag.String("iface", "", "Interface name for the netlink routing/address readers (overrides config)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		cf, err := config.LoadConfigFile(*configPath)
		if err != nil {
			log.Fatalf("ravelid: load config: %v", err)
		}
		cfg = cf.Config
	}
	if errs := cfg.Validate(); errs.HasErrors() {
		log.Fatalf("ravelid: invalid config: %v", errs)
	}
	if *iface != "" && cfg.Firewall != nil {
		cfg.Firewall.Interface = *iface
	}

	var logFilePath string
	if cfg.LogDir != "" {
		logFilePath = filepath.Join(cfg.LogDir, "ravelid.log")
	}
	logger := logging.New(logging.Config{
		Level:      cfg.LogLevel,
		JSON:       true,
		FilePath:   logFilePath,
		MaxSizeMB:  50,
		MaxBackups: 5,
		MaxAgeDays: 28,
		Syslog:     syslogConfig(cfg),
	})
	defer logger.Close()

	al := audit.NewLogger(logger)
	mc := metrics.NewCollector(logger)
	if err := mc.Register(); err != nil {
		logger.Warn("ravelid: metrics registration failed", "error", err)
	}

	routes, instances, local := buildRPLSources(cfg, *simMode, logger)

	g := graph.New(cfg.Node.Capacity, cfg.Node.NeighborCapacity)
	g.ResetRootNeighbors(routes)

	mappingCfg := mapping.Config{
		RoundInterval:          mustDuration(cfg.Thresholds.RoundInterval, 120*time.Second),
		RecentWindow:           cfg.Thresholds.RecentWindow,
		InconsistencyThreshold: cfg.Thresholds.InconsistencyThreshold,
		NodeCapacity:           cfg.Node.Capacity,
		MapperClientPort:       udpPort(cfg.Network.MapperClientAddr, 4713),
		MapperServerAddr:       cfg.Network.MapperServerAddr,
	}
	engine := mapping.New(mappingCfg, g, routes, instances, local, logger, al, mc)

	filters := firewall.NewFilterSet(cfg.Firewall.GlobalFilters, cfg.Firewall.SmallFilters)
	datapath := firewall.NewDatapath(firewall.Config{
		TableName: cfg.Firewall.NFTTable,
		QueueNum:  uint16(cfg.Firewall.QueueNum),
		NFLOGroup: uint16(cfg.Firewall.NFLOGroup),
	}, filters, logger, mc)
	listener := firewall.NewListener(cfg.Network.FirewallServerAddr, filters, logger, al, mc, datapath)

	svcs := []services.Service{engine, listener, datapath}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	for _, s := range svcs {
		if err := s.Start(ctx); err != nil {
			logger.Warn("ravelid: service failed to start", "service", s.Name(), "error", err)
			continue
		}
		logger.Info("ravelid: service started", "service", s.Name())
	}

	var metricsSrv *http.Server
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("ravelid: metrics server exited", "error", err)
			}
		}()
		logger.Info("ravelid: metrics listening", "addr", cfg.Metrics.ListenAddr)
	}

	<-ctx.Done()
	logger.Info("ravelid: shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if metricsSrv != nil {
		metricsSrv.Shutdown(shutdownCtx)
	}
	for _, s := range svcs {
		if err := s.Stop(shutdownCtx); err != nil {
			logger.Warn("ravelid: service failed to stop cleanly", "service", s.Name(), "error", err)
		}
	}
}

// buildRPLSources picks the Linux netlink-backed routing/instance/address
// readers, or an in-memory SimTable, per -sim and the RPL config block.
func buildRPLSources(cfg *config.Config, sim bool, logger *logging.Logger) (rpl.RoutingTable, rpl.InstanceTable, rpl.LocalAddrs) {
	if sim {
		root := netip.IPv6Unspecified()
		if cfg.RPL != nil {
			if a, err := netip.ParseAddr(cfg.RPL.DAGID); err == nil {
				root = a
			}
		}
		st := rpl.NewSimTable(root)
		if cfg.RPL != nil {
			st.SetInstance(cfg.RPL.InstanceID, cfg.RPL.MinHopRankInc, root, cfg.RPL.DAGVersion)
		}
		return st, st, st
	}

	routes, err := rpl.NewLinuxRoutingTable(cfg.Firewall.Interface)
	if err != nil {
		logger.Warn("ravelid: netlink routing table unavailable, falling back to an empty table", "error", err)
		routes = nil
	}
	local := rpl.NewLinuxLocalAddrs(cfg.Firewall.Interface)

	var instances rpl.InstanceTable = rpl.NewStaticInstanceTable(nil)
	if cfg.RPL != nil {
		dagID, _ := netip.ParseAddr(cfg.RPL.DAGID)
		instances = rpl.NewStaticInstanceTable([]rpl.Instance{{
			Used:          true,
			InstanceID:    cfg.RPL.InstanceID,
			MinHopRankInc: cfg.RPL.MinHopRankInc,
			DAGs: []rpl.DAG{{
				Used:    true,
				DAGID:   dagID,
				Version: cfg.RPL.DAGVersion,
			}},
		}})
	}

	var rt rpl.RoutingTable = routes
	if routes == nil {
		rt = rpl.NewSimTable(netip.IPv6Unspecified())
	}
	return rt, instances, local
}

func syslogConfig(cfg *config.Config) logging.SyslogConfig {
	if cfg.Syslog != nil {
		return *cfg.Syslog
	}
	return logging.DefaultSyslogConfig()
}

func mustDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func udpPort(addr string, fallback int) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fallback
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fallback
	}
	return port
}
