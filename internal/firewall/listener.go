// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package firewall

import (
	"context"
	"net"
	"net/netip"
	"time"

	"ravelid.dev/ravelid/internal/audit"
	"ravelid.dev/ravelid/internal/config"
	"ravelid.dev/ravelid/internal/logging"
	"ravelid.dev/ravelid/internal/metrics"
	"ravelid.dev/ravelid/internal/services"
	"ravelid.dev/ravelid/internal/wire"
)

var _ services.Service = (*Listener)(nil)

// resyncer is the subset of Datapath (Linux) / the non-Linux stub that the
// listener needs: a way to push a promoted filter into the kernel-side
// nftables mirror without this package caring which build tag built it.
type resyncer interface {
	Resync()
}

// Listener is the UDP-facing half of the firewall aggregator: it binds
// the install port, decodes each datagram as a wire.FirewallInstall
// request, and hands it to a FilterSet. Unlike the mapping engine's
// round/host state machine, this process has no round structure of its
// own; every datagram is handled independently as it arrives.
type Listener struct {
	addr     string
	filters  *FilterSet
	logger   *logging.Logger
	audit    *audit.Logger
	metrics  *metrics.Collector
	datapath resyncer

	conn    *net.UDPConn
	running bool
	lastErr error
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

// NewListener builds a Listener bound (on Start) to addr, dispatching
// accepted requests into filters. datapath may be nil (e.g. in tests, or on
// platforms without a kernel-side datapath); when set, a promoted filter
// triggers an immediate Resync so the nftables set never lags the
// in-process FilterSet for more than one install.
func NewListener(addr string, filters *FilterSet, logger *logging.Logger, al *audit.Logger, mc *metrics.Collector, datapath resyncer) *Listener {
	return &Listener{addr: addr, filters: filters, logger: logger, audit: al, metrics: mc, datapath: datapath}
}

// Name implements services.Service.
func (l *Listener) Name() string { return "firewall" }

// Status implements services.Service.
func (l *Listener) Status() services.ServiceStatus {
	st := services.ServiceStatus{Name: l.Name(), Running: l.running}
	if l.lastErr != nil {
		st.Error = l.lastErr.Error()
	}
	return st
}

// Reload implements services.Service. The listen address cannot be changed
// without rebinding, so Reload is a no-op; the filter capacities it was
// constructed with likewise require a process restart to resize.
func (l *Listener) Reload(cfg *config.Config) (restarted bool, err error) {
	return false, nil
}

// Start implements services.Service: it binds the socket and launches the
// receive loop in the background, returning once the bind has either
// succeeded or failed.
func (l *Listener) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.doneCh = make(chan struct{})

	ready := make(chan error, 1)
	go func() {
		defer close(l.doneCh)
		l.lastErr = l.run(runCtx, ready)
	}()
	return <-ready
}

// Stop implements services.Service.
func (l *Listener) Stop(ctx context.Context) error {
	if l.cancel == nil {
		return nil
	}
	l.cancel()
	select {
	case <-l.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Listener) run(ctx context.Context, ready chan<- error) error {
	addr, err := net.ResolveUDPAddr("udp6", l.addr)
	if err != nil {
		if ready != nil {
			ready <- err
		}
		return err
	}
	conn, err := net.ListenUDP("udp6", addr)
	if err != nil {
		if ready != nil {
			ready <- err
		}
		return err
	}
	l.conn = conn
	defer conn.Close()

	l.running = true
	defer func() { l.running = false }()
	if ready != nil {
		ready <- nil
	}

	buf := make([]byte, 2048)
	for {
		conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, from, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			l.logger.Warn("firewall: listen socket read error", "error", err)
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		l.HandleDatagram(data, from.Addr())
	}
}

// HandleDatagram decodes and applies one firewall-install datagram. It is
// exported so tests can drive it without opening a real socket. Malformed
// payloads are dropped silently at or below debug level.
func (l *Listener) HandleDatagram(data []byte, from netip.Addr) {
	var req wire.FirewallInstall
	if err := req.UnmarshalBinary(data); err != nil {
		if l.logger != nil {
			l.logger.Debug("firewall: malformed install request", "from", from, "error", err)
		}
		return
	}

	action := l.filters.HandleInstall(from, req.DestShort, req.SrcIP)

	if l.audit != nil {
		switch action {
		case ActionRejectedSpoof:
			l.audit.LogFilterRejected(req.DestShort, "destination does not match the request's source address")
		case ActionAlreadyGlobal, ActionDuplicateSmall:
			l.audit.LogFilterRejected(req.DestShort, "duplicate: "+action.String())
		case ActionReplacedSmall:
			l.audit.LogFilterEvicted(req.DestShort)
		default:
			l.audit.LogFilterInstalled(req.DestShort, action.String())
		}
	}
	if action == ActionPromoted && l.datapath != nil {
		l.datapath.Resync()
	}
	if l.metrics != nil {
		g, s := l.filters.Counts()
		l.metrics.FiltersGlobalUsed.Set(float64(g))
		l.metrics.FiltersSmallUsed.Set(float64(s))
	}
}
