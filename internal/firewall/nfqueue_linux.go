// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux
// +build linux

package firewall

import (
	"context"
	"net/netip"
	"time"

	"github.com/florianl/go-nfqueue/v2"
	"github.com/florianl/go-nflog/v2"

	"ravelid.dev/ravelid/internal/config"
	"ravelid.dev/ravelid/internal/errors"
	"ravelid.dev/ravelid/internal/logging"
	"ravelid.dev/ravelid/internal/metrics"
	"ravelid.dev/ravelid/internal/services"
)

var _ services.Service = (*Datapath)(nil)

// Datapath is the kernel ingress hook for the packet filter: an nftables
// set (nft_linux.go) drops sources already on the global ring in-kernel, a
// queue rule hands every other forwarded IPv6 packet to this process over
// nfqueue, and an nflog reader counts and logs whatever packets arrive on
// the configured NFLOG group as global-filter drops. The rules NFTSync
// installs do not log to that group, so the reader only sees packets that
// other rules send there.
type Datapath struct {
	cfg     Config
	filters *FilterSet
	logger  *logging.Logger
	metrics *metrics.Collector

	sync *NFTSync
	nfq  *nfqueue.Nfqueue
	nfl  *nflog.Nflog

	cancel  context.CancelFunc
	running bool
	lastErr error
}

// Config carries the Linux-only datapath tunables.
type Config struct {
	TableName string
	QueueNum  uint16
	NFLOGroup uint16
}

// NewDatapath builds a Datapath bound to filters. The nftables/nfqueue/nflog
// resources themselves are opened by Start, not here, so construction never
// requires root.
func NewDatapath(cfg Config, filters *FilterSet, logger *logging.Logger, mc *metrics.Collector) *Datapath {
	return &Datapath{cfg: cfg, filters: filters, logger: logger, metrics: mc}
}

// Name implements services.Service.
func (d *Datapath) Name() string { return "firewall-datapath" }

// Status implements services.Service.
func (d *Datapath) Status() services.ServiceStatus {
	st := services.ServiceStatus{Name: d.Name(), Running: d.running}
	if d.lastErr != nil {
		st.Error = d.lastErr.Error()
	}
	return st
}

// Reload implements services.Service: the queue/group numbers are bound to
// a live nftables rule and netlink socket, so changing them requires a
// restart.
func (d *Datapath) Reload(cfg *config.Config) (restarted bool, err error) { return false, nil }

// Start opens the nftables ruleset, the nfqueue reader, and the nflog
// reader, and begins issuing accept/drop verdicts.
func (d *Datapath) Start(ctx context.Context) error {
	sync, err := NewNFTSync(d.cfg.TableName, d.cfg.QueueNum, d.filters, d.logger)
	if err != nil {
		d.lastErr = err
		return err
	}
	d.sync = sync
	if err := d.sync.Sync(); err != nil {
		d.logger.Warn("firewall: initial nftables set sync failed", "error", err)
	}

	nfqConfig := nfqueue.Config{
		NfQueue:      d.cfg.QueueNum,
		MaxPacketLen: 0xffff,
		MaxQueueLen:  1024,
		Copymode:     nfqueue.NfQnlCopyPacket,
		WriteTimeout: 50 * time.Millisecond,
	}
	nfq, err := nfqueue.Open(&nfqConfig)
	if err != nil {
		d.lastErr = errors.Wrap(err, errors.KindUnavailable, "firewall: open nfqueue")
		return d.lastErr
	}
	d.nfq = nfq

	nflConfig := nflog.Config{
		Group:       d.cfg.NFLOGroup,
		Copymode:    nflog.CopyPacket,
		ReadTimeout: 100 * time.Millisecond,
	}
	nfl, err := nflog.Open(&nflConfig)
	if err != nil {
		d.logger.Warn("firewall: nflog audit mirror disabled", "error", err)
	} else {
		d.nfl = nfl
		if err := d.nfl.RegisterWithErrorFunc(ctx, d.handleLogEntry, d.handleLogError); err != nil {
			d.logger.Warn("firewall: nflog register failed", "error", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	if err := d.nfq.RegisterWithErrorFunc(runCtx, d.handlePacket, d.handleQueueError); err != nil {
		d.lastErr = errors.Wrap(err, errors.KindInternal, "firewall: register nfqueue callback")
		return d.lastErr
	}

	d.running = true
	return nil
}

// Stop closes the nfqueue/nflog sockets; the nftables ruleset is left in
// place per NFTSync.Close's comment.
func (d *Datapath) Stop(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}
	d.running = false
	if d.nfq != nil {
		d.nfq.Close()
	}
	if d.nfl != nil {
		d.nfl.Close()
	}
	if d.sync != nil {
		return d.sync.Close()
	}
	return nil
}

// Resync pushes the current global-filter ring into the nftables set.
// Listener.HandleDatagram calls this once per install that promotes a
// filter from small to global (see NewListener's datapath argument).
func (d *Datapath) Resync() {
	if d.sync == nil {
		return
	}
	if err := d.sync.Sync(); err != nil {
		d.logger.Warn("firewall: nftables set resync failed", "error", err)
	}
}

func (d *Datapath) handlePacket(a nfqueue.Attribute) int {
	if a.PacketID == nil || a.Payload == nil {
		return 0
	}
	src, dst, ok := parseIPv6SrcDst(*a.Payload)
	if !ok {
		d.nfq.SetVerdict(*a.PacketID, nfqueue.NfAccept)
		return 0
	}

	if d.filters.Valid(src, dst) {
		d.nfq.SetVerdict(*a.PacketID, nfqueue.NfAccept)
		return 0
	}

	d.nfq.SetVerdict(*a.PacketID, nfqueue.NfDrop)
	if d.metrics != nil {
		d.metrics.RecordDrop("small")
	}
	return 0
}

func (d *Datapath) handleQueueError(err error) int {
	d.logger.Debug("firewall: nfqueue error", "error", err)
	return 0
}

func (d *Datapath) handleLogEntry(a nflog.Attribute) int {
	if d.metrics != nil {
		d.metrics.RecordDrop("global")
	}
	if d.logger != nil && a.Payload != nil {
		if src, dst, ok := parseIPv6SrcDst(*a.Payload); ok {
			d.logger.Warn("firewall: kernel dropped globally-filtered packet", "src", src, "dst", dst)
		}
	}
	return 0
}

func (d *Datapath) handleLogError(err error) int {
	d.logger.Debug("firewall: nflog error", "error", err)
	return 0
}

// parseIPv6SrcDst reads the source and destination addresses out of a raw
// IPv6 packet's first 40 bytes.
func parseIPv6SrcDst(packet []byte) (src, dst netip.Addr, ok bool) {
	if len(packet) < 40 || packet[0]>>4 != 6 {
		return netip.Addr{}, netip.Addr{}, false
	}
	var s, d [16]byte
	copy(s[:], packet[8:24])
	copy(d[:], packet[24:40])
	return netip.AddrFrom16(s), netip.AddrFrom16(d), true
}
