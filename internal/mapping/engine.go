// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package mapping is the mapping engine: the round/host timer state
// machine that polls every known descendant once per round, ingests its
// reply, and hands the resulting graph to the detector at the round
// boundary. One goroutine owns all engine state between blocking selects
// on a timer or an inbound datagram channel, so no locking is needed
// around graph or round-state mutation.
package mapping

import (
	"context"
	"net"
	"net/netip"
	"time"

	"ravelid.dev/ravelid/internal/audit"
	"ravelid.dev/ravelid/internal/compress"
	"ravelid.dev/ravelid/internal/config"
	"ravelid.dev/ravelid/internal/detector"
	"ravelid.dev/ravelid/internal/graph"
	"ravelid.dev/ravelid/internal/logging"
	"ravelid.dev/ravelid/internal/metrics"
	"ravelid.dev/ravelid/internal/rpl"
	"ravelid.dev/ravelid/internal/services"
	"ravelid.dev/ravelid/internal/wire"
)

var _ services.Service = (*Engine)(nil)

// Config carries the tunables the engine needs at construction time, plus
// the two socket addresses it owns.
type Config struct {
	RoundInterval          time.Duration
	RecentWindow           int
	InconsistencyThreshold int
	// NodeCapacity paces the per-host interval, RoundInterval/NodeCapacity,
	// so a full pass always fits inside one round.
	NodeCapacity int

	// MapperClientPort is the remote port a mapping request is sent to on
	// each node.
	MapperClientPort int
	// MapperServerAddr is the local address the engine binds to receive
	// mapping replies.
	MapperServerAddr string
}

// dagRef is one flattened (instance, dag) pair from the RPL instance table,
// the unit the round cursor advances over.
type dagRef struct {
	instanceID    uint8
	minHopRankInc uint16
	dagIDShort    uint16
	version       uint8
}

// Engine owns round state, the network graph, and the UDP sockets used to
// poll nodes and receive their replies.
type Engine struct {
	cfg       Config
	graph     *graph.Graph
	routes    rpl.RoutingTable
	instances rpl.InstanceTable
	local     rpl.LocalAddrs
	logger    *logging.Logger
	audit     *audit.Logger
	metrics   *metrics.Collector

	sendConn  *net.UDPConn
	replyConn *net.UDPConn

	timestamp   uint8
	dagCursor   int
	workingHost int
	firstRound  bool

	running bool
	lastErr error
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

// New builds an Engine bound to g, routes, and instances. Sockets are
// opened by Start, not New, so an Engine can be constructed and unit-tested
// (via HandleReply/BeginRound/MapOne) without binding any ports. local,
// when non-nil, supplies the root's own global address so replies naming
// the root as their parent resolve correctly; the root never appears in
// routes, since that table only lists reachable descendants.
func New(cfg Config, g *graph.Graph, routes rpl.RoutingTable, instances rpl.InstanceTable, local rpl.LocalAddrs, logger *logging.Logger, al *audit.Logger, mc *metrics.Collector) *Engine {
	e := &Engine{
		cfg:        cfg,
		graph:      g,
		routes:     routes,
		instances:  instances,
		local:      local,
		logger:     logger,
		audit:      al,
		metrics:    mc,
		firstRound: true,
	}
	if local != nil {
		if rootAddr, ok := local.Global(); ok {
			root := g.Root()
			root.ShortID = compress.Compress(rootAddr)
			root.Addr = rpl.RouteEntry{IPAddr: rootAddr, InUse: true}
		}
	}
	return e
}

// resolveNode resolves a short id claimed in a mapping reply to a graph
// node, recognizing the root's own short id specially since the root is
// never listed as an entry of its own routing table.
func (e *Engine) resolveNode(shortID uint16) (*graph.Node, int, bool) {
	if root := e.graph.Root(); root.ShortID == shortID {
		return root, 0, true
	}
	return e.graph.Upsert(shortID, e.routes)
}

// Name implements services.Service.
func (e *Engine) Name() string { return "mapping" }

// Status implements services.Service.
func (e *Engine) Status() services.ServiceStatus {
	st := services.ServiceStatus{Name: e.Name(), Running: e.running}
	if e.lastErr != nil {
		st.Error = e.lastErr.Error()
	}
	return st
}

// Start implements services.Service: it launches Run in a background
// goroutine and returns once the engine's sockets are open.
func (e *Engine) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.doneCh = make(chan struct{})

	ready := make(chan error, 1)
	go func() {
		defer close(e.doneCh)
		err := e.runWithReadySignal(runCtx, ready)
		e.lastErr = err
	}()
	return <-ready
}

// Stop implements services.Service: it cancels the run context and waits
// for the engine goroutine to exit or ctx to expire.
func (e *Engine) Stop(ctx context.Context) error {
	if e.cancel == nil {
		return nil
	}
	e.cancel()
	select {
	case <-e.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reload implements services.Service: the round-timing and detector
// thresholds can change live since they are read fresh every round; a
// changed node/neighbor capacity would require re-sizing the graph arena,
// which Reload does not attempt — callers must restart the process for
// that change to take effect.
func (e *Engine) Reload(cfg *config.Config) (restarted bool, err error) {
	if cfg.Thresholds != nil {
		if d, perr := time.ParseDuration(cfg.Thresholds.RoundInterval); perr == nil {
			e.cfg.RoundInterval = d
		}
		e.cfg.RecentWindow = cfg.Thresholds.RecentWindow
		e.cfg.InconsistencyThreshold = cfg.Thresholds.InconsistencyThreshold
	}
	if cfg.Node != nil {
		e.cfg.NodeCapacity = cfg.Node.Capacity
	}
	return false, nil
}

func (e *Engine) flattenDAGs() []dagRef {
	var out []dagRef
	for _, inst := range e.instances.Instances() {
		if !inst.Used {
			continue
		}
		for _, d := range inst.DAGs {
			if !d.Used {
				continue
			}
			out = append(out, dagRef{
				instanceID:    inst.InstanceID,
				minHopRankInc: inst.MinHopRankInc,
				dagIDShort:    compress.Compress(d.DAGID),
				version:       d.Version,
			})
		}
	}
	return out
}

// currentDAG returns the (instance, dag) pair the round cursor currently
// points to, or the zero pair if the instance table is empty.
func (e *Engine) currentDAG() dagRef {
	dags := e.flattenDAGs()
	if len(dags) == 0 {
		return dagRef{}
	}
	return dags[e.dagCursor%len(dags)]
}

// advanceDAG moves the round cursor to the next used (instance, dag) pair,
// wrapping back to the first when the end is reached.
func (e *Engine) advanceDAG() {
	dags := e.flattenDAGs()
	if len(dags) == 0 {
		e.dagCursor = 0
		return
	}
	e.dagCursor = (e.dagCursor + 1) % len(dags)
}

func (e *Engine) hostInterval() time.Duration {
	n := e.cfg.NodeCapacity
	if n < 1 {
		n = 1
	}
	return e.cfg.RoundInterval / time.Duration(n)
}

// BeginRound runs the detector over the previous round's graph (skipped on
// the very first round, when there is nothing to check yet), advances the
// timestamp and (instance, dag) cursor, resets the root's neighbor list,
// and rewinds the host cursor. Exported for tests that drive the state
// machine directly instead of through Run.
func (e *Engine) BeginRound() {
	if !e.firstRound {
		if e.logger != nil {
			e.logger.Debug(e.graph.Snapshot(e.timestamp))
		}
		v := detector.Run(e.graph, e.instances, detector.Config{
			CurrentTimestamp:       e.timestamp,
			CurrentInstanceID:      e.currentDAG().instanceID,
			RecentWindow:           e.cfg.RecentWindow,
			InconsistencyThreshold: e.cfg.InconsistencyThreshold,
		})
		e.reportVerdict(v)
	}
	e.firstRound = false

	e.timestamp++ // monotonic mod 256; uint8 wrap is expected
	e.advanceDAG()
	e.graph.ResetRootNeighbors(e.routes)
	root := e.graph.Root()
	root.Timestamp = e.timestamp
	root.Rank = e.currentDAG().minHopRankInc // the root's rank by definition
	e.workingHost = 0
}

func (e *Engine) reportVerdict(v detector.Verdict) {
	if e.audit != nil {
		e.audit.LogVerdict(v.Liars, v.MissingInfo)
		e.audit.LogRoundCompleted(e.countKnown(), len(v.Liars), len(v.MissingInfo))
	}
	if e.metrics != nil {
		e.metrics.ReportRound(metrics.RoundSummary{
			NodesKnown:         e.countKnown(),
			RankErrorNodes:     e.countStatus(graph.StatusRankError),
			RelativeErrorNodes: e.countStatus(graph.StatusRelativeError),
			MissingInfoNodes:   len(v.MissingInfo),
		})
	}
	if e.logger != nil && (len(v.Liars) > 0 || len(v.MissingInfo) > 0) {
		e.logger.Warn("detector verdict", "liars", v.Liars, "missing_info", v.MissingInfo)
	}
}

func (e *Engine) countKnown() int {
	n := 0
	e.graph.Walk(func(i int, _ *graph.Node) {
		if i != 0 {
			n++
		}
	})
	return n
}

func (e *Engine) countStatus(want graph.Status) int {
	n := 0
	e.graph.Walk(func(i int, node *graph.Node) {
		if i != 0 && node.Status.Has(want) {
			n++
		}
	})
	return n
}

// recentlyReported reports whether ip's node already replied within the
// recent window of the current timestamp, wrap-aware the same way the
// detector's staleness check is. A node that has never replied (timestamp
// zero) is never considered recent, so freshly discovered nodes are always
// probed.
func (e *Engine) recentlyReported(ip netip.Addr) bool {
	n, _, ok := e.graph.Find(compress.Compress(ip))
	if !ok || n.Timestamp == 0 {
		return false
	}
	diff := int(e.timestamp - n.Timestamp)
	return diff <= e.cfg.RecentWindow
}

// MapOne advances the working-host cursor through the routing table to the
// next entry in use and not recently reported, upserting each in-use entry
// into the graph along the way so nodes that never reply still occupy a
// zero-initialized slot for the detector's missing-info check. If a
// candidate exists, one mapping request is sent. Reports whether the
// cursor wrapped, completing the round's pass.
func (e *Engine) MapOne() (roundComplete bool) {
	entries := e.routes.Entries()
	if len(entries) == 0 {
		return true
	}
	for ; e.workingHost < len(entries); e.workingHost++ {
		entry := entries[e.workingHost]
		if !entry.InUse {
			continue
		}
		if _, _, ok := e.graph.Upsert(compress.Compress(entry.IPAddr), e.routes); !ok {
			continue
		}
		if !e.recentlyReported(entry.IPAddr) {
			break
		}
	}
	if e.workingHost < len(entries) {
		e.sendMappingRequest(entries[e.workingHost].IPAddr)
	}
	e.workingHost++
	if e.workingHost >= len(entries) {
		e.workingHost = 0
		return true
	}
	return false
}

func (e *Engine) sendMappingRequest(ip netip.Addr) {
	if e.sendConn == nil {
		return
	}
	cur := e.currentDAG()
	req := wire.MappingRequest{
		InstanceID: cur.instanceID,
		DAGIDShort: cur.dagIDShort,
		DAGVersion: cur.version,
		Timestamp:  e.timestamp,
	}
	data, _ := req.MarshalBinary()
	dst := netip.AddrPortFrom(ip, uint16(e.cfg.MapperClientPort))
	if _, err := e.sendConn.WriteToUDPAddrPort(data, dst); err != nil {
		e.logger.Debug("mapping: request send failed", "dest", ip, "error", err)
	}
}

// HandleReply validates and applies one mapping reply datagram. Every
// rejection path (malformed payload, round-epoch mismatch, source-spoof
// mismatch, unknown sender) drops silently, never logged above debug.
func (e *Engine) HandleReply(data []byte, fromIP netip.Addr) {
	var reply wire.MappingReply
	if err := reply.UnmarshalBinary(data, e.graph.Density()); err != nil {
		e.logger.Debug("mapping: malformed reply", "from", fromIP, "error", err)
		return
	}

	cur := e.currentDAG()
	if reply.InstanceID != cur.instanceID || reply.DAGIDShort != cur.dagIDShort ||
		reply.DAGVersion != cur.version || reply.Timestamp != e.timestamp {
		return // stale or cross-round reply
	}
	if compress.Compress(fromIP) != reply.SrcShort {
		return // claimed id does not match the sending address
	}

	node, _, ok := e.resolveNode(reply.SrcShort)
	if !ok {
		return // no matching routing-table entry, or graph at capacity
	}
	node.Timestamp = reply.Timestamp
	node.Rank = reply.Rank

	_, parentIdx, parentOK := e.resolveNode(reply.ParentShort)
	if parentOK {
		node.ParentIndex = parentIdx
	} else {
		node.ParentIndex = -1
	}

	node.Neighbors = node.Neighbors[:0]
	node.NeighborCount = 0
	node.ParentSlot = -1
	for _, nb := range reply.Neighbors {
		_, neighborIdx, nOK := e.resolveNode(nb.Short)
		if !nOK {
			continue
		}
		e.graph.AddNeighbor(node, neighborIdx, nb.Rank)
		if parentOK && nb.Short == reply.ParentShort {
			node.ParentSlot = len(node.Neighbors) - 1
		}
	}
}

// replyDatagram is one UDP read handed from the socket-reading goroutine to
// the single state-machine goroutine.
type replyDatagram struct {
	data []byte
	from netip.Addr
}

// recvLoop reads from replyConn until ctx is done, forwarding each
// datagram on ch. It is the only goroutine that touches the socket; Run's
// goroutine is the only one that touches Engine state.
func (e *Engine) recvLoop(ctx context.Context, ch chan<- replyDatagram) {
	buf := make([]byte, 2048)
	for {
		e.replyConn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, addr, err := e.replyConn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			e.logger.Warn("mapping: reply socket read error", "error", err)
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case ch <- replyDatagram{data: data, from: addr.Addr()}:
		case <-ctx.Done():
			return
		}
	}
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

// Run opens the engine's sockets and drives the round/host timer state
// machine until ctx is canceled. A single goroutine handles every timer
// tick and every inbound reply, so no lock guards graph or round-state
// mutation.
func (e *Engine) Run(ctx context.Context) error {
	return e.runWithReadySignal(ctx, nil)
}

// runWithReadySignal is Run's body, with an optional channel signaled (nil
// error, or the socket-open error) once both sockets are bound — used by
// Start so it can report a bind failure synchronously instead of only
// surfacing it through Status after the fact.
func (e *Engine) runWithReadySignal(ctx context.Context, ready chan<- error) error {
	sendConn, err := net.ListenUDP("udp6", nil)
	if err != nil {
		if ready != nil {
			ready <- err
		}
		return err
	}
	e.sendConn = sendConn
	defer sendConn.Close()

	replyAddr, err := net.ResolveUDPAddr("udp6", e.cfg.MapperServerAddr)
	if err != nil {
		if ready != nil {
			ready <- err
		}
		return err
	}
	replyConn, err := net.ListenUDP("udp6", replyAddr)
	if err != nil {
		if ready != nil {
			ready <- err
		}
		return err
	}
	e.replyConn = replyConn
	defer replyConn.Close()

	e.running = true
	defer func() { e.running = false }()

	if ready != nil {
		ready <- nil
	}

	replyCh := make(chan replyDatagram, 32)
	go e.recvLoop(ctx, replyCh)

	roundTimer := time.NewTimer(e.cfg.RoundInterval)
	defer roundTimer.Stop()
	var hostTimer *time.Timer
	defer func() {
		if hostTimer != nil {
			hostTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case dg := <-replyCh:
			e.HandleReply(dg.data, dg.from)
		case <-roundTimer.C:
			e.BeginRound()
			hostTimer = time.NewTimer(0)
		case <-timerC(hostTimer):
			if e.MapOne() {
				hostTimer = nil
				roundTimer.Reset(e.cfg.RoundInterval)
			} else {
				hostTimer.Reset(e.hostInterval())
			}
		}
	}
}
