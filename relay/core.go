package relay

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/xsite-relay/xsite/address"
	"github.com/xsite-relay/xsite/cmn/cos"
	"github.com/xsite-relay/xsite/cmn/nlog"
	"github.com/xsite-relay/xsite/relayer"
	"github.com/xsite-relay/xsite/suppress"
	"github.com/xsite-relay/xsite/topology"
	"github.com/xsite-relay/xsite/wire"
	"github.com/xsite-relay/xsite/xport"
)

// errNoRoute reports that dest's site had no usable route at the time of
// a send (spec.md §7.2 "no route to remote site").
type errNoRoute string

func (e errNoRoute) Error() string { return "relay: no route to site " + string(e) }

// Core is the relay core (spec.md §4.6 C6): the sole entry point the
// local transport calls on the down (outbound) and up (inbound) paths.
type Core struct {
	cfg       Config
	localAddr address.LocalAddress
	transport xport.Transport
	scheduler xport.Scheduler
	dial      relayer.DialFunc
	sites     []relayer.SiteConfig
	picker    SiteMasterPicker
	listener  RouteStatusListener

	topology *topology.Topology
	suppress *suppress.Log
	Stats    *Stats

	mu                          sync.RWMutex
	members                     []address.Member
	siteMasters                 []address.LocalAddress
	isSiteMaster                bool
	relayer                     *relayer.Relayer
	broadcastRouteNotifications bool

	siteCacheMu sync.Mutex
	siteCache   map[string]bool
}

// New constructs a relay core. dial and sites may be nil/empty for a node
// that never becomes a site master (it will simply never start a
// relayer). picker and listener default to RandomPicker and NopListener
// when nil.
func New(
	cfg Config,
	localAddr address.LocalAddress,
	transport xport.Transport,
	scheduler xport.Scheduler,
	dial relayer.DialFunc,
	sites []relayer.SiteConfig,
	picker SiteMasterPicker,
	listener RouteStatusListener,
) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if picker == nil {
		picker = RandomPicker{}
	}
	if listener == nil {
		listener = NopListener{}
	}
	return &Core{
		cfg:       cfg,
		localAddr: localAddr,
		transport: transport,
		scheduler: scheduler,
		dial:      dial,
		sites:     sites,
		picker:    picker,
		listener:  listener,
		topology:  topology.New(),
		suppress:  suppress.New(),
		Stats:     &Stats{},
		siteCache: make(map[string]bool),
	}, nil
}

func (c *Core) IsSiteMaster() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isSiteMaster
}

func (c *Core) SiteMasters() []address.LocalAddress {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]address.LocalAddress, len(c.siteMasters))
	copy(out, c.siteMasters)
	return out
}

func (c *Core) currentRelayer() *relayer.Relayer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.relayer
}

// CurrentRelayer exposes the active relayer for the admin surface's
// routing-table dump. Returns nil when this node is not a site master.
func (c *Core) CurrentRelayer() *relayer.Relayer { return c.currentRelayer() }

// Topology exposes the per-site membership cache for the admin surface.
func (c *Core) Topology() *topology.Topology { return c.topology }

// Suppress exposes the log-suppression window for the admin surface's
// reset operation.
func (c *Core) Suppress() *suppress.Log { return c.suppress }

// HandleView processes a new cluster view (spec.md §4.6 "View
// transition"). It returns promptly: relayer startup, when triggered,
// runs asynchronously per AsyncRelayCreation.
func (c *Core) HandleView(view address.View) {
	newMasters := DetermineSiteMasters(view, c.cfg.MaxSiteMasters, c.cfg.SiteMastersRatio)
	isMaster := containsLocal(newMasters, c.localAddr)

	c.mu.Lock()
	wasMaster := c.isSiteMaster
	oldRelayer := c.relayer
	c.members = view.Members
	c.siteMasters = newMasters
	c.isSiteMaster = isMaster
	c.broadcastRouteNotifications = len(newMasters) > 0 && newMasters[0].Equal(c.localAddr)
	become := isMaster && !wasMaster
	cease := wasMaster && !isMaster
	c.mu.Unlock()

	switch {
	case become:
		c.startRelayer()
	case cease:
		if oldRelayer != nil {
			oldRelayer.Stop()
		}
		c.mu.Lock()
		c.relayer = nil
		c.mu.Unlock()
	}

	c.topology.Adjust(c.cfg.Site, view)
	c.suppress.RemoveExpired(c.cfg.SuppressTimeNoRouteErrors)
}

func containsLocal(list []address.LocalAddress, local address.LocalAddress) bool {
	for _, a := range list {
		if a.Equal(local) {
			return true
		}
	}
	return false
}

func (c *Core) startRelayer() {
	r := relayer.New()
	c.mu.Lock()
	c.relayer = r
	c.mu.Unlock()

	start := func() {
		if err := r.Start(context.Background(), c.sites, c.dial); err != nil {
			nlog.Errorf("relay: relayer start failed: %v", err)
		}
	}
	if c.cfg.AsyncRelayCreation && c.scheduler != nil {
		c.scheduler.Submit(start)
	} else {
		start()
	}
}

// Down handles an application-originated message before it would
// otherwise be sent as-is. handled reports whether the core consumed msg;
// when false, the caller proceeds with its normal local send of msg
// unchanged (spec.md §4.6: "If msg.dest is not a SiteAddress, pass
// through unchanged").
func (c *Core) Down(msg *wire.Message) (handled bool, err error) {
	target, ok := address.AsSiteAddress(msg.Dest)
	if !ok {
		return false, nil
	}

	sender := c.normalizeSender(msg.Src)

	c.mu.RLock()
	isMaster := c.isSiteMaster
	maxMasters := c.cfg.MaxSiteMasters
	rl := c.relayer
	c.mu.RUnlock()

	if target.Site() == c.cfg.Site {
		if c.isLocalTarget(target, isMaster) {
			c.deliverUp(target, sender, msg)
		} else {
			c.deliverLocally(target, sender, msg)
		}
		return true, nil
	}

	if !isMaster {
		c.forwardToMaster(sender, msg, maxMasters == 1)
		return true, nil
	}
	return true, c.route(target, sender, msg, rl)
}

// normalizeSender builds the SiteAddress identity a relayed message is
// attributed to (spec.md §4.6 "Normalize sender").
func (c *Core) normalizeSender(src address.Addr) address.SiteAddress {
	if sm, ok := src.(address.SiteMaster); ok {
		return sm
	}
	local, flags := c.localAddr, address.Flags(0)
	switch s := src.(type) {
	case address.ExtendedAddress:
		local, flags = s.LocalAddress, s.Flags
	case address.LocalAddress:
		local = s
	}
	return address.NewSiteUUIDWithFlags(c.cfg.Site, local, flags)
}

func (c *Core) isLocalTarget(target address.SiteAddress, isMaster bool) bool {
	switch t := target.(type) {
	case address.SiteUUID:
		return t.Local.Equal(c.localAddr)
	case address.SiteMaster:
		return isMaster
	default:
		return false
	}
}

func (c *Core) localSiteMasterCandidates() []address.LocalAddress {
	return c.SiteMasters()
}

// deliverUp hands a message straight to the application above the relay
// core, stripped of relay metadata.
func (c *Core) deliverUp(dest, sender address.SiteAddress, msg *wire.Message) {
	clean := msg.Clone()
	clean.Dest = dest
	clean.Src = sender
	clean.Relay = nil
	c.transport.DeliverUp(clean)
	c.Stats.Delivered.Add(0)
}

// deliverLocally resolves dest to a concrete local member and sends it
// down the local cluster stack (spec.md §4.6 "Local delivery").
func (c *Core) deliverLocally(dest, sender address.SiteAddress, msg *wire.Message) {
	var localDest address.Addr
	switch d := dest.(type) {
	case address.SiteMaster:
		picked := c.picker.PickMaster(c.cfg.Site, c.localSiteMasterCandidates())
		if picked.IsZero() {
			nlog.Errorf("relay: deliverLocally: site master was null for %v", dest)
			return
		}
		localDest = picked
	case address.SiteUUID:
		localDest = d.Local
	default:
		nlog.Errorf("relay: deliverLocally: unexpected destination type %T", dest)
		return
	}

	hdr := wire.NewHeader(wire.TypeData)
	hdr.SetFinalDest(dest)
	hdr.SetOriginalSender(sender)

	wrapped := msg.Clone()
	wrapped.Dest = localDest
	wrapped.Src = c.localAddr
	wrapped.Relay = hdr

	if err := c.sendLocal(localDest, wrapped); err != nil {
		nlog.Errorf("relay: deliverLocally: %v", err)
		return
	}
	c.Stats.ForwardToLocalMbr.Add(0)
}

// forwardToMaster hands a remote-bound message to a locally chosen site
// master (spec.md §4.6 "forward to a chosen local site master").
// forwardToCurrentCoord restricts the pick to the coordinator, used when
// max_site_masters == 1 as there is exactly one meaningful choice.
func (c *Core) forwardToMaster(sender address.SiteAddress, msg *wire.Message, forwardToCurrentCoord bool) {
	candidates := c.localSiteMasterCandidates()
	var picked address.LocalAddress
	if forwardToCurrentCoord && len(candidates) > 0 {
		picked = candidates[0]
	} else {
		picked = c.picker.PickMaster(c.cfg.Site, candidates)
	}
	if picked.IsZero() {
		nlog.Errorf("relay: forwardToMaster: no local site master available")
		return
	}

	hdr := wire.NewHeader(wire.TypeData)
	if dest, ok := address.AsSiteAddress(msg.Dest); ok {
		hdr.SetFinalDest(dest)
	}
	hdr.SetOriginalSender(sender)

	wrapped := msg.Clone()
	wrapped.Dest = picked
	wrapped.Src = c.localAddr
	wrapped.Relay = hdr

	if err := c.sendLocal(picked, wrapped); err != nil {
		nlog.Errorf("relay: forwardToMaster: %v", err)
		return
	}
	c.Stats.ForwardToMaster.Add(0)
}

func (c *Core) sendLocal(dest address.Addr, msg *wire.Message) error {
	var buf bytes.Buffer
	if err := c.transport.SerializeInto(&buf, msg); err != nil {
		return err
	}
	return c.transport.DoSend(dest, buf.Bytes())
}

// route is the site-master routing decision (spec.md §4.6 "Routing
// (site master)").
func (c *Core) route(dest, sender address.SiteAddress, msg *wire.Message, rl *relayer.Relayer) error {
	if dest.Site() == c.cfg.Site {
		c.mu.RLock()
		isMaster := c.isSiteMaster
		c.mu.RUnlock()
		if c.isLocalTarget(dest, isMaster) {
			c.deliverUp(dest, sender, msg)
		} else {
			c.deliverLocally(dest, sender, msg)
		}
		return nil
	}

	if rl == nil {
		return c.unreachable(dest, sender, rl)
	}

	rt, ok := rl.GetRoute(dest.Site())
	if !ok || !rt.IsUp() {
		rt, ok = rl.GetForwardingRouteMatching(dest.Site())
	}
	if !ok || rt == nil {
		return c.unreachable(dest, sender, rl)
	}

	if err := rt.Send(dest, sender, msg); err != nil {
		nlog.Errorf("relay: route: send to site %q failed: %v", dest.Site(), err)
		return c.unreachable(dest, sender, rl)
	}
	c.Stats.Relayed.Add(0)
	return nil
}

// unreachable implements spec.md §4.6/§7.2: log once per window, signal
// the original sender directly if it is local, otherwise relay a
// SITE_UNREACHABLE notice back toward it, best-effort.
func (c *Core) unreachable(dest, sender address.SiteAddress, rl *relayer.Relayer) error {
	key := "no-route:" + dest.Site()
	c.suppress.Log(key, c.cfg.SuppressTimeNoRouteErrors, func() {
		nlog.Warningf("relay: no route to site %q", dest.Site())
	})
	c.Stats.Unreachable.Add(0)

	if su, ok := sender.(address.SiteUUID); ok && su.SiteName == c.cfg.Site && su.Local.Equal(c.localAddr) {
		c.listener.SitesUnreachable(dest.Site())
		return errNoRoute(dest.Site())
	}

	hdr := wire.NewHeader(wire.TypeSiteUnreachable)
	hdr.SetFinalDest(dest)
	hdr.SetOriginalSender(sender)
	notice := &wire.Message{Relay: hdr}

	if rl == nil {
		nlog.Errorf("relay: cannot signal SITE_UNREACHABLE for %q back to %v: no relayer", dest.Site(), sender)
		return errNoRoute(dest.Site())
	}
	rt, ok := rl.GetRoute(sender.Site())
	if !ok {
		rt, ok = rl.GetForwardingRouteMatching(sender.Site())
	}
	if !ok || rt == nil {
		nlog.Errorf("relay: cannot signal SITE_UNREACHABLE for %q back to site %q: unreachable", dest.Site(), sender.Site())
		return errNoRoute(dest.Site())
	}
	if err := rt.Send(sender, address.NewSiteMaster(c.cfg.Site), notice); err != nil {
		nlog.Errorf("relay: failed to signal SITE_UNREACHABLE back to site %q: %v", sender.Site(), err)
	}
	return errNoRoute(dest.Site())
}

// Up handles a message arriving from the network (spec.md §4.6 "Up
// path").
func (c *Core) Up(msg *wire.Message) {
	c.mu.RLock()
	isMaster := c.isSiteMaster
	rl := c.relayer
	c.mu.RUnlock()

	// A multicast needing fan-out is either a freshly-originated local
	// multicast (no relay header yet) or one relayed in from another site
	// still carrying a nil final destination; a unicast relayed message
	// also has msg.Dest == nil (Route clears it) but names a concrete
	// final_dest, so it must not be mistaken for a multicast here.
	isMulticast := msg.Dest == nil &&
		(msg.Relay == nil || (msg.Relay.Type == wire.TypeData && msg.Relay.FinalDest() == nil))
	if isMulticast && isMaster && !msg.NoRelay() {
		c.sendToBridges(msg, rl)
	}

	if msg.Relay == nil {
		if th, ok := tryTopoHeader(msg); ok {
			c.handleTopoHeader(th)
			return
		}
		// No relay header: this message was never touched by relaying,
		// pass it through exactly as received.
		c.transport.DeliverUp(msg)
		c.Stats.Delivered.Add(0)
		return
	}

	hdr := msg.Relay
	if hdr.Type.IsAdmin() {
		c.handleAdmin(hdr)
		return
	}

	switch hdr.Type {
	case wire.TypeData:
		if fd := hdr.FinalDest(); fd != nil {
			if err := c.route(fd, hdr.OriginalSender(), msg, rl); err != nil {
				nlog.Warningf("relay: up: %v", err)
			}
			return
		}
		// Multicast: strip relay metadata and deliver up-stack, identity
		// taken from the header (spec.md §4.6 "deliver(dest, sender, msg)").
		c.deliver(nil, hdr.OriginalSender(), msg)
	case wire.TypeSiteUnreachable:
		site := ""
		if fd := hdr.FinalDest(); fd != nil {
			site = fd.Site()
		}
		c.listener.SitesUnreachable(site)
	default:
		nlog.Errorf("relay: up: unknown relay header type %v, dropping", hdr.Type)
	}
}

// deliver strips msg to a clean copy addressed with (dest, sender) and
// passes it up-stack (spec.md §4.6 "deliver(dest, sender, msg)").
func (c *Core) deliver(dest address.Addr, sender address.SiteAddress, msg *wire.Message) {
	clean := msg.Clone()
	clean.Dest = dest
	if sender != nil {
		clean.Src = sender
	}
	clean.Relay = nil
	c.transport.DeliverUp(clean)
	c.Stats.Delivered.Add(0)
}

// UpBatch applies Up to every message in msgs, coalescing
// SITE_UNREACHABLE notifications so each affected site is reported to the
// listener at most once per batch (spec.md §4.6 "Batch form").
func (c *Core) UpBatch(msgs []*wire.Message) {
	coalesced := make(map[string]struct{})
	var order []string

	for _, msg := range msgs {
		if msg.Relay != nil && msg.Relay.Type == wire.TypeSiteUnreachable {
			site := ""
			if fd := msg.Relay.FinalDest(); fd != nil {
				site = fd.Site()
			}
			if _, seen := coalesced[site]; !seen {
				coalesced[site] = struct{}{}
				order = append(order, site)
			}
			continue
		}
		c.Up(msg)
	}

	for _, site := range order {
		c.listener.SitesUnreachable(site)
	}
}

// sendToBridges fans a local multicast out to every not-yet-visited site,
// preventing relay cycles (spec.md §4.6 "Multicast relaying with cycle
// prevention").
func (c *Core) sendToBridges(msg *wire.Message, rl *relayer.Relayer) {
	if rl == nil {
		return
	}

	visited := map[string]struct{}{c.cfg.Site: {}}
	if msg.Relay != nil {
		for s := range msg.Relay.VisitedSet() {
			visited[s] = struct{}{}
		}
	}

	var toVisit []string
	for _, site := range rl.GetSiteNames() {
		if _, seen := visited[site]; !seen {
			toVisit = append(toVisit, site)
		}
	}

	// The sites this node sends to directly are marked visited as well, so
	// a receiving site does not forward the message on to one of them.
	visitedList := make([]string, 0, len(visited)+len(toVisit))
	for s := range visited {
		visitedList = append(visitedList, s)
	}
	visitedList = append(visitedList, toVisit...)
	sort.Strings(visitedList)

	var originalSender address.SiteAddress
	if msg.Relay != nil && msg.Relay.OriginalSender() != nil {
		originalSender = msg.Relay.OriginalSender()
	} else if sa, ok := address.AsSiteAddress(msg.Src); ok {
		originalSender = sa
	} else {
		originalSender = address.NewSiteUUID(c.cfg.Site, c.localAddr)
	}

	var fanOutErrs cos.Errs
	for _, site := range toVisit {
		routes := rl.RoutesFor(site)
		var sent bool
		for _, rt := range routes {
			if err := rt.SendVisited(nil, originalSender, msg, visitedList); err != nil {
				fanOutErrs.Add(errors.Wrapf(err, "site %q", site))
				continue
			}
			sent = true
			break
		}
		if !sent && len(routes) > 0 {
			fanOutErrs.Add(errors.Errorf("all routes to site %q failed", site))
		}
	}
	if n, joined := fanOutErrs.JoinErr(); n > 0 {
		nlog.Warningf("relay: sendToBridges: %d site(s) unreached during multicast fan-out: %v", n, joined)
	}
}

func tryTopoHeader(msg *wire.Message) (*wire.TopoHeader, bool) {
	raw, ok := msg.Headers[topoHeaderKey]
	if !ok {
		return nil, false
	}
	th, err := wire.DecodeTopo([]byte(raw))
	if err != nil {
		nlog.Errorf("relay: malformed topo header: %v", err)
		return nil, false
	}
	return th, true
}

const topoHeaderKey = "xsite-topo"

func (c *Core) handleTopoHeader(th *wire.TopoHeader) {
	if th.Request {
		nlog.Infof("relay: topo request from site %q", th.Site)
		return
	}
	rows := make([]topology.MemberRow, len(th.Members))
	for i, m := range th.Members {
		rows[i] = topology.MemberRow{Site: th.Site, Addr: address.NewLocalAddress(m.Addr), Extra: m.Extra}
	}
	c.topology.HandleResponse(th.Site, rows)
}

// handleAdmin processes SITES_UP/SITES_DOWN/TOPO_REQ/TOPO_RSP relay
// headers (spec.md §4.6 "Admin messages").
func (c *Core) handleAdmin(hdr *wire.Header) {
	switch hdr.Type {
	case wire.TypeSitesUp:
		sites := removeSelf(hdr.Sites, c.cfg.Site)
		c.siteCacheMu.Lock()
		var fresh []string
		for _, s := range sites {
			if !c.siteCache[s] {
				c.siteCache[s] = true
				fresh = append(fresh, s)
			}
		}
		c.siteCacheMu.Unlock()
		if len(fresh) > 0 {
			c.listener.SitesUp(fresh)
		}
	case wire.TypeSitesDown:
		sites := removeSelf(hdr.Sites, c.cfg.Site)
		c.listener.SitesDown(sites)
		c.siteCacheMu.Lock()
		for _, s := range sites {
			delete(c.siteCache, s)
		}
		c.siteCacheMu.Unlock()
		c.topology.RemoveAll(sites)
	case wire.TypeTopoReq:
		nlog.Infof("relay: topo request for sites %v", hdr.Sites)
	case wire.TypeTopoRsp:
		nlog.Infof("relay: topo response for sites %v", hdr.Sites)
	default:
		nlog.Errorf("relay: handleAdmin: unexpected type %v", hdr.Type)
	}
}

func removeSelf(sites []string, self string) []string {
	out := make([]string, 0, len(sites))
	for _, s := range sites {
		if s != self {
			out = append(out, s)
		}
	}
	return out
}
