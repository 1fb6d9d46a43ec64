// Package relayer owns the set of routes to every configured remote site
// (spec.md §4.3 Relayer): dialing bridges, tracking per-site route state,
// and answering "what route gets me to site S" and "what route gets me
// closer to site S when I have no direct route" queries.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package relayer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/xsite-relay/xsite/address"
	"github.com/xsite-relay/xsite/cmn/cos"
	"github.com/xsite-relay/xsite/cmn/debug"
	"github.com/xsite-relay/xsite/cmn/nlog"
	"github.com/xsite-relay/xsite/route"
	"github.com/xsite-relay/xsite/xport"
)

// routeLogBuckets bounds the tag printed alongside a site name in route
// logs and dumps, so large meshes still get a short, grep-friendly id
// instead of the full site name repeated everywhere.
const routeLogBuckets = 9973

// DialFunc dials a bridge to remoteSite's cluster, named clusterName.
type DialFunc func(remoteSite, clusterName string) (xport.Bridge, error)

// SiteConfig names one bridge this relayer should dial. Two entries
// sharing the same Site register a primary and a failover alternative
// route to that site (spec.md §3 "routes: mapping site-name → ordered
// sequence of Routes; primary first").
type SiteConfig struct {
	Site        string
	ClusterName string
	// Gateway marks this site as eligible to be used as a forwarding hop
	// toward sites this node has no direct route to.
	Gateway bool
}

// Relayer maintains ordered route lists to every configured remote site.
type Relayer struct {
	mu       sync.RWMutex
	routes   map[string][]*route.Route // site -> routes, primary first
	gateways map[string]bool
}

func New() *Relayer {
	return &Relayer{
		routes:   make(map[string][]*route.Route),
		gateways: make(map[string]bool),
	}
}

// Start dials every configured bridge concurrently, in the order given by
// sites (so ties for the same site keep their primary/alternate order). A
// single bridge's dial failure is logged and does not fail Start for the
// others (spec.md §7.3: bridge startup failures are partial, not fatal).
func (r *Relayer) Start(ctx context.Context, sites []SiteConfig, dial DialFunc) error {
	type dialed struct {
		idx int
		sc  SiteConfig
		rt  *route.Route
	}
	results := make([]*dialed, len(sites))

	g, _ := errgroup.WithContext(ctx)
	for i, sc := range sites {
		i, sc := i, sc
		g.Go(func() error {
			bridge, err := dial(sc.Site, sc.ClusterName)
			if err != nil {
				nlog.Errorf("relayer: failed to dial site %q: %v", sc.Site, err)
				return nil
			}
			results[i] = &dialed{idx: i, sc: sc, rt: route.New(sc.Site, bridge)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	r.mu.Lock()
	for _, d := range results {
		if d == nil {
			continue
		}
		r.routes[d.sc.Site] = append(r.routes[d.sc.Site], d.rt)
		if d.sc.Gateway {
			r.gateways[d.sc.Site] = true
		}
		nlog.Infof("relayer: route to site %q established (tag=%d, session=%s)", d.sc.Site, cos.HashSite(d.sc.Site, routeLogBuckets), d.rt.SessionID)
	}
	r.mu.Unlock()
	return nil
}

// Stop closes every route's bridge and clears the routing table.
func (r *Relayer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for site, list := range r.routes {
		for _, rt := range list {
			if err := rt.Bridge.Close(); err != nil {
				nlog.Warningf("relayer: error closing bridge to site %q: %v", site, err)
			}
		}
	}
	r.routes = make(map[string][]*route.Route)
}

// GetRoute returns the first UP route to site, or the list's primary
// entry if none are currently up (so callers can still observe the down
// route rather than seeing "no route" when one merely needs a retry).
func (r *Relayer) GetRoute(site string) (*route.Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list, ok := r.routes[site]
	if !ok || len(list) == 0 {
		return nil, false
	}
	debug.Assert(list[0] != nil, "relayer: nil primary route entry")
	for _, rt := range list {
		if rt.IsUp() {
			return rt, true
		}
	}
	return list[0], true
}

// GetForwardingRouteMatching returns a route this node can use to forward
// traffic toward site when no direct route to site exists: the first UP
// route to a configured gateway site (spec.md §4.6, §9 Open Question
// "forwarding route semantics are implementation-defined" - resolved here
// as "any UP route to a configured gateway," trusting that gateway's own
// relayer to know how to reach the rest of the mesh).
func (r *Relayer) GetForwardingRouteMatching(site string) (*route.Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.routes[site]; ok {
		return nil, false // a direct route exists, no need to forward
	}

	var candidates []string
	for gw := range r.gateways {
		if gw == site {
			continue
		}
		candidates = append(candidates, gw)
	}
	sort.Strings(candidates) // deterministic pick among equally-valid gateways

	for _, gw := range candidates {
		for _, rt := range r.routes[gw] {
			if rt.IsUp() {
				return rt, true
			}
		}
	}
	return nil, false
}

// GetSiteNames returns every site this relayer currently has a route
// entry for (up or down), in ascending order.
func (r *Relayer) GetSiteNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.routes))
	for site := range r.routes {
		names = append(names, site)
	}
	sort.Strings(names)
	return names
}

// RoutesFor returns site's ordered route list, primary first, for callers
// doing their own failover walk (spec.md §4.6 multicast fan-out: "try
// routes in order; break after the first success").
func (r *Relayer) RoutesFor(site string) []*route.Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.routes[site]
	out := make([]*route.Route, len(list))
	copy(out, list)
	return out
}

// MarkDown flips every route to site down, e.g. on a bridge disconnect
// notification.
func (r *Relayer) MarkDown(site string) {
	r.mu.RLock()
	list := r.routes[site]
	r.mu.RUnlock()
	for _, rt := range list {
		rt.SetStatus(route.StatusDown)
	}
}

// MarkUp flips site's primary route back up.
func (r *Relayer) MarkUp(site string) {
	r.mu.RLock()
	list := r.routes[site]
	r.mu.RUnlock()
	if len(list) > 0 {
		list[0].SetStatus(route.StatusUp)
	}
}

// PrintRoutes renders a human-readable route table for the admin surface.
func (r *Relayer) PrintRoutes() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Enumerate sites from r.routes directly rather than calling the
	// public GetSiteNames(), which takes its own RLock: nesting RLocks on
	// the same goroutine deadlocks once a Lock() (e.g. Stop()) is queued
	// in between, since sync.RWMutex blocks new readers behind a pending
	// writer.
	names := make([]string, 0, len(r.routes))
	for site := range r.routes {
		names = append(names, site)
	}
	sort.Strings(names)

	s := ""
	for _, site := range names {
		for i, rt := range r.routes[site] {
			state := "DOWN"
			if rt.IsUp() {
				state = "UP"
			}
			role := "alt"
			if i == 0 {
				role = "primary"
			}
			s += fmt.Sprintf("%s[%s] (tag=%d, session=%s): %s\n", site, role, cos.HashSite(site, routeLogBuckets), rt.SessionID, state)
		}
	}
	return s
}

// BridgeView returns the membership view of site's primary bridge.
func (r *Relayer) BridgeView(site string) (address.View, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list, ok := r.routes[site]
	if !ok || len(list) == 0 {
		return address.View{}, false
	}
	return list[0].Bridge.View(), true
}
