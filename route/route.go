// Package route implements a single cross-site route (spec.md §4.2): a
// live bridge connection to one remote site, plus the wrapping needed to
// send a message over it with a relay header attached.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package route

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/xsite-relay/xsite/address"
	"github.com/xsite-relay/xsite/cmn/cos"
	"github.com/xsite-relay/xsite/wire"
	"github.com/xsite-relay/xsite/xport"
)

type status int32

const (
	StatusDown status = iota
	StatusUp
)

// Route is a live or down connection to one remote site, reachable over
// Bridge.
type Route struct {
	SiteName string
	Bridge   xport.Bridge

	// SessionID tags one dial of this route's bridge, so a route log or
	// dump can tell a reconnect's new session apart from the one it
	// replaced (spec.md §4.3 "as bridges come up, register Routes").
	SessionID string

	// SiteMasterOnBridge is the last-known site-master address of the
	// remote site, as seen on this bridge's own view; nil until learned.
	SiteMasterOnBridge address.SiteAddress

	status int32 // atomic status
}

func New(site string, bridge xport.Bridge) *Route {
	r := &Route{SiteName: site, Bridge: bridge, SessionID: cos.GenID()}
	r.SetStatus(StatusUp)
	return r
}

func (r *Route) SetStatus(s status) { atomic.StoreInt32(&r.status, int32(s)) }
func (r *Route) Status() status     { return status(atomic.LoadInt32(&r.status)) }
func (r *Route) IsUp() bool         { return r.Status() == StatusUp }

// Send wraps msg with a fresh relay header addressed to finalDest and
// sends it over the route's bridge.
func (r *Route) Send(finalDest, originalSender address.SiteAddress, msg *wire.Message) error {
	return r.SendVisited(finalDest, originalSender, msg, nil)
}

// SendVisited is Send with an explicit visited-sites set, used by the
// relay core's multicast fan-out to prevent cycles (spec.md §4.6).
func (r *Route) SendVisited(finalDest, originalSender address.SiteAddress, msg *wire.Message, visited []string) error {
	if !r.IsUp() {
		return errors.Errorf("route: site %q is down", r.SiteName)
	}

	hdr := wire.NewHeader(wire.TypeData)
	hdr.SetFinalDest(finalDest)
	hdr.SetOriginalSender(originalSender)
	if len(visited) > 0 {
		hdr.VisitedSites = visited
	}

	// The relay header carries end-to-end identity; the wrapped message's
	// own destination/source are cleared (spec.md §4.2).
	wrapped := msg.Clone()
	wrapped.Dest = nil
	wrapped.Src = nil
	wrapped.Relay = hdr

	var bridgeDest address.Addr
	if finalDest != nil {
		bridgeDest = r.SiteMasterOnBridge
	}
	// nil bridgeDest (either finalDest itself is nil, or no site master is
	// yet known on this bridge) means "multicast to the bridge cluster."

	return r.Bridge.Send(bridgeDest, wrapped)
}
