// Package topology maintains this node's picture of every known site's
// membership (spec.md §4.4): which sites are known and which addresses
// belong to them, installing memberships learned from TOPO_RSP responses
// (spec.md §6). It sends no TOPO_REQ and answers none. Backed by an
// in-memory buntdb so membership can be
// queried by key prefix without hand-rolling an index.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package topology

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/buntdb"

	"github.com/xsite-relay/xsite/address"
	"github.com/xsite-relay/xsite/cmn/cos"
	"github.com/xsite-relay/xsite/cmn/nlog"
)

// MemberRow is one member of a remote site's view, as learned from a
// TOPO_RSP or a relay view change.
type MemberRow struct {
	Site  string
	Addr  address.LocalAddress
	Extra string // opaque, e.g. advertised flags; unused by the core
}

func rowKey(site, addr string) string { return "member:" + site + ":" + addr }

// Topology tracks known sites and their members.
type Topology struct {
	mu sync.RWMutex
	db *buntdb.DB
}

func New() *Topology {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		// buntdb can only fail to open an in-memory database on
		// out-of-memory conditions; nothing meaningful to recover into.
		cos.ExitLogf("topology: failed to open in-memory store: %v", err)
	}
	return &Topology{db: db}
}

// Adjust replaces localSite's membership with view, called whenever the
// local cluster's view changes.
func (t *Topology) Adjust(localSite string, view address.View) {
	t.replaceSite(localSite, view.Members)
}

// HandleResponse installs a remote site's membership as learned from a
// TOPO_RSP.
func (t *Topology) HandleResponse(site string, rows []MemberRow) {
	members := make([]address.Member, len(rows))
	for i, r := range rows {
		members[i] = address.Member{Addr: r.Addr}
	}
	t.replaceSite(site, members)
	nlog.Infof("topology: refreshed site %q with %d member(s)", site, len(members))
}

func (t *Topology) replaceSite(site string, members []address.Member) {
	t.mu.Lock()
	defer t.mu.Unlock()

	_ = t.db.Update(func(tx *buntdb.Tx) error {
		prefix := "member:" + site + ":"
		var stale []string
		_ = tx.AscendKeys(prefix+"*", func(k, _ string) bool {
			stale = append(stale, k)
			return true
		})
		for _, k := range stale {
			_, _ = tx.Delete(k)
		}
		for _, m := range members {
			_, _, _ = tx.Set(rowKey(site, m.Addr.ID()), m.Addr.ID(), nil)
		}
		return nil
	})
}

// RemoveAll drops every known member of sites, e.g. on SITES_DOWN.
func (t *Topology) RemoveAll(sites []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	_ = t.db.Update(func(tx *buntdb.Tx) error {
		for _, site := range sites {
			prefix := "member:" + site + ":"
			var stale []string
			_ = tx.AscendKeys(prefix+"*", func(k, _ string) bool {
				stale = append(stale, k)
				return true
			})
			for _, k := range stale {
				_, _ = tx.Delete(k)
			}
		}
		return nil
	})
}

// Members returns every known member of site, in ascending address order.
func (t *Topology) Members(site string) []address.LocalAddress {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []address.LocalAddress
	prefix := "member:" + site + ":"
	_ = t.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(prefix+"*", func(k, v string) bool {
			out = append(out, address.NewLocalAddress(v))
			return true
		})
	})
	return out
}

// Sites returns every site this node currently has membership for.
func (t *Topology) Sites() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	set := make(map[string]struct{})
	_ = t.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(k, _ string) bool {
			rest := strings.TrimPrefix(k, "member:")
			if i := strings.IndexByte(rest, ':'); i >= 0 {
				set[rest[:i]] = struct{}{}
			}
			return true
		})
	})
	sites := make([]string, 0, len(set))
	for s := range set {
		sites = append(sites, s)
	}
	sort.Strings(sites)
	return sites
}

// Print renders a human-readable dump of one site's membership for the
// admin surface (spec.md §6: "no stable textual format is contracted").
func (t *Topology) Print(site string) string {
	members := t.Members(site)
	var b strings.Builder
	fmt.Fprintf(&b, "site %s: %d member(s)\n", site, len(members))
	for _, m := range members {
		fmt.Fprintf(&b, "  %s\n", m.String())
	}
	return b.String()
}

func (t *Topology) Close() error { return t.db.Close() }
