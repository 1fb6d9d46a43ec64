package relay

import (
	"math/rand"

	"github.com/xsite-relay/xsite/address"
	"github.com/xsite-relay/xsite/route"
)

// SiteMasterPicker is the relay core's only selection plugin point
// (spec.md §9 "Dynamic dispatch"): choosing which local site master a
// non-master node forwards through (PickMaster), and which Route to use
// among several alternatives for the same remote site (PickRoute). Core
// calls only PickMaster; its routing takes Relayer.GetRoute's first UP
// route and never consults PickRoute.
type SiteMasterPicker interface {
	PickMaster(site string, candidates []address.LocalAddress) address.LocalAddress
	PickRoute(routes []*route.Route) *route.Route
}

// RandomPicker is the default SiteMasterPicker: uniform random choice
// among candidates (spec.md §6 "site_master_picker_impl ... default picks
// uniformly at random").
type RandomPicker struct{}

func (RandomPicker) PickMaster(_ string, candidates []address.LocalAddress) address.LocalAddress {
	if len(candidates) == 0 {
		return address.LocalAddress{}
	}
	return candidates[rand.Intn(len(candidates))]
}

func (RandomPicker) PickRoute(routes []*route.Route) *route.Route {
	var up []*route.Route
	for _, r := range routes {
		if r.IsUp() {
			up = append(up, r)
		}
	}
	if len(up) == 0 {
		return nil
	}
	return up[rand.Intn(len(up))]
}

// RouteStatusListener receives the relay core's site-reachability events
// (spec.md §9 "Dynamic dispatch", §7 "route-status listener"). A nil
// listener passed to New is replaced by NopListener.
type RouteStatusListener interface {
	SitesUp(sites []string)
	SitesDown(sites []string)
	SitesUnreachable(site string)
}

// NopListener implements RouteStatusListener by discarding every event,
// used when the caller has no interest in route-status notifications.
type NopListener struct{}

func (NopListener) SitesUp(_ []string)        {}
func (NopListener) SitesDown(_ []string)      {}
func (NopListener) SitesUnreachable(_ string) {}
