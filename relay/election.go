package relay

import (
	"math"

	"github.com/xsite-relay/xsite/address"
)

// DetermineSiteMasters implements the election rule of spec.md §4.6: walk
// the view in order, collecting members whose CanBecomeSiteMaster flag is
// set, up to maxNumSiteMasters(view, maxSiteMasters, ratio); if none
// qualify, fall back to the view's coordinator regardless of flags.
//
// Deterministic and stable: identical views yield identical selections
// (spec.md §8 universal invariant).
func DetermineSiteMasters(view address.View, maxSiteMasters int, ratio float64) []address.LocalAddress {
	limit := maxNumSiteMasters(view.Len(), maxSiteMasters, ratio)

	var masters []address.LocalAddress
	for _, m := range view.Members {
		if !m.Flags.Has(address.CanBecomeSiteMaster) {
			continue
		}
		masters = append(masters, m.Addr)
		if len(masters) >= limit {
			break
		}
	}

	if len(masters) == 0 {
		if coord, ok := view.Coordinator(); ok {
			masters = []address.LocalAddress{coord.Addr}
		}
	}
	return masters
}

func maxNumSiteMasters(viewLen, maxSiteMasters int, ratio float64) int {
	floor := int(math.Floor(float64(viewLen) * ratio))
	if floor > maxSiteMasters {
		return floor
	}
	return maxSiteMasters
}
