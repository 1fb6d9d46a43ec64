// Package address implements the relay's address variants: cluster-local
// addresses, site-scoped addresses (concrete members and the virtual "site
// master" address), and the extended form that carries the site-master-
// eligibility flag across a view.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package address

import "github.com/xsite-relay/xsite/cmn/cos"

// Addr is the umbrella type for anything that can appear as a message's
// destination or source: a bare LocalAddress, or one of the SiteAddress
// variants. It is intentionally minimal - callers type-switch or use
// AsSiteAddress to recover the concrete variant.
type Addr interface {
	String() string
	Equal(Addr) bool
}

// LocalAddress is an opaque cluster-unique identifier, e.g. the member ID
// assigned by the underlying group-membership transport.
type LocalAddress struct {
	id string
}

func NewLocalAddress(id string) LocalAddress { return LocalAddress{id: id} }

// GenLocalAddress mints a fresh cryptographically random LocalAddress,
// used by tests and by standalone bootstrap when the transport does not
// supply one.
func GenLocalAddress() LocalAddress { return LocalAddress{id: cos.GenLocalID()} }

func (a LocalAddress) ID() string     { return a.id }
func (a LocalAddress) String() string { return a.id }
func (a LocalAddress) IsZero() bool   { return a.id == "" }

func (a LocalAddress) Equal(other Addr) bool {
	o, ok := other.(LocalAddress)
	return ok && o.id == a.id
}

// Flags is the ExtendedAddress flag set. Only CanBecomeSiteMaster is read
// by the relay core (spec: "the only flag the core reads").
type Flags uint32

const (
	CanBecomeSiteMaster Flags = 1 << iota
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// ExtendedAddress is a LocalAddress carrying a flag set. Produced by the
// transport layer only when "enable_address_tagging" is configured;
// otherwise a bare LocalAddress is used and flags are assumed zero
// (meaning: "site-master eligibility unknown", see relay.DetermineSiteMasters
// fallback-to-coordinator rule).
type ExtendedAddress struct {
	LocalAddress
	Flags Flags
}

func NewExtendedAddress(base LocalAddress, flags Flags) ExtendedAddress {
	return ExtendedAddress{LocalAddress: base, Flags: flags}
}

func (a ExtendedAddress) Equal(other Addr) bool {
	switch o := other.(type) {
	case ExtendedAddress:
		return o.LocalAddress.Equal(a.LocalAddress)
	case LocalAddress:
		return o.Equal(a.LocalAddress)
	}
	return false
}

// SiteAddress is the tagged-variant family {SiteUUID, SiteMaster}. It is
// deliberately NOT implemented via struct embedding/inheritance (spec.md
// §9 "Polymorphic addresses"): the two variants are distinct concrete
// types unified only by this interface, and Equal is type-aware - a
// SiteMaster is equal only to another SiteMaster naming the same site.
type SiteAddress interface {
	Addr
	Site() string
	isSiteAddress()
}

// SiteUUID names a concrete member of a named site. Flags mirrors the
// ExtendedAddress flags of the underlying member, if any, so that
// wrapping a LocalAddress into a SiteUUID for relaying does not lose
// site-master eligibility information (spec.md §4.6 "Preserve
// ExtendedUUID flags").
type SiteUUID struct {
	SiteName string
	Local    LocalAddress
	Flags    Flags
}

func NewSiteUUID(site string, local LocalAddress) SiteUUID {
	return SiteUUID{SiteName: site, Local: local}
}

func NewSiteUUIDWithFlags(site string, local LocalAddress, flags Flags) SiteUUID {
	return SiteUUID{SiteName: site, Local: local, Flags: flags}
}

func (SiteUUID) isSiteAddress()  {}
func (s SiteUUID) Site() string  { return s.SiteName }
func (s SiteUUID) String() string {
	return s.Local.String() + "@" + s.SiteName
}

func (s SiteUUID) Equal(other Addr) bool {
	o, ok := other.(SiteUUID)
	return ok && o.SiteName == s.SiteName && o.Local.Equal(s.Local)
}

// SiteMaster is a virtual address denoting "the current site master of
// site S", resolved dynamically at delivery time.
type SiteMaster struct {
	SiteName string
}

func NewSiteMaster(site string) SiteMaster { return SiteMaster{SiteName: site} }

func (SiteMaster) isSiteAddress()  {}
func (s SiteMaster) Site() string  { return s.SiteName }
func (s SiteMaster) String() string { return "master@" + s.SiteName }

func (s SiteMaster) Equal(other Addr) bool {
	o, ok := other.(SiteMaster)
	return ok && o.SiteName == s.SiteName
}

// AsSiteAddress recovers the SiteAddress variant of an Addr, if any.
func AsSiteAddress(a Addr) (SiteAddress, bool) {
	if a == nil {
		return nil, false
	}
	sa, ok := a.(SiteAddress)
	return sa, ok
}

// Member is one entry of a View: a LocalAddress plus the flags the
// transport chose to attach to it (zero value if address tagging is
// disabled).
type Member struct {
	Addr  LocalAddress
	Flags Flags
}

// View is an ordered list of cluster members, delivered monotonically by
// the transport - each view supersedes the previous one (spec.md §3).
type View struct {
	Members []Member
}

// Coordinator is the first member of the view, used as the fallback
// site-master selection when no member advertises site-master eligibility.
func (v View) Coordinator() (Member, bool) {
	if len(v.Members) == 0 {
		return Member{}, false
	}
	return v.Members[0], true
}

func (v View) Len() int { return len(v.Members) }

// Contains reports whether addr is a member of the view.
func (v View) Contains(addr LocalAddress) bool {
	for _, m := range v.Members {
		if m.Addr.Equal(addr) {
			return true
		}
	}
	return false
}
