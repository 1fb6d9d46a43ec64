// Package wire defines the relay's on-the-wire shapes: the application
// message envelope, the relay header attached to messages crossing
// bridges, and their JSON codec. Serialization of the opaque message
// payload itself (and of message lists) belongs to the underlying
// transport and is out of scope here (spec.md §1).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package wire

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/xsite-relay/xsite/address"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Flags classify a Message's delivery semantics.
type Flags uint32

const (
	// OOB marks a message as out-of-band: it may be delivered ahead of,
	// and concurrently with, regular messages.
	OOB Flags = 1 << iota
	// DontLoopback suppresses local-delivery-to-self for this message.
	DontLoopback
	// NoRelay prevents a site master from fanning a multicast out to
	// other sites' bridges.
	NoRelay
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Message is the application-level envelope the relay core and bundler
// operate on. Payload is opaque; its encoding is the transport's concern.
type Message struct {
	Payload []byte
	Dest    address.Addr // nil => local cluster multicast
	Src     address.Addr
	Headers map[string]string
	Flags   Flags

	// Relay is non-nil once the message has been wrapped for a bridge
	// hop (spec.md §3 "Relay header").
	Relay *Header
}

func (m *Message) OOB() bool          { return m.Flags.Has(OOB) }
func (m *Message) DontLoopback() bool { return m.Flags.Has(DontLoopback) }
func (m *Message) NoRelay() bool      { return m.Flags.Has(NoRelay) }

// Clone returns a shallow copy suitable for re-addressing without
// mutating the original (down/up paths routinely rewrap a message with a
// different dest/src and must not corrupt the caller's copy).
func (m *Message) Clone() *Message {
	c := *m
	return &c
}

// Type enumerates the relay header's message kind (spec.md §6).
type Type uint8

const (
	TypeData Type = iota + 1
	TypeSiteUnreachable
	TypeSitesUp
	TypeSitesDown
	TypeTopoReq
	TypeTopoRsp
)

func (t Type) String() string {
	switch t {
	case TypeData:
		return "DATA"
	case TypeSiteUnreachable:
		return "SITE_UNREACHABLE"
	case TypeSitesUp:
		return "SITES_UP"
	case TypeSitesDown:
		return "SITES_DOWN"
	case TypeTopoReq:
		return "TOPO_REQ"
	case TypeTopoRsp:
		return "TOPO_RSP"
	default:
		return "UNKNOWN"
	}
}

func (t Type) IsAdmin() bool {
	return t == TypeSitesUp || t == TypeSitesDown || t == TypeTopoReq || t == TypeTopoRsp
}

// siteAddrWire is the serializable form of a address.SiteAddress, needed
// because the interface itself carries no exported fields for a codec to
// walk.
type siteAddrWire struct {
	Kind  string `json:"kind,omitempty"` // "uuid" | "master"
	Site  string `json:"site,omitempty"`
	Local string `json:"local,omitempty"`
}

func toWire(sa address.SiteAddress) *siteAddrWire {
	if sa == nil {
		return nil
	}
	switch v := sa.(type) {
	case address.SiteUUID:
		return &siteAddrWire{Kind: "uuid", Site: v.SiteName, Local: v.Local.ID()}
	case address.SiteMaster:
		return &siteAddrWire{Kind: "master", Site: v.SiteName}
	default:
		return nil
	}
}

func (w *siteAddrWire) toAddress() address.SiteAddress {
	if w == nil {
		return nil
	}
	switch w.Kind {
	case "uuid":
		return address.NewSiteUUID(w.Site, address.NewLocalAddress(w.Local))
	case "master":
		return address.NewSiteMaster(w.Site)
	default:
		return nil
	}
}

// Header is the relay header attached to a message crossing a bridge
// (spec.md §3, §6).
type Header struct {
	Type         Type     `json:"type"`
	Sites        []string `json:"sites,omitempty"`
	VisitedSites []string `json:"visited_sites,omitempty"`

	// FinalDestWire/OriginalSenderWire are the wire-safe mirrors of
	// finalDest/originalSender, kept in sync by Encode/Decode.
	FinalDestWire      *siteAddrWire `json:"final_dest,omitempty"`
	OriginalSenderWire *siteAddrWire `json:"original_sender,omitempty"`

	finalDest      *siteAddrWire
	originalSender *siteAddrWire
}

func NewHeader(typ Type) *Header { return &Header{Type: typ} }

func (h *Header) FinalDest() address.SiteAddress { return h.finalDest.toAddress() }
func (h *Header) OriginalSender() address.SiteAddress { return h.originalSender.toAddress() }

func (h *Header) SetFinalDest(a address.SiteAddress)      { h.finalDest = toWire(a) }
func (h *Header) SetOriginalSender(a address.SiteAddress) { h.originalSender = toWire(a) }

// VisitedSet returns the header's visited-sites as a set, used for
// multicast cycle prevention (spec.md §4.6).
func (h *Header) VisitedSet() map[string]struct{} {
	set := make(map[string]struct{}, len(h.VisitedSites))
	for _, s := range h.VisitedSites {
		set[s] = struct{}{}
	}
	return set
}

// Encode/Decode implement the round-trip property required by spec.md §8.
func Encode(h *Header) ([]byte, error) {
	h.FinalDestWire = h.finalDest
	h.OriginalSenderWire = h.originalSender
	return json.Marshal(h)
}

func Decode(b []byte) (*Header, error) {
	h := &Header{}
	if err := json.Unmarshal(b, h); err != nil {
		return nil, err
	}
	h.finalDest = h.FinalDestWire
	h.originalSender = h.OriginalSenderWire
	return h, nil
}

// TopoProtoID is the stable protocol ID reserved for the TOPO sub-header,
// preserved for interop (spec.md §6: "560 in the reference deployment").
const TopoProtoID = 560

// TopoHeader is the lightweight topology-refresh sub-protocol used within
// a single cluster, independent of the cross-site relay header (spec.md
// §4.4, §4.6 "If no relay header: handle TopoHeader if present").
type TopoHeader struct {
	ProtoID int             `json:"proto_id"`
	Request bool            `json:"request"`
	Site    string          `json:"site"`
	Members []TopoMemberRow `json:"members,omitempty"`
}

type TopoMemberRow struct {
	Addr  string `json:"addr"`
	Extra string `json:"extra,omitempty"`
}

func NewTopoHeader(site string, request bool) *TopoHeader {
	return &TopoHeader{ProtoID: TopoProtoID, Request: request, Site: site}
}

func EncodeTopo(h *TopoHeader) ([]byte, error) { return json.Marshal(h) }

func DecodeTopo(b []byte) (*TopoHeader, error) {
	h := &TopoHeader{}
	if err := json.Unmarshal(b, h); err != nil {
		return nil, err
	}
	return h, nil
}
