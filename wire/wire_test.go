package wire

import (
	"testing"

	"github.com/xsite-relay/xsite/address"
)

func TestHeaderRoundTripData(t *testing.T) {
	h := NewHeader(TypeData)
	h.SetFinalDest(address.NewSiteUUID("SFO", address.NewLocalAddress("sfo-b")))
	h.SetOriginalSender(address.NewSiteMaster("LON"))
	h.VisitedSites = []string{"LON", "SFO"}

	b, err := Encode(h)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if got.Type != h.Type {
		t.Fatalf("expected type %v, got %v", h.Type, got.Type)
	}
	if !got.FinalDest().Equal(h.FinalDest()) {
		t.Fatalf("expected final dest %v, got %v", h.FinalDest(), got.FinalDest())
	}
	if !got.OriginalSender().Equal(h.OriginalSender()) {
		t.Fatalf("expected original sender %v, got %v", h.OriginalSender(), got.OriginalSender())
	}
	if len(got.VisitedSites) != 2 || got.VisitedSites[0] != "LON" || got.VisitedSites[1] != "SFO" {
		t.Fatalf("expected visited sites preserved, got %v", got.VisitedSites)
	}
}

func TestHeaderRoundTripNilAddresses(t *testing.T) {
	h := NewHeader(TypeSitesUp)
	h.Sites = []string{"TOK", "FRA"}

	b, err := Encode(h)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if got.FinalDest() != nil {
		t.Fatalf("expected nil final dest, got %v", got.FinalDest())
	}
	if got.OriginalSender() != nil {
		t.Fatalf("expected nil original sender, got %v", got.OriginalSender())
	}
	if len(got.Sites) != 2 || got.Sites[0] != "TOK" || got.Sites[1] != "FRA" {
		t.Fatalf("expected sites preserved, got %v", got.Sites)
	}
}

func TestHeaderRoundTripSiteMasterFinalDest(t *testing.T) {
	h := NewHeader(TypeData)
	h.SetFinalDest(address.NewSiteMaster("SFO"))
	h.SetOriginalSender(address.NewSiteUUID("LON", address.NewLocalAddress("lon-a")))

	b, err := Encode(h)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if _, ok := got.FinalDest().(address.SiteMaster); !ok {
		t.Fatalf("expected SiteMaster final dest, got %T", got.FinalDest())
	}
	if !got.FinalDest().Equal(h.FinalDest()) {
		t.Fatalf("expected final dest %v, got %v", h.FinalDest(), got.FinalDest())
	}
}

func TestTopoHeaderRoundTrip(t *testing.T) {
	th := NewTopoHeader("LON", false)
	th.Members = []TopoMemberRow{
		{Addr: "lon-a", Extra: "flags=1"},
		{Addr: "lon-b"},
	}

	b, err := EncodeTopo(th)
	if err != nil {
		t.Fatalf("EncodeTopo failed: %v", err)
	}
	got, err := DecodeTopo(b)
	if err != nil {
		t.Fatalf("DecodeTopo failed: %v", err)
	}

	if got.ProtoID != TopoProtoID {
		t.Fatalf("expected proto id %d, got %d", TopoProtoID, got.ProtoID)
	}
	if got.Site != "LON" || got.Request {
		t.Fatalf("unexpected header: %+v", got)
	}
	if len(got.Members) != 2 || got.Members[0].Addr != "lon-a" || got.Members[0].Extra != "flags=1" {
		t.Fatalf("unexpected members: %+v", got.Members)
	}
}

func TestVisitedSetBuildsFromSlice(t *testing.T) {
	h := NewHeader(TypeData)
	h.VisitedSites = []string{"A", "B", "A"}
	set := h.VisitedSet()
	if len(set) != 2 {
		t.Fatalf("expected 2 unique sites, got %d", len(set))
	}
	if _, ok := set["A"]; !ok {
		t.Fatal("expected A in visited set")
	}
	if _, ok := set["B"]; !ok {
		t.Fatal("expected B in visited set")
	}
}

func TestTypeIsAdmin(t *testing.T) {
	admin := []Type{TypeSitesUp, TypeSitesDown, TypeTopoReq, TypeTopoRsp}
	for _, ty := range admin {
		if !ty.IsAdmin() {
			t.Fatalf("expected %v to be admin", ty)
		}
	}
	nonAdmin := []Type{TypeData, TypeSiteUnreachable}
	for _, ty := range nonAdmin {
		if ty.IsAdmin() {
			t.Fatalf("expected %v not to be admin", ty)
		}
	}
}
