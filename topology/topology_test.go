package topology

import (
	"testing"

	"github.com/xsite-relay/xsite/address"
)

func view(ids ...string) address.View {
	members := make([]address.Member, len(ids))
	for i, id := range ids {
		members[i] = address.Member{Addr: address.NewLocalAddress(id)}
	}
	return address.View{Members: members}
}

func TestAdjustInstallsMembership(t *testing.T) {
	top := New()
	defer top.Close()

	top.Adjust("site-a", view("n1", "n2"))
	got := top.Members("site-a")
	if len(got) != 2 {
		t.Fatalf("expected 2 members, got %d", len(got))
	}
}

func TestAdjustReplacesPreviousMembership(t *testing.T) {
	top := New()
	defer top.Close()

	top.Adjust("site-a", view("n1", "n2"))
	top.Adjust("site-a", view("n3"))

	got := top.Members("site-a")
	if len(got) != 1 || got[0].ID() != "n3" {
		t.Fatalf("expected membership to be replaced, got %v", got)
	}
}

func TestHandleResponseInstallsRemoteSite(t *testing.T) {
	top := New()
	defer top.Close()

	top.HandleResponse("site-b", []MemberRow{
		{Site: "site-b", Addr: address.NewLocalAddress("r1")},
	})

	got := top.Members("site-b")
	if len(got) != 1 || got[0].ID() != "r1" {
		t.Fatalf("expected 1 member r1, got %v", got)
	}
}

func TestRemoveAllDropsSites(t *testing.T) {
	top := New()
	defer top.Close()

	top.Adjust("site-a", view("n1"))
	top.Adjust("site-b", view("n2"))

	top.RemoveAll([]string{"site-a"})

	if len(top.Members("site-a")) != 0 {
		t.Fatal("site-a should have no members after RemoveAll")
	}
	if len(top.Members("site-b")) != 1 {
		t.Fatal("site-b should be unaffected")
	}
}

func TestSitesListsKnownSites(t *testing.T) {
	top := New()
	defer top.Close()

	top.Adjust("site-a", view("n1"))
	top.Adjust("site-b", view("n2"))

	sites := top.Sites()
	if len(sites) != 2 || sites[0] != "site-a" || sites[1] != "site-b" {
		t.Fatalf("expected [site-a site-b], got %v", sites)
	}
}
