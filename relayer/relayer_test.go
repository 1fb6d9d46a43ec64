package relayer

import (
	"context"
	"testing"

	"github.com/pkg/errors"

	"github.com/xsite-relay/xsite/route"
	"github.com/xsite-relay/xsite/xport"
	"github.com/xsite-relay/xsite/xport/xporttest"
)

func dialOK(remoteSite, cluster string) (xport.Bridge, error) {
	return xporttest.NewBridge(cluster, remoteSite, nil), nil
}

func TestStartEstablishesAllRoutes(t *testing.T) {
	r := New()
	sites := []SiteConfig{
		{Site: "site-b", ClusterName: "b"},
		{Site: "site-c", ClusterName: "c"},
	}
	if err := r.Start(context.Background(), sites, dialOK); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if len(r.GetSiteNames()) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(r.GetSiteNames()))
	}
}

func TestStartToleratesPerSiteDialFailure(t *testing.T) {
	r := New()
	sites := []SiteConfig{
		{Site: "site-b", ClusterName: "b"},
		{Site: "site-bad", ClusterName: "bad"},
	}
	dial := func(remoteSite, cluster string) (xport.Bridge, error) {
		if remoteSite == "site-bad" {
			return nil, errors.New("dial failed")
		}
		return dialOK(remoteSite, cluster)
	}
	if err := r.Start(context.Background(), sites, dial); err != nil {
		t.Fatalf("Start should not fail overall: %v", err)
	}
	if _, ok := r.GetRoute("site-b"); !ok {
		t.Fatal("expected route to site-b")
	}
	if _, ok := r.GetRoute("site-bad"); ok {
		t.Fatal("expected no route to site-bad")
	}
}

func TestGetForwardingRouteMatchingUsesGateway(t *testing.T) {
	r := New()
	sites := []SiteConfig{
		{Site: "site-b", ClusterName: "b", Gateway: true},
	}
	if err := r.Start(context.Background(), sites, dialOK); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	rt, ok := r.GetForwardingRouteMatching("site-c")
	if !ok {
		t.Fatal("expected a forwarding route via gateway site-b")
	}
	if rt.SiteName != "site-b" {
		t.Fatalf("expected forwarding via site-b, got %s", rt.SiteName)
	}
}

func TestGetForwardingRouteMatchingSkipsWhenDirectRouteExists(t *testing.T) {
	r := New()
	sites := []SiteConfig{
		{Site: "site-c", ClusterName: "c"},
		{Site: "site-b", ClusterName: "b", Gateway: true},
	}
	if err := r.Start(context.Background(), sites, dialOK); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	_, ok := r.GetForwardingRouteMatching("site-c")
	if ok {
		t.Fatal("expected no forwarding route when a direct route already exists")
	}
}

func TestMarkDownAffectsIsUp(t *testing.T) {
	r := New()
	sites := []SiteConfig{{Site: "site-b", ClusterName: "b"}}
	if err := r.Start(context.Background(), sites, dialOK); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	r.MarkDown("site-b")
	rt, _ := r.GetRoute("site-b")
	if rt.IsUp() {
		t.Fatal("expected route to be down after MarkDown")
	}

	r.MarkUp("site-b")
	if !rt.IsUp() {
		t.Fatal("expected route to be up after MarkUp")
	}
}

func TestRoutesForReturnsOrderedList(t *testing.T) {
	r := New()
	sites := []SiteConfig{
		{Site: "site-b", ClusterName: "b1"},
		{Site: "site-b", ClusterName: "b2"},
	}
	if err := r.Start(context.Background(), sites, dialOK); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	list := r.RoutesFor("site-b")
	if len(list) != 2 {
		t.Fatalf("expected 2 routes (primary + alternate) for site-b, got %d", len(list))
	}
}

func TestGetRouteFallsBackToNextUpRoute(t *testing.T) {
	r := New()
	sites := []SiteConfig{
		{Site: "site-b", ClusterName: "b1"},
		{Site: "site-b", ClusterName: "b2"},
	}
	if err := r.Start(context.Background(), sites, dialOK); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	list := r.RoutesFor("site-b")
	list[0].SetStatus(route.StatusDown)

	rt, ok := r.GetRoute("site-b")
	if !ok {
		t.Fatal("expected a route even though the primary is down")
	}
	if rt == list[0] {
		t.Fatal("expected GetRoute to skip the down primary and return the alternate")
	}
}
