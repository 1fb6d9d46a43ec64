package config

import (
	"strings"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(strings.NewReader(`{"relay": {"site": "LON"}}`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Relay.MaxSiteMasters != 1 {
		t.Fatalf("expected default MaxSiteMasters 1, got %d", cfg.Relay.MaxSiteMasters)
	}
	if cfg.AdminListenAddr != ":8901" {
		t.Fatalf("expected default admin listen addr, got %q", cfg.AdminListenAddr)
	}
}

func TestLoadRejectsMissingSite(t *testing.T) {
	_, err := Load(strings.NewReader(`{}`))
	if err == nil {
		t.Fatal("expected an error for a missing site name")
	}
}

func TestLoadRejectsRouteToSelf(t *testing.T) {
	_, err := Load(strings.NewReader(`{"relay": {"site": "LON"}, "sites": [{"site": "LON", "cluster_name": "x"}]}`))
	if err == nil {
		t.Fatal("expected an error for a self-referencing route")
	}
}

func TestLoadRejectsMissingClusterName(t *testing.T) {
	_, err := Load(strings.NewReader(`{"relay": {"site": "LON"}, "sites": [{"site": "SFO"}]}`))
	if err == nil {
		t.Fatal("expected an error for a site entry missing cluster_name")
	}
}

func TestToRelayerSitesDefaultsClusterName(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Relay.Site = "LON"
	cfg.Sites = []SiteConfig{{Site: "SFO"}}
	out := cfg.ToRelayerSites()
	if len(out) != 1 || out[0].ClusterName != "SFO-bridge" {
		t.Fatalf("expected default cluster name SFO-bridge, got %+v", out)
	}
}

func TestDeprecatedOptionsRoundTrip(t *testing.T) {
	cfg, err := Load(strings.NewReader(`{"relay": {"site": "LON"}, "relay_multicasts": true, "can_forward_local_cluster": true}`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.RelayMulticasts || !cfg.CanForwardLocalCluster {
		t.Fatal("expected deprecated options to be accepted as given")
	}
}

func TestSetAndGet(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Relay.Site = "LON"
	Set(cfg)
	got := Get()
	if got.Relay.Site != "LON" {
		t.Fatalf("expected site LON, got %q", got.Relay.Site)
	}
}
