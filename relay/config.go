// Package relay implements the relay core (spec.md §4.6 C6): site-master
// election from cluster views, the down/up message paths, routing with
// forwarding-route fallback, multicast fan-out with cycle prevention, and
// admin message handling.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package relay

import (
	"time"

	"github.com/pkg/errors"
)

// Config is the relay core's configuration (spec.md §6).
type Config struct {
	// Site is this node's local site name. Required.
	Site string

	// MaxSiteMasters is the upper bound on the number of site masters
	// (default 1).
	MaxSiteMasters int
	// SiteMastersRatio floors the site-master count at a fraction of the
	// view size (default 0, disabled).
	SiteMastersRatio float64
	// CanBecomeSiteMaster is this node's own eligibility setting. Core
	// does not read it: election uses only the flags carried by each
	// address.Member of the view.
	CanBecomeSiteMaster bool
	// EnableAddressTagging is the address-tagging setting. Core does not
	// read it and generates no ExtendedAddresses; tagging a view's members
	// is left to whatever builds the view.
	EnableAddressTagging bool
	// AsyncRelayCreation runs bridge startup off the view-delivery
	// goroutine (default true).
	AsyncRelayCreation bool

	TopoWaitTime               time.Duration
	SuppressTimeNoRouteErrors  time.Duration

	// RelayMulticasts and CanForwardLocalCluster are deprecated options,
	// accepted for config compatibility and otherwise ignored (spec.md §9
	// Open Questions).
	RelayMulticasts        bool
	CanForwardLocalCluster bool
}

// DefaultConfig returns the reference deployment's defaults (spec.md §6).
func DefaultConfig() Config {
	return Config{
		MaxSiteMasters:            1,
		CanBecomeSiteMaster:       true,
		AsyncRelayCreation:        true,
		TopoWaitTime:              2 * time.Second,
		SuppressTimeNoRouteErrors: 60 * time.Second,
	}
}

// Validate fails initialization on a malformed configuration (spec.md
// §7.1: configuration errors are fatal at init, not recoverable).
func (c Config) Validate() error {
	if c.Site == "" {
		return errors.New("relay: required config option \"site\" is missing")
	}
	if c.MaxSiteMasters < 1 {
		return errors.New("relay: \"max_site_masters\" must be >= 1")
	}
	if c.SiteMastersRatio < 0 || c.SiteMastersRatio > 1 {
		return errors.New("relay: \"site_masters_ratio\" must be in [0,1]")
	}
	return nil
}
