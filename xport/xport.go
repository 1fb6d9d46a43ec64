// Package xport declares the contracts the relay core depends on but does
// not implement: the underlying group-membership transport, a joined
// inter-site bridge connection, a deferred-task scheduler, and a
// name-to-address registry. Per spec.md §1 these are external
// collaborators - "out of scope" - supplied by whatever group-
// communication toolkit hosts this relay.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package xport

import (
	"bytes"
	"time"

	"github.com/xsite-relay/xsite/address"
	"github.com/xsite-relay/xsite/wire"
)

// Transport is the local cluster's raw send/receive surface, plus the
// handful of knobs the bundler and relay core need from it (spec.md §4.1,
// §4.6).
type Transport interface {
	// LocalAddr is this node's address within its own cluster.
	LocalAddr() address.LocalAddress

	// PerMessageOverhead is the fixed byte overhead the bundler adds to
	// its pre-serialization size estimate for every queued message.
	PerMessageOverhead() int

	// LoopbackOnSeparateThread reports whether locally-addressed sends
	// must be explicitly handed back to the local delivery path (true),
	// or whether the transport already does this itself (false).
	LoopbackOnSeparateThread() bool

	// SerializeInto writes msg's wire form into w. Serialization of the
	// payload itself is the transport's concern (spec.md §1).
	SerializeInto(w *bytes.Buffer, msg *wire.Message) error

	// SerializeBatchInto writes a batch of msgs, addressed to dest with
	// source src, into w.
	SerializeBatchInto(w *bytes.Buffer, dest, src address.Addr, msgs []*wire.Message) error

	// DoSend hands a pre-serialized payload to the wire. Errors are
	// transient per spec.md §7.4 and are logged, not retried, by callers.
	DoSend(dest address.Addr, payload []byte) error

	// ProcessLoopback dispatches a batch of locally-addressed messages to
	// the local delivery path, tagged with its ordering class (oob=true
	// for the OOB batch). Called off the sender's goroutine.
	ProcessLoopback(msgs []*wire.Message, oob bool)

	// DeliverUp hands a message to the application above the relay core.
	DeliverUp(msg *wire.Message)
}

// Bridge is a secondary cluster connection a site master joins in order
// to exchange messages with exactly one other site (spec.md GLOSSARY).
type Bridge interface {
	ClusterName() string
	RemoteSite() string

	// Send transmits msg to dest over the bridge; dest == nil means
	// multicast to every member of the bridge's cluster.
	Send(dest address.Addr, msg *wire.Message) error

	// View returns the bridge cluster's current membership.
	View() address.View

	IsUp() bool
	Close() error
}

// Scheduler submits deferred or background work, backing
// "async_relay_creation" (spec.md §4.3, §9).
type Scheduler interface {
	Submit(fn func())
	After(d time.Duration, fn func()) (cancel func())
}

// AddressRegistry resolves symbolic names to addresses; out of scope per
// spec.md §1 ("the address/name registry").
type AddressRegistry interface {
	Resolve(name string) (address.Addr, bool)
}
