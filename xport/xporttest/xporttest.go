// Package xporttest provides in-memory fakes for xport.Transport and
// xport.Bridge, standing in for the underlying group-membership transport
// that spec.md places out of scope. Modeled on the teacher's
// cluster/mock stub-struct convention.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package xporttest

import (
	"bytes"
	"sync"
	"time"

	"github.com/xsite-relay/xsite/address"
	"github.com/xsite-relay/xsite/wire"
)

// Transport is a fake xport.Transport that records sends and loopbacks in
// memory instead of touching a network.
type Transport struct {
	mu sync.Mutex

	Local              address.LocalAddress
	Overhead           int
	SeparateThread     bool
	FailSerialize      bool
	FailSend           bool

	Sent      []Sent
	Loopbacks []Loopback
	Delivered []*wire.Message
}

type Sent struct {
	Dest    address.Addr
	Payload []byte
}

type Loopback struct {
	Msgs []*wire.Message
	OOB  bool
}

func NewTransport(local address.LocalAddress) *Transport {
	return &Transport{Local: local, Overhead: 16, SeparateThread: true}
}

func (t *Transport) LocalAddr() address.LocalAddress     { return t.Local }
func (t *Transport) PerMessageOverhead() int              { return t.Overhead }
func (t *Transport) LoopbackOnSeparateThread() bool        { return t.SeparateThread }

func (t *Transport) SerializeInto(w *bytes.Buffer, msg *wire.Message) error {
	if t.FailSerialize {
		return errSerialize
	}
	w.Write(msg.Payload)
	return nil
}

func (t *Transport) SerializeBatchInto(w *bytes.Buffer, _, _ address.Addr, msgs []*wire.Message) error {
	if t.FailSerialize {
		return errSerialize
	}
	for _, m := range msgs {
		w.Write(m.Payload)
	}
	return nil
}

func (t *Transport) DoSend(dest address.Addr, payload []byte) error {
	if t.FailSend {
		return errSend
	}
	t.mu.Lock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	t.Sent = append(t.Sent, Sent{Dest: dest, Payload: cp})
	t.mu.Unlock()
	return nil
}

func (t *Transport) ProcessLoopback(msgs []*wire.Message, oob bool) {
	t.mu.Lock()
	t.Loopbacks = append(t.Loopbacks, Loopback{Msgs: msgs, OOB: oob})
	t.mu.Unlock()
}

func (t *Transport) DeliverUp(msg *wire.Message) {
	t.mu.Lock()
	t.Delivered = append(t.Delivered, msg)
	t.mu.Unlock()
}

func (t *Transport) SentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Sent)
}

type sendErr string

func (e sendErr) Error() string { return string(e) }

const (
	errSerialize = sendErr("xporttest: forced serialize failure")
	errSend      = sendErr("xporttest: forced send failure")
)

// Bridge is a fake xport.Bridge connecting two in-process Relayers without
// a real network, used by relayer/relay tests to exercise multi-site
// fan-out and cycle prevention deterministically.
type Bridge struct {
	mu sync.Mutex

	cluster    string
	remoteSite string
	up         bool
	view       address.View
	recv       func(dest address.Addr, msg *wire.Message)
	FailSend   bool
}

func NewBridge(cluster, remoteSite string, recv func(address.Addr, *wire.Message)) *Bridge {
	return &Bridge{cluster: cluster, remoteSite: remoteSite, up: true, recv: recv}
}

func (b *Bridge) ClusterName() string { return b.cluster }
func (b *Bridge) RemoteSite() string  { return b.remoteSite }
func (b *Bridge) IsUp() bool          { b.mu.Lock(); defer b.mu.Unlock(); return b.up }

func (b *Bridge) SetView(v address.View) { b.mu.Lock(); b.view = v; b.mu.Unlock() }
func (b *Bridge) View() address.View     { b.mu.Lock(); defer b.mu.Unlock(); return b.view }

func (b *Bridge) Send(dest address.Addr, msg *wire.Message) error {
	if b.FailSend {
		return errSend
	}
	if b.recv != nil {
		b.recv(dest, msg)
	}
	return nil
}

func (b *Bridge) Close() error { b.mu.Lock(); b.up = false; b.mu.Unlock(); return nil }

// Scheduler runs submitted work synchronously (Submit) or after a real
// timer (After); sufficient for tests that don't need to fast-forward
// time.
type Scheduler struct{}

func NewScheduler() *Scheduler { return &Scheduler{} }

func (*Scheduler) Submit(fn func()) { fn() }

func (*Scheduler) After(d time.Duration, fn func()) func() {
	timer := time.AfterFunc(d, fn)
	return func() { timer.Stop() }
}
