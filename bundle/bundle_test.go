package bundle

import (
	"testing"

	"github.com/xsite-relay/xsite/address"
	"github.com/xsite-relay/xsite/wire"
	"github.com/xsite-relay/xsite/xport/xporttest"
)

func newTestBundler(cfg Config) (*Bundler, *xporttest.Transport) {
	local := address.NewLocalAddress("local")
	tr := xporttest.NewTransport(local)
	return New(tr, cfg), tr
}

func TestSendDoesNotFlushBelowThreshold(t *testing.T) {
	b, tr := newTestBundler(Config{MaxSize: 1 << 20, Capacity: 1 << 20})
	dest := address.NewLocalAddress("other")

	_ = b.Send(&wire.Message{Dest: dest, Payload: []byte("hello")})

	if tr.SentCount() != 0 {
		t.Fatalf("expected no send before threshold, got %d", tr.SentCount())
	}
}

func TestFlushSendsQueuedBatch(t *testing.T) {
	b, tr := newTestBundler(Config{MaxSize: 1 << 20, Capacity: 1 << 20})
	dest := address.NewLocalAddress("other")

	_ = b.Send(&wire.Message{Dest: dest, Payload: []byte("hello")})
	b.Flush()

	if tr.SentCount() != 1 {
		t.Fatalf("expected 1 send after Flush, got %d", tr.SentCount())
	}
}

func TestSendAutoFlushesOnCapacity(t *testing.T) {
	b, tr := newTestBundler(Config{MaxSize: 1 << 20, Capacity: 2})
	dest := address.NewLocalAddress("other")

	_ = b.Send(&wire.Message{Dest: dest, Payload: []byte("a")})
	_ = b.Send(&wire.Message{Dest: dest, Payload: []byte("b")})

	if tr.SentCount() != 1 {
		t.Fatalf("expected auto-flush at capacity, got %d sends", tr.SentCount())
	}
}

func TestSendAutoFlushesOnSize(t *testing.T) {
	b, tr := newTestBundler(Config{MaxSize: 10, Capacity: 1 << 20})
	dest := address.NewLocalAddress("other")

	_ = b.Send(&wire.Message{Dest: dest, Payload: make([]byte, 20)})

	if tr.SentCount() != 1 {
		t.Fatalf("expected auto-flush at size threshold, got %d sends", tr.SentCount())
	}
}

func TestFlushSeparatesDestinations(t *testing.T) {
	b, tr := newTestBundler(Config{MaxSize: 1 << 20, Capacity: 1 << 20})
	d1 := address.NewLocalAddress("d1")
	d2 := address.NewLocalAddress("d2")

	_ = b.Send(&wire.Message{Dest: d1, Payload: []byte("x")})
	_ = b.Send(&wire.Message{Dest: d2, Payload: []byte("y")})
	b.Flush()

	if tr.SentCount() != 2 {
		t.Fatalf("expected 2 separate sends for 2 destinations, got %d", tr.SentCount())
	}
}

func TestLoopbackDeliversLocallyAddressedBatch(t *testing.T) {
	local := address.NewLocalAddress("local")
	tr := xporttest.NewTransport(local)
	tr.SeparateThread = false // synchronous, deterministic for the test
	b := New(tr, Config{MaxSize: 1 << 20, Capacity: 1 << 20, ProcessLoopbacks: true})

	_ = b.Send(&wire.Message{Dest: local, Payload: []byte("self")})
	b.Flush()

	if len(tr.Loopbacks) != 1 || len(tr.Loopbacks[0].Msgs) != 1 {
		t.Fatalf("expected 1 loopback batch with 1 message, got %+v", tr.Loopbacks)
	}
}

func TestLoopbackSkipsDontLoopbackMessages(t *testing.T) {
	local := address.NewLocalAddress("local")
	tr := xporttest.NewTransport(local)
	tr.SeparateThread = false
	b := New(tr, Config{MaxSize: 1 << 20, Capacity: 1 << 20, ProcessLoopbacks: true})

	_ = b.Send(&wire.Message{Dest: local, Payload: []byte("self"), Flags: wire.DontLoopback})
	b.Flush()

	if len(tr.Loopbacks) != 0 {
		t.Fatalf("expected no loopback for DontLoopback message, got %+v", tr.Loopbacks)
	}
}

func TestLoopbackSplitsOOBFromRegular(t *testing.T) {
	local := address.NewLocalAddress("local")
	tr := xporttest.NewTransport(local)
	tr.SeparateThread = false
	b := New(tr, Config{MaxSize: 1 << 20, Capacity: 1 << 20, ProcessLoopbacks: true})

	_ = b.Send(&wire.Message{Dest: local, Payload: []byte("reg")})
	_ = b.Send(&wire.Message{Dest: local, Payload: []byte("oob"), Flags: wire.OOB})
	b.Flush()

	if len(tr.Loopbacks) != 2 {
		t.Fatalf("expected 2 loopback batches (OOB, regular), got %d", len(tr.Loopbacks))
	}
}

func TestFlushOnEmptyBundlerIsNoop(t *testing.T) {
	b, tr := newTestBundler(Config{MaxSize: 1 << 20, Capacity: 1 << 20})
	b.Flush()
	if tr.SentCount() != 0 {
		t.Fatalf("expected no sends on empty flush, got %d", tr.SentCount())
	}
}

func TestCompressRoundTrip(t *testing.T) {
	orig := []byte("the quick brown fox jumps over the lazy dog, repeatedly, to pad this out")
	c := compress(orig)
	back, err := Decompress(c)
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if string(back) != string(orig) {
		t.Fatalf("round trip mismatch: got %q want %q", back, orig)
	}
}
