package route

import (
	"testing"

	"github.com/xsite-relay/xsite/address"
	"github.com/xsite-relay/xsite/wire"
	"github.com/xsite-relay/xsite/xport/xporttest"
)

func TestSendWrapsMessageWithRelayHeader(t *testing.T) {
	var got *wire.Message
	bridge := xporttest.NewBridge("cluster-b", "site-b", func(_ address.Addr, msg *wire.Message) {
		got = msg
	})
	r := New("site-b", bridge)

	final := address.NewSiteMaster("site-c")
	sender := address.NewSiteUUID("site-a", address.NewLocalAddress("n1"))
	msg := &wire.Message{Payload: []byte("hi")}

	if err := r.Send(final, sender, msg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got == nil || got.Relay == nil {
		t.Fatal("expected wrapped message with relay header")
	}
	if !got.Relay.FinalDest().Equal(final) {
		t.Fatalf("final dest mismatch: got %v want %v", got.Relay.FinalDest(), final)
	}
	if !got.Relay.OriginalSender().Equal(sender) {
		t.Fatalf("original sender mismatch: got %v want %v", got.Relay.OriginalSender(), sender)
	}
}

func TestSendFailsWhenRouteDown(t *testing.T) {
	bridge := xporttest.NewBridge("cluster-b", "site-b", nil)
	r := New("site-b", bridge)
	r.SetStatus(StatusDown)

	err := r.Send(address.NewSiteMaster("site-c"), nil, &wire.Message{})
	if err == nil {
		t.Fatal("expected error sending over a down route")
	}
}

func TestSendVisitedPropagatesVisitedSet(t *testing.T) {
	var got *wire.Message
	bridge := xporttest.NewBridge("cluster-b", "site-b", func(_ address.Addr, msg *wire.Message) {
		got = msg
	})
	r := New("site-b", bridge)

	err := r.SendVisited(nil, nil, &wire.Message{}, []string{"site-a", "site-b"})
	if err != nil {
		t.Fatalf("SendVisited failed: %v", err)
	}
	visited := got.Relay.VisitedSet()
	if _, ok := visited["site-a"]; !ok {
		t.Fatal("expected site-a in visited set")
	}
	if _, ok := visited["site-b"]; !ok {
		t.Fatal("expected site-b in visited set")
	}
}
