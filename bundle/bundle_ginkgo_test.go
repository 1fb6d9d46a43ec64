package bundle_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/xsite-relay/xsite/address"
	"github.com/xsite-relay/xsite/bundle"
	"github.com/xsite-relay/xsite/wire"
	"github.com/xsite-relay/xsite/xport/xporttest"
)

var _ = Describe("Bundler", func() {
	var (
		local address.LocalAddress
		tr    *xporttest.Transport
		b     *bundle.Bundler
	)

	BeforeEach(func() {
		local = address.NewLocalAddress("local")
		tr = xporttest.NewTransport(local)
		tr.SeparateThread = false
		b = bundle.New(tr, bundle.Config{
			MaxSize:          1 << 20,
			Capacity:         1 << 20,
			ProcessLoopbacks: true,
		})
	})

	When("a single message is queued for a remote destination", func() {
		It("is not sent until Flush is called", func() {
			dest := address.NewLocalAddress("remote")
			Expect(b.Send(&wire.Message{Dest: dest, Payload: []byte("hi")})).To(Succeed())
			Expect(tr.SentCount()).To(Equal(0))

			b.Flush()
			Expect(tr.SentCount()).To(Equal(1))
		})
	})

	When("multiple messages target the same destination", func() {
		It("bundles them into a single send on Flush", func() {
			dest := address.NewLocalAddress("remote")
			Expect(b.Send(&wire.Message{Dest: dest, Payload: []byte("a")})).To(Succeed())
			Expect(b.Send(&wire.Message{Dest: dest, Payload: []byte("b")})).To(Succeed())

			b.Flush()
			Expect(tr.SentCount()).To(Equal(1))
		})
	})

	When("a message is addressed to the local node", func() {
		It("is also handed to the loopback path", func() {
			Expect(b.Send(&wire.Message{Dest: local, Payload: []byte("self")})).To(Succeed())
			b.Flush()

			Expect(tr.Loopbacks).To(HaveLen(1))
			Expect(tr.Loopbacks[0].Msgs).To(HaveLen(1))
		})

		It("is skipped entirely when flagged DontLoopback", func() {
			Expect(b.Send(&wire.Message{Dest: local, Payload: []byte("self"), Flags: wire.DontLoopback})).To(Succeed())
			b.Flush()

			Expect(tr.Loopbacks).To(BeEmpty())
		})
	})

	When("the queue crosses the configured size threshold", func() {
		It("flushes automatically on Send", func() {
			tight := bundle.New(tr, bundle.Config{MaxSize: 4, Capacity: 1 << 20})
			dest := address.NewLocalAddress("remote")
			Expect(tight.Send(&wire.Message{Dest: dest, Payload: []byte("12345")})).To(Succeed())
			Expect(tr.SentCount()).To(Equal(1))
		})
	})
})
