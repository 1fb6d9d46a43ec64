// Package admin serves the relay's management surface over HTTP, using
// fasthttp as the teacher does for its low-overhead internal endpoints:
// routing table and topology dumps, and a suppress-cache/stats reset
// operation (spec.md §6 "no stable wire format is contracted").
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package admin

import (
	"github.com/valyala/fasthttp"

	"github.com/xsite-relay/xsite/cmn/nlog"
	"github.com/xsite-relay/xsite/relay"
	"github.com/xsite-relay/xsite/stats"
	"github.com/xsite-relay/xsite/suppress"
	"github.com/xsite-relay/xsite/topology"
)

// Server exposes the relay's management endpoints. It reads live state
// from the Core and friends on every request; there is nothing to
// serialize to disk.
type Server struct {
	core     *relay.Core
	topo     *topology.Topology
	suppress *suppress.Log
	exporter *stats.Exporter

	addr string
	srv  *fasthttp.Server
}

// New builds an admin Server bound to addr (e.g. ":8901"). topo and
// suppressLog may be nil if the caller does not want those endpoints to
// return live data.
func New(addr string, core *relay.Core, topo *topology.Topology, suppressLog *suppress.Log, exporter *stats.Exporter) *Server {
	s := &Server{core: core, topo: topo, suppress: suppressLog, exporter: exporter, addr: addr}
	s.srv = &fasthttp.Server{Handler: s.handle, Name: "xsite-admin"}
	return s
}

// ListenAndServe blocks serving the admin surface until the listener
// fails or is closed.
func (s *Server) ListenAndServe() error {
	nlog.Infof("admin: listening on %s", s.addr)
	return s.srv.ListenAndServe(s.addr)
}

// Shutdown stops accepting new connections and waits for in-flight ones.
func (s *Server) Shutdown() error { return s.srv.Shutdown() }

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/routes":
		s.handleRoutes(ctx)
	case "/topology":
		s.handleTopology(ctx)
	case "/stats":
		s.handleStats(ctx)
	case "/suppress/reset":
		s.handleSuppressReset(ctx)
	case "/healthz":
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok\n")
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func (s *Server) handleRoutes(ctx *fasthttp.RequestCtx) {
	rl := s.core.CurrentRelayer()
	if rl == nil {
		ctx.SetBodyString("this node is not currently a site master\n")
		return
	}
	ctx.SetBodyString(rl.PrintRoutes())
}

func (s *Server) handleTopology(ctx *fasthttp.RequestCtx) {
	if s.topo == nil {
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		return
	}
	site := string(ctx.QueryArgs().Peek("site"))
	ctx.SetBodyString(s.topo.Print(site))
}

func (s *Server) handleStats(ctx *fasthttp.RequestCtx) {
	if s.exporter != nil {
		s.exporter.Collect()
	}
	ctx.SetContentType("text/plain; charset=utf-8")
	ctx.SetBodyString(s.core.Stats.String())
}

func (s *Server) handleSuppressReset(ctx *fasthttp.RequestCtx) {
	if !ctx.IsPost() {
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
		return
	}
	if s.suppress != nil {
		s.suppress.Reset()
	}
	ctx.SetBodyString("ok\n")
}
