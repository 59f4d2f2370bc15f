/*
Package poseidon is a server framework: a netcore-backed TCP/TLS/HTTP
listener, WebSocket and SSE endpoints, a dependency-lifetime-gated
servlet dispatch registry, and an async persistence daemon that
batches object saves/loads against a relational store with an optional
local spool and S3 backup.

Quick Start

Basic usage example:

package main

import (
    "github.com/poseidon/poseidon/app"
    "github.com/poseidon/poseidon/config"
    corehttp "github.com/poseidon/poseidon/core/http"
    "github.com/poseidon/poseidon/httpserver"
)

func main() {
    cfg, mgr, err := config.Bootstrap("")
    if err != nil {
        panic(err)
    }

    mux := httpserver.NewMux()
    mux.RegisterServletAlways("GET", "/hello", func(ctx any) {
        ctx.(corehttp.Context).Success(map[string]string{"message": "hello"})
    })

    a, err := app.New(cfg, mgr, mux)
    if err != nil {
        panic(err)
    }
    a.Run()
}

Modules

The framework is organized into several packages:

  - app: process lifecycle — wiring, startup, signal-driven shutdown
  - config: layered configuration (flags, env, YAML) and live-reload watchers
  - netcore: the non-blocking TCP/TLS socket core (epoll/kqueue pump)
  - httpserver: HTTP/1.1 framing and WebSocket/SSE upgrade bridging over netcore
  - core/http: low-allocation request parsing and the Context response API
  - core/router: radix-tree path routing with named and wildcard params
  - core/websocket: WebSocket framing and hub/room broadcast (the upgrade
    handshake is built in httpserver)
  - core/sse: Server-Sent Events broker and stream
  - core/pools: worker pool and GC tuning
  - core/observability: per-handler request timing and bottleneck detection
  - servlet: dependency-lifetime-gated handler registry
  - persistence: async object save/load daemon with spool and S3 backup
  - logging: structured logging over zap
*/
package poseidon
