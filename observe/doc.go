// Package observe provides observability primitives for the result cache.
//
// It is a pure instrumentation library: structured logging, OpenTelemetry
// metrics and spans around producer invocations, and best-effort error
// reporting to Sentry. It performs no I/O beyond exporter setup; the cache
// package wires it around every computation it runs.
//
// Nothing is logged on the cache-hit path. Producer arguments, keyword
// arguments and payloads are redacted from log output.
package observe
