// Package selector owns the choice between the sidecar-routed backend and
// the in-memory fallback, and drives the liveness/readiness signals derived
// from that choice.
//
// The package focuses on:
//   - A single indirection point over the two backend implementations: there
//     are exactly two kinds and no runtime plugin loading, so selection is a
//     fixed enumeration, not open-ended dispatch
//   - A health state machine over {Starting, Ready, Degraded} updated exactly
//     once per probe cycle
//   - Transparent fallback: a sidecar transport failure demotes immediately
//     and the same logical operation is replayed against the in-memory
//     backend, so callers observe success via fallback instead of an error
//
// Key Components:
//
//   - Selector: The explicitly owned, injectable context object shared by all
//     request handlers. The active backend kind is a single atomic value read
//     on every request without locks; it is written only by the health
//     monitor and by demotions.
//
//   - Health Monitor: A background goroutine re-probing the sidecar on a
//     fixed interval. Every operation failure against the sidecar also
//     triggers an immediate coalesced re-probe, so the selector never keeps
//     routing to a dead backend until the next tick.
//
//   - Outcome: Each operation reports whether it was served by the active
//     backend, served by the fallback, or failed. The HTTP facade collapses
//     this to plain success/failure; which backend served a request is an
//     internal and telemetry concern only.
//
// Liveness is independent of the external store: only the guaranteed
// in-memory fallback failing an operation (impossible by construction)
// flags the process as faulted.
package selector
