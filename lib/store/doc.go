// Package store defines the capability contract for key-value state backends
// together with a unified error reporting scheme. It is the abstraction every
// other part of the application programs against: HTTP handlers, the backend
// selector and the telemetry layer all operate on the Backend interface and
// never on a concrete implementation.
//
// The package focuses on:
//   - A unified interface (Backend) for get/set/delete operations across
//     different backends
//   - A structured error system using typed return codes, so callers can
//     distinguish "backend not reachable" from "backend reported a fault"
//     without string matching
//   - The BackendKind enumeration identifying which implementation is
//     currently serving traffic
//
// Key Components:
//
//   - Backend Interface: The core abstraction defining operations for
//     interacting with a state backend. Absence of a key is a normal result
//     reported through Get's boolean return value, never an error.
//
//   - Prober Interface: An optional capability for backends that support a
//     lightweight reachability check, used by the selector to drive backend
//     selection and readiness reporting.
//
//   - Error System: All backend failures are reported as *Error values
//     carrying a RetCode. RetCUnavailable marks transport-level failures
//     (connection refused, timeout) and demotes the backend immediately;
//     RetCBackendError marks faults reported by the backend itself and only
//     demotes after a run of consecutive occurrences.
//
// Implementations:
//
//	The package includes two implementations of the Backend interface:
//
//	- In-memory backend (memstore): A concurrent in-process map. It is always
//	  constructible and never fails for reachability reasons, guaranteeing
//	  the process always has a working backend.
//	  Available in the "github.com/miguelmartens/sidekv/lib/store/memstore"
//	  package.
//
//	- Sidecar backend (sidecar): Routes operations to a local out-of-process
//	  agent over its HTTP state API, scoped to a named logical store.
//	  Available in the "github.com/miguelmartens/sidekv/lib/store/sidecar"
//	  package.
package store
