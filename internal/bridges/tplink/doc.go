// Package tplink implements the TP-Link smart plug and power strip bridge for Gray Logic.
//
// The bridge keeps an in-memory mirror of every configured plug and strip,
// refreshes it on a fixed poll interval, and routes on/off commands to the
// right device handle before reconciling the mirror again.
//
// # Architecture
//
//	┌─────────────────┐   MQTT   ┌──────────────────────────────┐   Dialer
//	│   Gray Logic    │◄────────►│ Bridge ─ Dispatcher ─ Poller │◄────────► Plugs / Strips
//	│      Core       │          │     Dataset ─ Materializer   │
//	└─────────────────┘          └──────────────────────────────┘
//
// # Components
//
//   - HandleRegistry: live device handles keyed by normalized device id
//   - Reader: turns a handle into a PlugRecord or StripRecord
//   - Dataset: canonical last-known state with sparse per-id replace
//   - Poller: the reconciliation loop (strips first, then standalone plugs)
//   - Dispatcher: on/off commands followed by an immediate reconcile
//   - Materializer: creates one endpoint per plug, idempotently
//
// # Identifiers
//
// Device ids are hardware addresses with ":" separators removed. A strip
// outlet reports "<strip id>_<n>" and is stored under the short id after
// the first "_", so an outlet addressed through its strip and one addressed
// directly resolve to the same record.
//
// # Failure Policy
//
// Device calls carry their own timeout. A failure talking to one device is
// logged and that device is skipped for the pass; it never stops the
// reconciliation of other devices. Only ErrLoopFatal escapes the poll loop.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package tplink
