// Package agent defines agent identities and the registry that binds them.
//
// Invariants:
// - Definitions are immutable once registered.
// - Agents reference each other by id only; the handoff graph is validated
//   at load time.
// - Instructions may be static text or a per-session function.
package agent
