// Package msgsync polls the backend for agent and system messages while a
// human handoff is active.
//
// # Overview
//
// Bot replies arrive synchronously as answers to sent messages, so polling
// only matters once a live agent owns the conversation. The Engine ticks on a
// Backoff ladder: each poll that finds nothing new slows the cadence by one
// step, any new message snaps it back to the fastest step, and a run of empty
// polls at the slowest step stops the timer. Resume restarts it.
//
// Rendering is idempotent by message id: the engine consults a shared
// dedupe.Cache before handing a message to its Handler.
package msgsync
