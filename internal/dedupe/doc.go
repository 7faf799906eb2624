// Package dedupe tracks which message ids have already been shown so that
// repeated polls over overlapping windows never render a message twice.
//
// # Overview
//
// A Set is shared by everything that renders backend messages: history
// loading on adopt, the bot reply to a send, and the agent poller. Whoever
// claims an id first renders it; everyone else skips it. The widget clears
// the set when it clears the visible history after an expiry.
//
// Sets are bounded (DefaultLimit unless WithLimit says otherwise) and own no
// goroutines, so there is nothing to close.
package dedupe
