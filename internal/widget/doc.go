// Package widget is the session engine behind one embedded chat widget.
//
// # Overview
//
// A Session owns everything one widget instance knows: the visitor and tab
// ids, the current conversation id, the intake flow, the poller, the handover
// coordinator and every timer. Hosts drive it through explicit commands
// (Open, Minimize, Send, SubmitIntro, AnswerReopen, Close, ...) and observe it
// through a present.Presenter.
//
// # Conversation resolution
//
// EnsureConversation resolves the conversation in priority order:
//
//  1. an id already held in memory
//  2. an active conversation the backend knows for this visitor
//  3. an expired remembered conversation runs the expiry side effects
//  4. the id cached in durable storage, unless this tab closed it:
//     active is adopted, closed becomes a reopen candidate and the visitor
//     is prompted
//  5. a new conversation, seeded with any contact info already collected
//
// Concurrent callers share a single resolution.
//
// # Expiry
//
// When a conversation expires the visible history is cleared and the durable
// pointer removed, but the in-memory id and completed intake answers are kept
// so the visitor is not asked the intake questions again.
//
// # Timers
//
// The inactivity monitor, the message poller and the delayed handover
// confirmation all run on the session's tasks.Group. Minimize and Close stop
// the monitor and poller; Shutdown stops everything and waits for running
// callbacks.
package widget
