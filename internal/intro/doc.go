// Package intro implements the intake form that gates free-form chat.
//
// # Overview
//
// An Engine moves through three states:
//
//	NotStarted -> Active -> Complete
//
// Begin decides whether the visitor still has to answer: a conversation the
// backend already reports as intro-completed, or a widget with no configured
// questions, goes straight to Complete. While Active, all questions are shown
// as a single form and Submit validates every field at once. A valid
// submission moves the engine to Complete and yields the derived ContactInfo.
//
// Field kinds (name, email, phone, reason) are detected from the question
// type and from keywords in its id and prompt, so widget owners do not need
// to tag questions explicitly.
package intro
