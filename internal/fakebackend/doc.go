// Package fakebackend is an in-memory implementation of the widget backend
// REST contract, used by tests (through httptest) and by cmd/fake-backend for
// local development. It does no language matching: bot replies come from a
// pluggable Responder, and conversation inactivity is driven by an
// injectable clock.
package fakebackend
