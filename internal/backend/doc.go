// Package backend is the typed HTTP client for the widget REST backend.
//
// # Overview
//
// The backend stores conversations and messages, answers visitor messages
// with bot replies, and accepts live-agent handover requests. This package
// only speaks its JSON contract; it holds no state besides the HTTP client.
//
// # Endpoints
//
//	GET  /widget/{key}/config
//	POST /widget/{key}/conversation
//	GET  /widget/{key}/conversation/by-visitor/{visitorSessionId}
//	GET  /widget/{key}/conversations/{id}/status
//	GET  /widget/{key}/conversations/{id}/messages
//	POST /widget/{key}/message
//	POST /widget/{key}/intro-data
//	POST /widget/{key}/feedback
//	POST /widget/{key}/conversations/{id}/end
//	POST /widget/{key}/conversations/{id}/reopen
//	POST /widget/{key}/conversations/{id}/reactivate-or-close
//	POST /handover/request
//
// # Errors
//
// Network failures wrap ErrUnavailable. A 404 wraps ErrNotFound. Any other
// non-2xx response is returned as *APIError.
package backend
