// Package present is the widget's rendering boundary.
//
// # Overview
//
// The session engine never draws anything itself. It reports what the visitor
// should see through the Presenter interface, and a host supplies the
// implementation: Console for terminals, HTML for transcripts, Recorder for
// tests, or its own type for a page. Tee fans one session out to several.
// RenderHTML converts bot and agent markdown for hosts that render into HTML.
package present
