// ABOUTME: Periodic inactivity check for the adopted conversation
// ABOUTME: One warning per threshold crossing; expiry side effects exactly once

package widget

import (
	"github.com/2389/coven-widget/internal/backend"
	"github.com/2389/coven-widget/internal/present"
)

// startMonitorLocked schedules the inactivity check unless it is running.
// Callers hold s.mu.
func (s *Session) startMonitorLocked() {
	if s.monitor.Active() || s.shutdown {
		return
	}
	s.monitor = s.tasks.Every("lifecycle.inactivity", s.cfg.Lifecycle.InactivityCheck, s.checkInactivity)
}

// stopMonitorLocked cancels the inactivity check. Callers hold s.mu.
func (s *Session) stopMonitorLocked() {
	s.monitor.Cancel()
	s.monitor = nil
}

func (s *Session) checkInactivity() {
	s.mu.Lock()
	id := s.convID
	if s.convExpired || id == "" {
		s.stopMonitorLocked()
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	report, err := s.backend.Status(s.ctx, id)
	if err != nil {
		s.logger.Warn("inactivity check failed", "conversation_id", id, "error", err)
		return
	}

	if report.IsExpired || report.Status == backend.StatusExpired {
		s.expire(s.ctx, id, report.VisitorEmail)
		return
	}

	s.mu.Lock()
	if s.convID != id {
		s.mu.Unlock()
		return
	}
	if report.VisitorEmail != "" {
		s.visitorEmail = report.VisitorEmail
	}
	warn := report.IsWarningThreshold && !s.warned
	// Activity since the last warning re-arms it.
	s.warned = report.IsWarningThreshold
	s.mu.Unlock()

	if warn {
		s.logger.Info("conversation nearing inactivity timeout",
			"conversation_id", id, "minutes_inactive", report.MinutesInactive)
		s.notice(present.Warning, "Are you still there? This conversation will close soon due to inactivity.")
	}
}
