// Package attendance implements sessions, rosters, attendance marking and
// the statistics derived from them.
package attendance

import (
	"time"

	"go.uber.org/zap"

	"presence/internal/metrics"
	"presence/internal/model"
	"presence/internal/store"
)

// Clients are the collaborators a Service works against. Store is
// required; the rest may be left zero.
type Clients struct {
	Store   store.Backend
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Service coordinates sessions and attendance records.
type Service struct {
	students store.Collection[model.Student]
	sessions store.Collection[model.Session]
	records  store.Collection[model.AttendanceRecord]
	roster   store.Collection[model.SessionStudent]

	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService creates a service over the given clients.
func NewService(c Clients) *Service {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		students: store.NewCollection[model.Student](c.Store, model.CollStudents),
		sessions: store.NewCollection[model.Session](c.Store, model.CollSessions),
		records:  store.NewCollection[model.AttendanceRecord](c.Store, model.CollAttendance),
		roster:   store.NewCollection[model.SessionStudent](c.Store, model.CollSessionStudents),
		log:      c.Logger.Named("attendance"),
		metrics:  c.Metrics,
		now:      c.Now,
	}
}
