package attendance

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"presence/internal/ledger"
	"presence/internal/model"
	"presence/internal/store"
)

// SessionAttendance is everything recorded for one session.
type SessionAttendance struct {
	Records []model.AttendanceRecord `json:"records"`
	Ledger  []ledger.Record          `json:"ledger"`
}

// SessionStats is a session merged with counts recomputed from its
// records.
type SessionStats struct {
	SessionID      string              `json:"sessionId"`
	SessionName    string              `json:"sessionName"`
	Status         model.SessionStatus `json:"status"`
	TotalStudents  int                 `json:"totalStudents"`
	PresentCount   int                 `json:"presentCount"`
	AbsentCount    int                 `json:"absentCount"`
	LateCount      int                 `json:"lateCount"`
	AttendanceRate float64             `json:"attendanceRate"`
	TotalRecords   int                 `json:"totalRecords"`
	LedgerRecords  int                 `json:"ledgerRecords"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
	ClosedAt       *time.Time          `json:"closedAt,omitempty"`
}

// Dashboard periods.
const (
	PeriodToday = "today"
	PeriodWeek  = "week"
	PeriodAll   = "all"
)

const (
	dashboardAllLimit = 100
	dashboardRecent   = 10
)

// DashboardView is the overview across all sessions for one period.
type DashboardView struct {
	Period         string                   `json:"period"`
	TotalStudents  int                      `json:"totalStudents"`
	PresentCount   int                      `json:"presentCount"`
	AbsentCount    int                      `json:"absentCount"`
	AttendanceRate int                      `json:"attendanceRate"`
	Recent         []model.AttendanceRecord `json:"recent"`
}

// SessionAttendance lists a session's records oldest first. When r is set
// the ledger's copies are included; ledger failures leave that list empty.
func (s *Service) SessionAttendance(ctx context.Context, sessionID string, r ledger.Reader) (SessionAttendance, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return SessionAttendance{}, err
	}
	return s.attendance(ctx, sessionID, r)
}

func (s *Service) attendance(ctx context.Context, sessionID string, r ledger.Reader) (SessionAttendance, error) {
	recs, err := s.records.Find(ctx, store.Query{Where: []store.Filter{store.Eq("sessionId", sessionID)}})
	if err != nil {
		return SessionAttendance{}, storeError("list attendance", err)
	}
	out := SessionAttendance{Records: recs, Ledger: []ledger.Record{}}
	if r == nil {
		return out, nil
	}
	mirrored, err := r.RecordsBySession(ctx, sessionID)
	if err != nil {
		s.log.Warn("read ledger records", zap.String("session_id", sessionID), zap.Error(err))
		return out, nil
	}
	if mirrored != nil {
		out.Ledger = mirrored
	}
	return out, nil
}

// SessionStats recomputes a session's counts from its attendance records.
// The stored counters are not consulted.
func (s *Service) SessionStats(ctx context.Context, sessionID string, r ledger.Reader) (SessionStats, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return SessionStats{}, err
	}
	att, err := s.attendance(ctx, sessionID, r)
	if err != nil {
		return SessionStats{}, err
	}

	st := SessionStats{
		SessionID:     sess.ID,
		SessionName:   sess.Name,
		Status:        sess.Status,
		TotalStudents: sess.TotalStudents,
		TotalRecords:  len(att.Records),
		LedgerRecords: len(att.Ledger),
		CreatedAt:     sess.CreatedAt,
		UpdatedAt:     sess.UpdatedAt,
		ClosedAt:      sess.ClosedAt,
	}
	for _, rec := range att.Records {
		switch rec.Status {
		case model.StatusPresent:
			st.PresentCount++
		case model.StatusAbsent:
			st.AbsentCount++
		case model.StatusLate:
			st.LateCount++
		}
	}
	if st.TotalStudents > 0 {
		rate := float64(st.PresentCount) / float64(st.TotalStudents) * 100
		st.AttendanceRate = math.Round(rate*100) / 100
	}
	return st, nil
}

// Dashboard summarizes attendance across sessions. "today" starts at UTC
// midnight, "week" covers the last seven days, "all" takes the newest
// records only.
func (s *Service) Dashboard(ctx context.Context, period string) (DashboardView, error) {
	q := store.Query{Newest: true}
	now := s.now().UTC()
	switch period {
	case "", PeriodToday:
		period = PeriodToday
		q.Since = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	case PeriodWeek:
		q.Since = now.AddDate(0, 0, -7)
	case PeriodAll:
		q.Limit = dashboardAllLimit
	default:
		return DashboardView{}, validationError(fmt.Errorf("unknown period %q", period))
	}

	students, err := s.students.Find(ctx, store.Query{})
	if err != nil {
		return DashboardView{}, storeError("count students", err)
	}
	recs, err := s.records.Find(ctx, q)
	if err != nil {
		return DashboardView{}, storeError("list attendance", err)
	}

	v := DashboardView{Period: period, TotalStudents: len(students)}
	for _, rec := range recs {
		switch rec.Status {
		case model.StatusPresent:
			v.PresentCount++
		case model.StatusAbsent:
			v.AbsentCount++
		}
	}
	if v.TotalStudents > 0 {
		v.AttendanceRate = int(math.Round(float64(v.PresentCount) / float64(v.TotalStudents) * 100))
	}
	if len(recs) > dashboardRecent {
		recs = recs[:dashboardRecent]
	}
	v.Recent = recs
	return v, nil
}
