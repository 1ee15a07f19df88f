package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"presence/internal/model"
	"presence/internal/store"
)

// SessionInput is the data needed to open a session.
type SessionInput struct {
	Name        string `json:"name"`
	Course      string `json:"course"`
	Instructor  string `json:"instructor"`
	Description string `json:"description"`
	MaxStudents int    `json:"maxStudents"`
}

// SessionFilter narrows ListSessions.
type SessionFilter struct {
	ActiveOnly bool
}

// CreateSession opens a new active session with zeroed counters. Names
// need not be unique.
func (s *Service) CreateSession(ctx context.Context, in SessionInput) (model.Session, error) {
	now := s.now()
	sess := model.Session{
		Name:        strings.TrimSpace(in.Name),
		Course:      strings.TrimSpace(in.Course),
		Instructor:  strings.TrimSpace(in.Instructor),
		Description: in.Description,
		MaxStudents: in.MaxStudents,
		Status:      model.SessionActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if sess.MaxStudents == 0 {
		sess.MaxStudents = model.DefaultMaxStudents
	}
	if err := model.Validate(sess); err != nil {
		return model.Session{}, validationError(err)
	}

	id, err := s.sessions.Create(ctx, sess)
	if err != nil {
		return model.Session{}, storeError("create session", err)
	}
	sess.ID = id
	s.log.Info("session created", zap.String("session_id", id), zap.String("name", sess.Name))
	return sess, nil
}

// ListSessions returns sessions newest first.
func (s *Service) ListSessions(ctx context.Context, f SessionFilter) ([]model.Session, error) {
	q := store.Query{Newest: true}
	if f.ActiveOnly {
		q.Where = append(q.Where, store.Eq("status", string(model.SessionActive)))
	}
	out, err := s.sessions.Find(ctx, q)
	if err != nil {
		return nil, storeError("list sessions", err)
	}
	return out, nil
}

// GetSession loads one session.
func (s *Service) GetSession(ctx context.Context, id string) (model.Session, error) {
	if id == "" {
		return model.Session{}, validationError(errors.New("session id required"))
	}
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return model.Session{}, storeError("get session "+id, err)
	}
	return sess, nil
}

// CloseSession moves a session to closed. Closing twice succeeds and
// re-stamps closedAt.
func (s *Service) CloseSession(ctx context.Context, id string) (model.Session, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return model.Session{}, err
	}
	now := s.now()
	err = s.sessions.Update(ctx, id, map[string]any{
		"status":    model.SessionClosed,
		"closedAt":  now,
		"updatedAt": now,
	})
	if err != nil {
		return model.Session{}, storeError("close session "+id, err)
	}
	sess.Status = model.SessionClosed
	sess.ClosedAt = &now
	sess.UpdatedAt = now
	s.log.Info("session closed", zap.String("session_id", id))
	return sess, nil
}

// SetSessionStatus moves a session between active and paused. Closed is
// terminal.
func (s *Service) SetSessionStatus(ctx context.Context, id string, status model.SessionStatus) (model.Session, error) {
	if !status.Valid() {
		return model.Session{}, validationError(fmt.Errorf("unknown session status %q", status))
	}
	if status == model.SessionClosed {
		return s.CloseSession(ctx, id)
	}
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return model.Session{}, err
	}
	if sess.Status == model.SessionClosed {
		return model.Session{}, fmt.Errorf("session %s is closed: %w", id, ErrInvalidState)
	}
	now := s.now()
	if err := s.sessions.Update(ctx, id, map[string]any{"status": status, "updatedAt": now}); err != nil {
		return model.Session{}, storeError("update session "+id, err)
	}
	sess.Status = status
	sess.UpdatedAt = now
	return sess, nil
}

// AddStudentToSession puts a student on an active session's roster and
// bumps totalStudents.
func (s *Service) AddStudentToSession(ctx context.Context, sessionID, studentID string) (model.SessionStudent, error) {
	if studentID == "" {
		return model.SessionStudent{}, validationError(errors.New("student id required"))
	}
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return model.SessionStudent{}, err
	}
	if sess.Status != model.SessionActive {
		return model.SessionStudent{}, fmt.Errorf("add student to %s session: %w", sess.Status, ErrInvalidState)
	}
	st, err := s.students.Get(ctx, studentID)
	if err != nil {
		return model.SessionStudent{}, storeError("get student "+studentID, err)
	}

	member := model.SessionStudent{
		SessionID:  sessionID,
		StudentID:  studentID,
		FullName:   st.FullName,
		RollNumber: st.RollNumber,
		Class:      st.Class,
		AddedAt:    s.now(),
	}
	id, err := s.roster.Create(ctx, member)
	if err != nil {
		return model.SessionStudent{}, storeError("add roster entry", err)
	}
	member.ID = id

	err = s.sessions.Update(ctx, sessionID, map[string]any{
		"totalStudents": sess.TotalStudents + 1,
		"updatedAt":     member.AddedAt,
	})
	if err != nil {
		return model.SessionStudent{}, storeError("update session "+sessionID, err)
	}
	return member, nil
}

// RemoveStudentFromSession drops every roster entry for the pair. It works
// on any session status and leaves totalStudents unchanged.
func (s *Service) RemoveStudentFromSession(ctx context.Context, sessionID, studentID string) error {
	if sessionID == "" || studentID == "" {
		return validationError(errors.New("session and student id required"))
	}
	members, err := s.roster.Find(ctx, store.Query{Where: []store.Filter{
		store.Eq("sessionId", sessionID),
		store.Eq("studentId", studentID),
	}})
	if err != nil {
		return storeError("find roster entry", err)
	}
	if len(members) == 0 {
		return fmt.Errorf("student %s not on session %s: %w", studentID, sessionID, ErrNotFound)
	}
	for _, m := range members {
		if err := s.roster.Delete(ctx, m.ID); err != nil {
			return storeError("delete roster entry", err)
		}
	}
	return nil
}

// ListSessionStudents returns the roster in the order students were added.
func (s *Service) ListSessionStudents(ctx context.Context, sessionID string) ([]model.SessionStudent, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	out, err := s.roster.Find(ctx, store.Query{Where: []store.Filter{store.Eq("sessionId", sessionID)}})
	if err != nil {
		return nil, storeError("list roster", err)
	}
	return out, nil
}
