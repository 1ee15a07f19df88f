package attendance

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"presence/internal/ledger"
	"presence/internal/metrics"
	"presence/internal/model"
)

// Caller identifies who is marking attendance.
type Caller struct {
	UserID string
	Role   string
	Wallet string
}

// MarkRequest is one attendance observation. Ledger is optional; when set
// and the caller's wallet is authorized the record is mirrored to it.
type MarkRequest struct {
	SessionID string
	StudentID string
	Status    model.AttendanceStatus
	Photo     []byte
	Method    string
	Ledger    ledger.Writer
	Caller    Caller
}

// LedgerOutcome describes the secondary write. Receipt is nil unless the
// mirror succeeded.
type LedgerOutcome struct {
	Attempted bool
	Receipt   *ledger.Receipt
	Err       error
}

// MarkResult is returned once the record is committed to the store. The
// ledger outcome never turns a committed mark into a failure.
type MarkResult struct {
	RecordID string
	Record   model.AttendanceRecord
	Ledger   LedgerOutcome
}

// LedgerResult returns the ledger receipt, or nil when the mirror was
// skipped or failed.
func (r MarkResult) LedgerResult() *ledger.Receipt {
	return r.Ledger.Receipt
}

// MarkAttendance appends one attendance record. Repeated marks for the same
// student append further records.
func (s *Service) MarkAttendance(ctx context.Context, req MarkRequest) (MarkResult, error) {
	if req.SessionID == "" || req.StudentID == "" {
		return MarkResult{}, validationError(errors.New("session and student id required"))
	}
	if !req.Status.Valid() {
		return MarkResult{}, validationError(fmt.Errorf("unknown attendance status %q", req.Status))
	}
	sess, err := s.GetSession(ctx, req.SessionID)
	if err != nil {
		return MarkResult{}, err
	}
	if sess.Status != model.SessionActive {
		return MarkResult{}, fmt.Errorf("mark attendance in %s session: %w", sess.Status, ErrInvalidState)
	}

	rec := model.AttendanceRecord{
		SessionID: req.SessionID,
		StudentID: req.StudentID,
		Status:    req.Status,
		Timestamp: s.now(),
		PhotoHash: PhotoHash(req.Photo),
		Method:    req.Method,
	}
	if rec.Method == "" {
		rec.Method = model.MethodManual
		if len(req.Photo) > 0 {
			rec.Method = model.MethodFaceRecognition
		}
	}

	id, err := s.records.Create(ctx, rec)
	if err != nil {
		return MarkResult{}, storeError("insert attendance record", err)
	}
	rec.ID = id
	s.metrics.AttendanceMarked(string(rec.Status))
	log := s.log.With(zap.String("session_id", rec.SessionID), zap.String("record_id", id))

	res := MarkResult{RecordID: id, Record: rec}
	res.Ledger = s.mirror(ctx, req, &res.Record, log)
	s.bumpCounter(ctx, rec.SessionID, rec.Status, log)

	log.Info("attendance marked",
		zap.String("student_id", rec.StudentID),
		zap.String("status", string(rec.Status)),
		zap.Bool("ledger", res.Ledger.Receipt != nil))
	return res, nil
}

func (s *Service) mirror(ctx context.Context, req MarkRequest, rec *model.AttendanceRecord, log *zap.Logger) LedgerOutcome {
	if req.Ledger == nil {
		return LedgerOutcome{}
	}
	if !req.Ledger.Authorized(req.Caller.Wallet) {
		s.metrics.LedgerMirror(metrics.LedgerUnauthorized)
		log.Debug("ledger mirror skipped: wallet not authorized", zap.String("wallet", req.Caller.Wallet))
		return LedgerOutcome{}
	}

	receipt, err := req.Ledger.AddAttendanceRecord(ctx, ledger.Entry{
		StudentID: rec.StudentID,
		SessionID: rec.SessionID,
		Timestamp: rec.Timestamp,
		Status:    string(rec.Status),
		PhotoHash: rec.PhotoHash,
	})
	if err != nil {
		s.metrics.LedgerMirror(metrics.LedgerFailed)
		log.Warn("ledger mirror failed; record kept", zap.Error(err))
		return LedgerOutcome{Attempted: true, Err: err}
	}
	s.metrics.LedgerMirror(metrics.LedgerOK)

	if err := s.records.Update(ctx, rec.ID, map[string]any{"ledgerTxId": receipt.TransactionID}); err != nil {
		log.Warn("store ledger transaction id", zap.Error(err))
	} else {
		rec.LedgerTxID = receipt.TransactionID
	}
	return LedgerOutcome{Attempted: true, Receipt: &receipt}
}

// bumpCounter is a read-then-write increment. Concurrent marks can lose
// updates; SessionStats recomputes from records.
func (s *Service) bumpCounter(ctx context.Context, sessionID string, status model.AttendanceStatus, log *zap.Logger) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		log.Warn("reload session for counter", zap.Error(err))
		return
	}
	patch := map[string]any{"updatedAt": s.now()}
	switch status {
	case model.StatusPresent:
		patch["presentCount"] = sess.PresentCount + 1
	case model.StatusAbsent:
		patch["absentCount"] = sess.AbsentCount + 1
	}
	if err := s.sessions.Update(ctx, sessionID, patch); err != nil {
		log.Warn("update session counter", zap.String("status", string(status)), zap.Error(err))
	}
}
