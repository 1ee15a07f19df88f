package httpapi

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"presence/internal/attendance"
	"presence/internal/ledger"
	"presence/internal/model"
	"presence/internal/queue"
	"presence/internal/statscache"
)

type markResponse struct {
	RecordID     string                 `json:"recordId"`
	Record       model.AttendanceRecord `json:"record"`
	LedgerResult *ledger.Receipt        `json:"ledgerResult"`
	LedgerError  string                 `json:"ledgerError,omitempty"`
}

func (a *API) markAttendance(c *gin.Context) {
	var req struct {
		StudentID string                 `json:"studentId" binding:"required"`
		Status    model.AttendanceStatus `json:"status" binding:"required"`
		Photo     string                 `json:"photo"`
		Method    string                 `json:"method"`
	}
	if !bindJSON(c, &req) {
		return
	}
	photo, err := decodeImage(req.Photo)
	if err != nil {
		imageError(c, err, "photo must be base64")
		return
	}

	mr := attendance.MarkRequest{
		SessionID: c.Param("id"),
		StudentID: req.StudentID,
		Status:    req.Status,
		Photo:     photo,
		Method:    req.Method,
		Caller:    caller(c),
	}
	if a.Ledger != nil {
		mr.Ledger = a.Ledger
	}
	res, err := a.Attendance.MarkAttendance(c.Request.Context(), mr)
	if err != nil {
		a.fail(c, err)
		return
	}

	a.publish(c.Request.Context(), queue.TypeAttendanceMarked, queue.SessionEvent{
		SessionID: res.Record.SessionID,
		StudentID: res.Record.StudentID,
		Status:    string(res.Record.Status),
		At:        res.Record.Timestamp,
	})

	out := markResponse{RecordID: res.RecordID, Record: res.Record, LedgerResult: res.LedgerResult()}
	if res.Ledger.Err != nil {
		out.LedgerError = "ledger unavailable"
	}
	c.JSON(http.StatusCreated, out)
}

func (a *API) sessionAttendance(c *gin.Context) {
	att, err := a.Attendance.SessionAttendance(c.Request.Context(), c.Param("id"), a.ledgerReader())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, att)
}

func (a *API) sessionStats(c *gin.Context) {
	stats, err := a.Attendance.SessionStats(c.Request.Context(), c.Param("id"), a.ledgerReader())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (a *API) statsSnapshot(c *gin.Context) {
	if a.Snapshots == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stats snapshots not configured"})
		return
	}
	snap, err := a.Snapshots.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, statscache.ErrMiss) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (a *API) ledgerReader() ledger.Reader {
	if a.Ledger == nil {
		return nil
	}
	return a.Ledger
}

var errPhotoTooLarge = errors.New("photo too large")

// decodeImage accepts bare base64 or a data URL. Empty input yields nil.
// Images over maxPhotoBytes fail with errPhotoTooLarge.
func decodeImage(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	s = stripDataURL(s)
	if base64.StdEncoding.DecodedLen(len(s)) > maxPhotoBytes+2 {
		return nil, errPhotoTooLarge
	}
	img, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(img) > maxPhotoBytes {
		return nil, errPhotoTooLarge
	}
	return img, nil
}

func stripDataURL(s string) string {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			return s[i+1:]
		}
	}
	return s
}
