package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"presence/internal/attendance"
	"presence/internal/model"
	"presence/internal/queue"
)

func (a *API) listSessions(c *gin.Context) {
	activeOnly, _ := strconv.ParseBool(c.Query("active"))
	list, err := a.Attendance.ListSessions(c.Request.Context(), attendance.SessionFilter{ActiveOnly: activeOnly})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": list})
}

func (a *API) createSession(c *gin.Context) {
	var req attendance.SessionInput
	if !bindJSON(c, &req) {
		return
	}
	sess, err := a.Attendance.CreateSession(c.Request.Context(), req)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (a *API) getSession(c *gin.Context) {
	sess, err := a.Attendance.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (a *API) closeSession(c *gin.Context) {
	sess, err := a.Attendance.CloseSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	a.publish(c.Request.Context(), queue.TypeSessionClosed, queue.SessionEvent{SessionID: sess.ID, At: sess.UpdatedAt})
	c.JSON(http.StatusOK, sess)
}

func (a *API) setSessionStatus(c *gin.Context) {
	var req struct {
		Status model.SessionStatus `json:"status" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	sess, err := a.Attendance.SetSessionStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		a.fail(c, err)
		return
	}
	if sess.Status == model.SessionClosed {
		a.publish(c.Request.Context(), queue.TypeSessionClosed, queue.SessionEvent{SessionID: sess.ID, At: sess.UpdatedAt})
	}
	c.JSON(http.StatusOK, sess)
}

func (a *API) listSessionStudents(c *gin.Context) {
	list, err := a.Attendance.ListSessionStudents(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": list})
}

func (a *API) addSessionStudent(c *gin.Context) {
	var req struct {
		StudentID string `json:"studentId" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	member, err := a.Attendance.AddStudentToSession(c.Request.Context(), c.Param("id"), req.StudentID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, member)
}

func (a *API) removeSessionStudent(c *gin.Context) {
	if err := a.Attendance.RemoveStudentFromSession(c.Request.Context(), c.Param("id"), c.Param("studentId")); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
