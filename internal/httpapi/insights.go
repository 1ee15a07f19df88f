package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"presence/internal/ledger"
	"presence/internal/vision"
)

func (a *API) analyze(c *gin.Context) {
	var req struct {
		Image string `json:"image" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	img, err := decodeImage(req.Image)
	if err != nil {
		imageError(c, err, "image must be base64")
		return
	}
	if a.Vision == nil {
		c.JSON(http.StatusOK, vision.StandIn())
		return
	}
	c.JSON(http.StatusOK, a.Vision.Analyze(c.Request.Context(), img))
}

func (a *API) compare(c *gin.Context) {
	var req struct {
		Image1 string `json:"image1" binding:"required"`
		Image2 string `json:"image2" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	img1, err := decodeImage(req.Image1)
	if err != nil {
		imageError(c, err, "images must be base64")
		return
	}
	img2, err := decodeImage(req.Image2)
	if err != nil {
		imageError(c, err, "images must be base64")
		return
	}
	if a.Vision == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vision not configured"})
		return
	}
	c.JSON(http.StatusOK, a.Vision.Compare(c.Request.Context(), img1, img2))
}

// countFaces reports how many faces the vision service sees. Unlike
// analyze it surfaces vision failures.
func (a *API) countFaces(c *gin.Context) {
	var req struct {
		Image string `json:"image" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	img, err := decodeImage(req.Image)
	if err != nil {
		imageError(c, err, "image must be base64")
		return
	}
	if a.Vision == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vision not configured"})
		return
	}
	n, err := a.Vision.DetectFaces(c.Request.Context(), img)
	if err != nil {
		a.log.Warn("face detection failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "vision unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"faces": n, "multipleFaces": n > 1})
}

func (a *API) dashboard(c *gin.Context) {
	view, err := a.Attendance.Dashboard(c.Request.Context(), c.Query("period"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ledgerStats reports a disconnected ledger rather than failing.
func (a *API) ledgerStats(c *gin.Context) {
	if a.Ledger == nil {
		c.JSON(http.StatusOK, ledger.Stats{})
		return
	}
	c.JSON(http.StatusOK, a.Ledger.Stats(c.Request.Context()))
}

func (a *API) ledgerVerify(c *gin.Context) {
	studentID, sessionID := c.Query("studentId"), c.Query("sessionId")
	if studentID == "" || sessionID == "" {
		badRequest(c, "studentId and sessionId required")
		return
	}
	ts, err := time.Parse(time.RFC3339Nano, c.Query("timestamp"))
	if err != nil {
		badRequest(c, "timestamp must be RFC 3339")
		return
	}
	if a.Ledger == nil {
		c.JSON(http.StatusOK, ledger.Verification{})
		return
	}
	c.JSON(http.StatusOK, a.Ledger.Verify(c.Request.Context(), studentID, sessionID, ts))
}
