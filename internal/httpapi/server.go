// Package httpapi exposes the attendance service over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"presence/internal/attendance"
	"presence/internal/auth"
	"presence/internal/cloudinary"
	"presence/internal/httpmiddleware"
	"presence/internal/identity"
	"presence/internal/ledger"
	"presence/internal/logging"
	"presence/internal/metrics"
	"presence/internal/model"
	"presence/internal/queue"
	"presence/internal/statscache"
	"presence/internal/vision"
)

// Vision analyzes face photos.
type Vision interface {
	Analyze(ctx context.Context, image []byte) vision.Analysis
	Compare(ctx context.Context, a, b []byte) vision.Comparison
	DetectFaces(ctx context.Context, image []byte) (int, error)
}

// Ledger is the full ledger surface used by the API.
type Ledger interface {
	ledger.Writer
	ledger.Reader
	Stats(ctx context.Context) ledger.Stats
	Verify(ctx context.Context, studentID, sessionID string, ts time.Time) ledger.Verification
}

// PhotoUploader stores student photos and returns their public URL.
type PhotoUploader interface {
	UploadBytes(ctx context.Context, data []byte, filename string) (*cloudinary.UploadResult, error)
	UploadDataURL(ctx context.Context, data string) (*cloudinary.UploadResult, error)
}

// Snapshots reads cached session stats.
type Snapshots interface {
	Get(ctx context.Context, sessionID string) (statscache.Snapshot, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Deps wires the API. Attendance, Identity and Verifier are required.
// Ledger, Photos, Queue and Snapshots are optional; leave them nil (not a
// typed nil) when unconfigured.
type Deps struct {
	Attendance *attendance.Service
	Identity   *identity.Service
	Verifier   auth.Verifier
	Vision     Vision
	Ledger     Ledger
	Photos     PhotoUploader
	Queue      queue.Queue
	Snapshots  Snapshots

	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger

	RateLimitPerMin int
	CORSOrigins     []string
	Checks          map[string]HealthCheck
}

// API holds the handlers.
type API struct {
	Deps
	log *zap.Logger
}

// maxBodyBytes fits two base64 photos of maxPhotoBytes in one JSON body.
const maxBodyBytes = 24 << 20

// Roles allowed to change students, sessions and attendance.
var staffRoles = []string{model.RoleTeacher, model.RoleAdmin, model.RoleCoordinator}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	a := &API{Deps: d, log: d.Logger.Named("http")}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.GinLogger(a.log, "/healthz", "/metrics"))
	r.Use(d.Metrics.GinMiddleware())
	r.Use(corsMiddleware(d.CORSOrigins))
	r.Use(securityHeaders())
	r.Use(limitBody(maxBodyBytes))
	r.Use(httpmiddleware.NewRateLimiter(d.RateLimitPerMin).GinMiddleware())

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	} else {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	r.GET("/healthz", a.health)

	pub := r.Group("/v1/auth")
	pub.POST("/signup", a.signUp)
	pub.POST("/login", a.login)
	pub.POST("/refresh", a.refresh)

	v1 := r.Group("/v1", auth.Authenticate(d.Verifier))
	staff := auth.RequireRole(staffRoles...)

	v1.POST("/auth/logout", a.logout)
	v1.GET("/auth/me", a.me)
	admin := auth.RequireRole(model.RoleAdmin)
	v1.PUT("/users/:id/role", admin, a.updateRole)
	v1.PUT("/users/:id/wallet", admin, a.updateWallet)

	v1.GET("/students", a.listStudents)
	v1.POST("/students", staff, a.createStudent)
	v1.GET("/students/:id", a.getStudent)
	v1.PUT("/students/:id", staff, a.updateStudent)
	v1.DELETE("/students/:id", staff, a.deleteStudent)
	v1.POST("/students/:id/photo", staff, a.setStudentPhoto)

	v1.GET("/sessions", a.listSessions)
	v1.POST("/sessions", staff, a.createSession)
	v1.GET("/sessions/:id", a.getSession)
	v1.POST("/sessions/:id/close", staff, a.closeSession)
	v1.PUT("/sessions/:id/status", staff, a.setSessionStatus)
	v1.GET("/sessions/:id/students", a.listSessionStudents)
	v1.POST("/sessions/:id/students", staff, a.addSessionStudent)
	v1.DELETE("/sessions/:id/students/:studentId", staff, a.removeSessionStudent)
	v1.GET("/sessions/:id/attendance", a.sessionAttendance)
	v1.POST("/sessions/:id/attendance", staff, a.markAttendance)
	v1.GET("/sessions/:id/stats", a.sessionStats)
	v1.GET("/sessions/:id/stats/snapshot", a.statsSnapshot)

	v1.POST("/vision/analyze", a.analyze)
	v1.POST("/vision/compare", a.compare)
	v1.POST("/vision/faces", a.countFaces)
	v1.GET("/dashboard", a.dashboard)
	v1.GET("/ledger/stats", a.ledgerStats)
	v1.GET("/ledger/verify", a.ledgerVerify)

	return r
}

func (a *API) health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range a.Checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       24 * time.Hour,
	}
	if len(origins) > 0 {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	} else {
		// Any origin, without credentials; clients send bearer tokens.
		cfg.AllowAllOrigins = true
	}
	return cors.New(cfg)
}

// limitBody caps request bodies at n bytes.
func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > n {
			tooLarge(c)
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

// publish emits an event after a committed change. Failures are logged.
func (a *API) publish(ctx context.Context, typ string, ev queue.SessionEvent) {
	if a.Queue == nil {
		return
	}
	msg, err := queue.NewMessage(typ, ev)
	if err == nil {
		err = a.Queue.Publish(ctx, msg)
	}
	if err != nil {
		a.log.Warn("queue publish failed", zap.String("type", typ), zap.String("session_id", ev.SessionID), zap.Error(err))
	}
}

func caller(c *gin.Context) attendance.Caller {
	id, _ := auth.FromContext(c)
	return attendance.Caller{UserID: id.UserID, Role: id.Role, Wallet: id.Wallet}
}
