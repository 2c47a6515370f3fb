// Package server exposes the operator HTTP API: login, batch upload,
// job control, delivery logs and the encrypted notepad.
package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"jetstream/internal/auth"
	"jetstream/internal/dispatch"
	"jetstream/internal/jobs"
	"jetstream/internal/notes"
	"jetstream/internal/oplog"
	"jetstream/internal/storage"
)

const (
	sessionCookie   = "session"
	maxUploadBytes  = 16 << 20
	defaultLogLimit = 200
)

// Dispatcher is the job-control surface the API drives.
type Dispatcher interface {
	Start(req dispatch.StartRequest) (dispatch.StartResult, error)
	Stop(id string) (jobs.Job, error)
	Delete(id string) (jobs.Job, error)
}

type Server struct {
	disp  Dispatcher
	reg   *jobs.Registry
	logs  *oplog.Buffer
	notes *notes.Store
	auth  *auth.Service
	audit storage.Store // nil when auditing is disabled
	log   zerolog.Logger

	cookieTTLSeconds int
}

func New(disp Dispatcher, reg *jobs.Registry, logs *oplog.Buffer, np *notes.Store, as *auth.Service, audit storage.Store, cookieTTLSeconds int, log zerolog.Logger) *Server {
	return &Server{
		disp:             disp,
		reg:              reg,
		logs:             logs,
		notes:            np,
		auth:             as,
		audit:            audit,
		log:              log,
		cookieTTLSeconds: cookieTTLSeconds,
	}
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// Handler builds the gin engine with all routes attached.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLog())
	r.MaxMultipartMemory = maxUploadBytes

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/login", s.handleLogin)
	r.POST("/logout", s.handleLogout)

	api := r.Group("/api")
	api.Use(s.requireAuth())
	{
		api.GET("/jobs", s.handleListJobs)
		api.POST("/jobs/:id/stop", s.handleStopJob)
		api.DELETE("/jobs/:id", s.handleDeleteJob)
		api.GET("/logs", s.handleLogs)
		api.GET("/notes", s.handleGetNotes)
		api.POST("/notes", s.handleSaveNotes)
		api.POST("/upload", s.handleUpload)
	}
	return r
}

// requireAuth accepts the session cookie or a bearer token, so both the
// browser UI and scripted clients can call the API.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(sessionCookie)
		if err != nil || token == "" {
			h := c.GetHeader("Authorization")
			if strings.HasPrefix(h, "Bearer ") {
				token = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
			}
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		user, err := s.auth.ParseToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session"})
			return
		}
		c.Set("user", user)
		c.Next()
	}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}

func (s *Server) actor(c *gin.Context) string {
	if v, ok := c.Get("user"); ok {
		if u, ok := v.(string); ok {
			return u
		}
	}
	return ""
}
