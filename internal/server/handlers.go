package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"jetstream/internal/dispatch"
	"jetstream/internal/ingest"
	"jetstream/internal/jobs"
	"jetstream/internal/storage"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	c.Set("user", req.Username)
	if !s.auth.VerifyCredentials(req.Username, req.Password) {
		s.recordAudit(c, "login", "", "", false, "bad credentials")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	token, err := s.auth.IssueToken(req.Username)
	if err != nil {
		s.log.Error().Err(err).Msg("token issue failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.SetCookie(sessionCookie, token, s.cookieTTLSeconds, "/", "", false, true)
	s.recordAudit(c, "login", "", "", true, "")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleLogout(c *gin.Context) {
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, s.reg.List())
}

func (s *Server) handleStopJob(c *gin.Context) {
	id := c.Param("id")
	j, err := s.disp.Stop(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	s.recordAudit(c, "job_stop", id, j.Bundle, true, "")
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": j.Status})
}

// handleDeleteJob refuses to remove a running job; it must be stopped
// first so an armed ticker is never orphaned by the API.
func (s *Server) handleDeleteJob(c *gin.Context) {
	id := c.Param("id")
	j, ok := s.reg.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if j.Status == jobs.StatusRunning {
		s.recordAudit(c, "job_delete", id, j.Bundle, false, "running")
		c.JSON(http.StatusBadRequest, gin.H{"error": "running"})
		return
	}
	if _, err := s.disp.Delete(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	s.recordAudit(c, "job_delete", id, j.Bundle, true, "")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleLogs(c *gin.Context) {
	limit := defaultLogLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	c.JSON(http.StatusOK, s.logs.Query(c.Query("bundle"), limit))
}

func (s *Server) handleGetNotes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"text": s.notes.Get()})
}

func (s *Server) handleSaveNotes(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := s.notes.Save(req.Text); err != nil {
		s.log.Error().Err(err).Msg("notes save failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}
	s.recordAudit(c, "notes_save", "", "", true, "")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handleUpload accepts a multipart CSV batch plus pacing parameters and
// starts a dispatch job over it.
func (s *Server) handleUpload(c *gin.Context) {
	bundle := strings.TrimSpace(c.PostForm("bundle"))
	devKey := strings.TrimSpace(c.PostForm("devKey"))
	if bundle == "" || devKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bundle and devKey are required"})
		return
	}
	days, err := strconv.ParseFloat(strings.TrimSpace(c.PostForm("days")), 64)
	if err != nil || days <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive number"})
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
		return
	}
	defer f.Close()

	records, err := ingest.ParseCSV(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.disp.Start(dispatch.StartRequest{
		Bundle:   bundle,
		DevKey:   devKey,
		Days:     days,
		Records:  records,
		FileName: fh.Filename,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.recordAudit(c, "job_start", res.JobID, bundle, true, "")
	c.JSON(http.StatusOK, res)
}

// recordAudit appends to the audit trail when one is configured. The
// trail is best-effort; a write failure never affects the response.
func (s *Server) recordAudit(c *gin.Context, action, jobID, bundle string, ok bool, errStr string) {
	if s.audit == nil {
		return
	}
	e := storage.AuditEntry{
		Actor:  s.actor(c),
		Action: action,
		JobID:  jobID,
		Bundle: bundle,
		OK:     ok,
		Error:  errStr,
	}
	if err := s.audit.AppendAudit(c.Request.Context(), e); err != nil {
		s.log.Warn().Err(err).Str("action", action).Msg("audit append failed")
	}
}
