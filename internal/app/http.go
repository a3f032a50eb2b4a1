package app

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"ideaforge/api/internal/authpw"
	"ideaforge/api/internal/export"
	"ideaforge/api/internal/idea"
	"ideaforge/api/internal/ideastore"
	"ideaforge/api/internal/lifecycle"
	"ideaforge/api/internal/metrics"
	"ideaforge/api/internal/search"
)

const (
	workspaceHeader = "X-Workspace-ID"
	requestIDHeader = "X-Request-ID"
	sessionKey      = "session"
	requestIDKey    = "request_id"
	maxBodyBytes    = 1 << 20
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	log        *zap.Logger
	metrics    *metrics.Collector
}

// NewHTTPServer builds the gin router. metrics may be nil.
func NewHTTPServer(service *Service, corsOrigin string, log *zap.Logger, m *metrics.Collector) *HTTPServer {
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPServer{service: service, corsOrigin: corsOrigin, log: log, metrics: m}
}

func (s *HTTPServer) Handler() http.Handler {
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(s.withRequestContext(), s.recoverPanics())
	if s.metrics != nil {
		router.Use(s.metrics.Middleware())
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	router.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	router.NoMethod(func(c *gin.Context) {
		writeError(c, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	api := router.Group("/api")
	api.GET("/health", s.handleHealth)
	api.HEAD("/health", s.handleHealth)
	api.GET("/ready", s.handleReady)
	api.HEAD("/ready", s.handleReady)

	authGroup := api.Group("/auth")
	authGroup.POST("/signup", s.handleSignUp)
	authGroup.POST("/signin", s.handleSignIn)
	authGroup.POST("/refresh", s.handleRefresh)
	authGroup.POST("/logout", s.requireSession(), s.handleLogout)
	api.GET("/session", s.optionalSession(), s.handleSession)

	api.GET("/workspace", s.optionalSession(), s.handleWorkspace)

	ideas := api.Group("/ideas")
	ideas.POST("/generate", s.handleGenerate)
	ideas.POST("", s.requireSession(), s.handleSaveIdea)
	ideas.GET("", s.requireSession(), s.handleListIdeas)
	ideas.GET("/stats", s.requireSession(), s.handleStats)
	ideas.GET("/search", s.requireSession(), s.handleSearch)
	ideas.GET("/export", s.requireSession(), s.handleExport)
	ideas.GET("/:id", s.requireSession(), s.handleGetIdea)
	ideas.PUT("/:id", s.requireSession(), s.handleUpdateIdea)
	ideas.DELETE("/:id", s.requireSession(), s.handleDeleteIdea)
	ideas.GET("/:id/history", s.requireSession(), s.handleHistory)

	return router
}

// withRequestContext assigns a request id, sets CORS and security headers,
// answers preflight requests and writes one log line per request.
func (s *HTTPServer) withRequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		started := time.Now()

		header := c.Writer.Header()
		setCORSHeaders(header, s.corsOrigin)
		header.Set(requestIDHeader, requestID)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
		} else {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
			c.Next()
		}

		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(started)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			s.log.Error("http request with errors", append(fields, zap.Strings("errors", c.Errors.Errors()))...)
			return
		}
		s.log.Info("http request", fields...)
	}
}

func (s *HTTPServer) recoverPanics() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		s.log.Error("http handler panic", zap.Any("panic", recovered), zap.String("path", c.Request.URL.Path))
		writeError(c, http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil)
	})
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Workspace-ID")
	header.Set("Access-Control-Expose-Headers", "X-Request-ID, X-Workspace-ID, Content-Disposition")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("X-Content-Type-Options", "nosniff")
	header.Set("X-Frame-Options", "DENY")
	header.Set("Referrer-Policy", "no-referrer")
}

func writeJSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

func writeError(c *gin.Context, status int, code, message string, details any) {
	response := gin.H{
		"success": false,
		"code":    code,
		"error":   message,
	}
	if details != nil {
		response["details"] = details
	}
	c.AbortWithStatusJSON(status, response)
}

// fail maps err and writes it. 5xx causes are attached to the request log.
func (s *HTTPServer) fail(c *gin.Context, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	writeError(c, status, code, message, details)
}

func bindJSON(c *gin.Context, target any) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
		return false
	}
	return true
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func (s *HTTPServer) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.Request)
		if token == "" {
			writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		session, err := s.service.SessionFromToken(c.Request.Context(), token)
		if err != nil {
			status, _, _, _ := mapError(err)
			if status == http.StatusUnauthorized {
				writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
				return
			}
			_ = c.Error(err)
			writeError(c, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
			return
		}
		c.Set(sessionKey, session)
		c.Next()
	}
}

// optionalSession resolves a bearer token when one is present; an invalid
// token is treated as anonymous.
func (s *HTTPServer) optionalSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c.Request); token != "" {
			if session, err := s.service.SessionFromToken(c.Request.Context(), token); err == nil {
				c.Set(sessionKey, session)
			}
		}
		c.Next()
	}
}

func sessionFrom(c *gin.Context) (Session, bool) {
	value, ok := c.Get(sessionKey)
	if !ok {
		return Session{}, false
	}
	session, ok := value.(Session)
	return session, ok
}

func principalFrom(c *gin.Context) idea.Principal {
	session, _ := sessionFrom(c)
	return session.Principal()
}

// Ops

func (s *HTTPServer) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"ok": true})
}

func (s *HTTPServer) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := gin.H{
		"database": gin.H{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = gin.H{
			"status": "error",
			"error":  err.Error(),
		}
	}
	writeJSON(c, statusCode, gin.H{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// Auth

func sessionPayload(session Session) gin.H {
	return gin.H{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"expiresAt":    session.ExpiresAt,
		"user": gin.H{
			"id":          session.UserID,
			"email":       session.Email,
			"displayName": session.UserName,
			"role":        session.Role,
		},
	}
}

func (s *HTTPServer) handleSignUp(c *gin.Context) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if !bindJSON(c, &body) {
		return
	}
	session, err := s.service.SignUp(c.Request.Context(), authpw.SignUpRequest{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"success": true, "data": sessionPayload(session)})
}

func (s *HTTPServer) handleSignIn(c *gin.Context) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !bindJSON(c, &body) {
		return
	}
	session, err := s.service.SignIn(c.Request.Context(), authpw.SignInRequest{Email: body.Email, Password: body.Password})
	if err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "data": sessionPayload(session)})
}

func (s *HTTPServer) handleRefresh(c *gin.Context) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !bindJSON(c, &body) {
		return
	}
	session, err := s.service.Refresh(c.Request.Context(), body.RefreshToken)
	if err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "data": sessionPayload(session)})
}

func (s *HTTPServer) handleLogout(c *gin.Context) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	// An empty body is fine: only the access token is revoked then.
	if c.Request.ContentLength != 0 && !bindJSON(c, &body) {
		return
	}
	session, _ := sessionFrom(c)
	if err := s.service.Logout(c.Request.Context(), session, body.RefreshToken); err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "data": gin.H{}})
}

func (s *HTTPServer) handleSession(c *gin.Context) {
	session, ok := sessionFrom(c)
	if !ok {
		writeJSON(c, http.StatusOK, gin.H{"authenticated": false, "userName": nil})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"authenticated": true, "userName": session.UserName, "userId": session.UserID, "role": session.Role})
}

// Ideas

func (s *HTTPServer) handleGenerate(c *gin.Context) {
	var body struct {
		Prompt   string `json:"prompt"`
		Type     string `json:"type"`
		Category string `json:"category"`
		Count    *int   `json:"count"`
	}
	if !bindJSON(c, &body) {
		return
	}
	rawCategory := body.Type
	if strings.TrimSpace(rawCategory) == "" {
		rawCategory = body.Category
	}
	if strings.TrimSpace(body.Prompt) == "" {
		s.fail(c, idea.InvalidRequest("prompt", "please provide a prompt"))
		return
	}
	category, err := idea.ParseCategory(rawCategory)
	if err != nil {
		s.fail(c, err)
		return
	}
	count := lifecycle.DefaultCount
	if body.Count != nil {
		count = *body.Count
	}

	result, err := s.service.Generate(c.Request.Context(), c.GetHeader(workspaceHeader), GenerateInput{
		Prompt:   body.Prompt,
		Category: category,
		Count:    count,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	if result.WorkspaceID != "" {
		c.Header(workspaceHeader, result.WorkspaceID)
	}
	writeJSON(c, http.StatusOK, gin.H{
		"success":     true,
		"count":       len(result.Batch.Ideas),
		"data":        result.Batch.Ideas,
		"workspaceId": result.WorkspaceID,
	})
}

type ideaBody struct {
	EphemeralID string    `json:"ephemeralId"`
	ID          string    `json:"id"`
	Title       *string   `json:"title"`
	Body        *string   `json:"body"`
	Content     *string   `json:"content"`
	Type        *string   `json:"type"`
	Category    *string   `json:"category"`
	Keywords    *[]string `json:"keywords"`
	Owner       *string   `json:"owner"`
}

// text returns body, falling back to the content alias.
func (b ideaBody) text() *string {
	if b.Body != nil {
		return b.Body
	}
	return b.Content
}

func (b ideaBody) category() *string {
	if b.Category != nil {
		return b.Category
	}
	return b.Type
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func (s *HTTPServer) handleSaveIdea(c *gin.Context) {
	var body ideaBody
	if !bindJSON(c, &body) {
		return
	}
	ref := body.EphemeralID
	if ref == "" && lifecycle.IsEphemeralID(body.ID) {
		ref = body.ID
	}
	var keywords []string
	if body.Keywords != nil {
		keywords = *body.Keywords
	}
	created, err := s.service.Save(c.Request.Context(), c.GetHeader(workspaceHeader), SaveInput{
		EphemeralID: ref,
		Title:       deref(body.Title),
		Body:        deref(body.text()),
		Category:    idea.Category(strings.ToLower(strings.TrimSpace(deref(body.category())))),
		Keywords:    keywords,
	}, principalFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"success": true, "data": created})
}

func parseFilter(c *gin.Context) (ideastore.Filter, error) {
	var filter ideastore.Filter
	if raw := c.Query("category"); raw != "" {
		category, err := idea.ParseCategory(raw)
		if err != nil {
			return filter, err
		}
		filter.Category = category
	}
	var err error
	if filter.Limit, err = queryInt(c, "limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = queryInt(c, "offset"); err != nil {
		return filter, err
	}
	return filter, nil
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, idea.InvalidRequest(key, key+" must be a non-negative integer")
	}
	return value, nil
}

func (s *HTTPServer) handleListIdeas(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	items, err := s.service.ListIdeas(c.Request.Context(), principalFrom(c), filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "count": len(items), "data": items})
}

func (s *HTTPServer) handleStats(c *gin.Context) {
	counts, err := s.service.Stats(c.Request.Context(), principalFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "data": gin.H{"total": total, "byCategory": counts}})
}

func (s *HTTPServer) handleSearch(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	resp, err := s.service.Search(c.Request.Context(), principalFrom(c), search.Query{
		Text:     c.Query("q"),
		Category: filter.Category,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "count": len(resp.Results), "data": resp})
}

func (s *HTTPServer) handleExport(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		s.fail(c, err)
		return
	}
	var category idea.Category
	if raw := c.Query("category"); raw != "" {
		if category, err = idea.ParseCategory(raw); err != nil {
			s.fail(c, err)
			return
		}
	}
	result, err := s.service.Export(c.Request.Context(), principalFrom(c), format, category)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	if result.ArchiveKey != "" {
		c.Header("X-Export-Archive-Key", result.ArchiveKey)
	}
	c.Data(http.StatusOK, result.MimeType, result.Data)
}

func (s *HTTPServer) handleGetIdea(c *gin.Context) {
	item, err := s.service.GetIdea(c.Request.Context(), c.Param("id"), principalFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "data": item})
}

func (s *HTTPServer) handleUpdateIdea(c *gin.Context) {
	var body ideaBody
	if !bindJSON(c, &body) {
		return
	}
	patch := idea.Patch{
		Title:    body.Title,
		Body:     body.text(),
		Keywords: body.Keywords,
		Owner:    body.Owner,
	}
	if raw := body.category(); raw != nil {
		category := idea.Category(strings.ToLower(strings.TrimSpace(*raw)))
		patch.Category = &category
	}
	updated, err := s.service.UpdateIdea(c.Request.Context(), c.GetHeader(workspaceHeader), c.Param("id"), patch, principalFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "data": updated})
}

func (s *HTTPServer) handleDeleteIdea(c *gin.Context) {
	if err := s.service.DeleteIdea(c.Request.Context(), c.GetHeader(workspaceHeader), c.Param("id"), principalFrom(c)); err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "data": gin.H{}})
}

func (s *HTTPServer) handleHistory(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		s.fail(c, err)
		return
	}
	revisions, err := s.service.History(c.Request.Context(), c.Param("id"), principalFrom(c), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "count": len(revisions), "data": revisions})
}

func (s *HTTPServer) handleWorkspace(c *gin.Context) {
	workspaceID, view, err := s.service.Workspace(c.Request.Context(), c.GetHeader(workspaceHeader), principalFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	if workspaceID != "" {
		c.Header(workspaceHeader, workspaceID)
	}
	writeJSON(c, http.StatusOK, gin.H{"generated": view.Generated, "saved": view.Saved, "workspaceId": workspaceID})
}

