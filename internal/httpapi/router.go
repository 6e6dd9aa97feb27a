// Package httpapi provides the HTTP surface a host process uses to drive a
// monitor.Monitor remotely: open/drop contexts, register and finalize
// dataframes, and inspect readiness of the admission engine and audit trail.
package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/agentguard/policyguard/internal/audit"
	"github.com/agentguard/policyguard/internal/config"
	"github.com/agentguard/policyguard/internal/monitor"
	"github.com/agentguard/policyguard/internal/policy"
	"github.com/agentguard/policyguard/internal/policyio"
	"github.com/agentguard/policyguard/internal/telemetry"
	"github.com/agentguard/policyguard/pkg/admission"
)

// scopeKey is the gin context key for storing bearer-derived scopes.
const scopeKey = "auth_scopes"

// RouterDeps holds dependencies for router initialization.
type RouterDeps struct {
	Mon       *monitor.Monitor
	Admission *admission.Engine
	// DefaultAuditRecorder, when set, is wired into every context opened
	// through POST /api/v1/contexts.
	DefaultAuditRecorder audit.Recorder
	// Telemetry, when set, instruments every /api/v1 route with request
	// count/duration/size metrics and a tracer span via HTTPMetrics.
	Telemetry *telemetry.Provider
	// AuditHealth, when set, is polled by GET /ready to report whether the
	// audit trail's backing store is reachable.
	AuditHealth func(ctx context.Context) error
	// StopRateLimiter is set by NewRouter. Call it during graceful shutdown to
	// stop the rate limiter's background cleanup goroutine.
	StopRateLimiter func()
}

// NewRouter creates and configures the HTTP router.
func NewRouter(cfg *config.Config, deps *RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.SetTrustedProxies(nil)
	r.Use(gin.Recovery())
	r.Use(securityHeadersMiddleware())
	r.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 4<<20)
		c.Next()
	})
	r.Use(corsMiddleware(cfg.Server.CORSOrigins))

	r.GET("/health", healthCheck)
	r.GET("/ready", makeReadinessCheck(deps))

	rl := newRateLimiter(200, time.Minute)
	if deps != nil {
		deps.StopRateLimiter = rl.Stop
	}

	v1 := r.Group("/api/v1")
	// Auth before rate limiting: unauthenticated requests are rejected before
	// consuming rate limit budget, and limits key on bearer identity rather
	// than IP.
	v1.Use(bearerTokenMiddleware(cfg.Auth.BearerToken))
	v1.Use(rateLimitMiddleware(rl))
	if deps != nil && deps.Telemetry != nil {
		if hm, err := telemetry.NewHTTPMetrics(deps.Telemetry.Meter()); err != nil {
			log.Warn().Err(err).Msg("http metrics init failed, continuing without per-route instrumentation")
		} else {
			v1.Use(hm.GinMiddleware(deps.Telemetry.Tracer()))
		}
	}
	{
		h := &handlers{deps: deps}

		contexts := v1.Group("/contexts")
		{
			contexts.POST("", h.openContext)
			contexts.DELETE("/:contextID", h.dropContext)

			dfs := contexts.Group("/:contextID/dataframes")
			{
				dfs.POST("", h.registerDataFrame)
				dfs.GET("/:dfID", h.debugPrintDataFrame)
				dfs.POST("/:dfID/finalize", h.finalizeDataFrame)
				dfs.POST("/:dfID/slice", h.sliceDataFrame)
			}
		}

		admissionGroup := v1.Group("/admission")
		{
			writeScope := requireScope(cfg.Auth.Provider, "write:admission")
			admissionGroup.POST("/data", writeScope, h.updateAdmissionData)
			admissionGroup.POST("/evaluate", h.evaluateAdmission)
		}
	}

	return r
}

// handlers holds the dependencies shared across route handlers.
type handlers struct {
	deps *RouterDeps
}

func (h *handlers) monitor() (*monitor.Monitor, error) {
	if h.deps == nil || h.deps.Mon == nil {
		return nil, policy.New(policy.NoData, "no monitor configured")
	}
	return h.deps.Mon, nil
}

func (h *handlers) context(c *gin.Context) (*monitor.Context, error) {
	m, err := h.monitor()
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(c.Param("contextID"))
	if err != nil {
		return nil, policy.Wrap(policy.InvalidOperation, err, "malformed context id")
	}
	return m.Context(id)
}

type openContextRequest struct {
	EnableProfiling bool `json:"enable_profiling"`
	EnableTracing   bool `json:"enable_tracing"`
}

func (h *handlers) openContext(c *gin.Context) {
	m, err := h.monitor()
	if err != nil {
		writePolicyError(c, err)
		return
	}
	var req openContextRequest
	_ = c.ShouldBindJSON(&req)
	id := m.OpenNew(monitor.Options{EnableProfiling: req.EnableProfiling, EnableTracing: req.EnableTracing})
	if ctx, err := m.Context(id); err == nil {
		if h.deps.DefaultAuditRecorder != nil {
			ctx.SetAuditRecorder(h.deps.DefaultAuditRecorder)
		}
		if h.deps.Admission != nil {
			ctx.SetAdmission(h.deps.Admission)
		}
	}
	c.JSON(http.StatusCreated, gin.H{"context_id": id})
}

func (h *handlers) dropContext(c *gin.Context) {
	m, err := h.monitor()
	if err != nil {
		writePolicyError(c, err)
		return
	}
	id, err := uuid.Parse(c.Param("contextID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed context id"})
		return
	}
	m.Drop(id)
	c.Status(http.StatusNoContent)
}

func (h *handlers) registerDataFrame(c *gin.Context) {
	ctx, err := h.context(c)
	if err != nil {
		writePolicyError(c, err)
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read request body"})
		return
	}
	df, err := policyio.UnmarshalDataFrameJSON(body)
	if err != nil {
		writePolicyError(c, err)
		return
	}
	id := ctx.RegisterPolicyDataFrame(df)
	c.JSON(http.StatusCreated, gin.H{"dataframe_id": id})
}

func (h *handlers) debugPrintDataFrame(c *gin.Context) {
	ctx, err := h.context(c)
	if err != nil {
		writePolicyError(c, err)
		return
	}
	id, err := uuid.Parse(c.Param("dfID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed dataframe id"})
		return
	}
	rendered, err := ctx.DebugPrintDF(id)
	if err != nil {
		writePolicyError(c, err)
		return
	}
	c.String(http.StatusOK, rendered)
}

func (h *handlers) finalizeDataFrame(c *gin.Context) {
	ctx, err := h.context(c)
	if err != nil {
		writePolicyError(c, err)
		return
	}
	id, err := uuid.Parse(c.Param("dfID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed dataframe id"})
		return
	}
	if err := ctx.Finalize(id); err != nil {
		writePolicyError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "clean"})
}

type sliceRequest struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (h *handlers) sliceDataFrame(c *gin.Context) {
	ctx, err := h.context(c)
	if err != nil {
		writePolicyError(c, err)
		return
	}
	id, err := uuid.Parse(c.Param("dfID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed dataframe id"})
		return
	}
	var req sliceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	sliceID, err := ctx.CreateSlice(id, req.Start, req.End)
	if err != nil {
		writePolicyError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"dataframe_id": sliceID})
}

func (h *handlers) updateAdmissionData(c *gin.Context) {
	if h.deps == nil || h.deps.Admission == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "admission engine not configured"})
		return
	}
	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path query parameter is required"})
		return
	}
	var data any
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.deps.Admission.UpdateData(c.Request.Context(), path, data); err != nil {
		log.Error().Err(err).Str("path", path).Msg("admission data update failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "admission data update failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) evaluateAdmission(c *gin.Context) {
	if h.deps == nil || h.deps.Admission == nil {
		c.JSON(http.StatusForbidden, gin.H{
			"allow":   false,
			"reasons": []string{"admission engine not configured — denying by default"},
		})
		return
	}
	var input admission.EvaluationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"allow":   false,
			"reasons": []string{"invalid request body"},
		})
		return
	}
	decision, err := h.deps.Admission.Evaluate(c.Request.Context(), &input)
	if err != nil {
		log.Error().Err(err).Msg("admission evaluation failed")
		c.JSON(http.StatusForbidden, gin.H{
			"allow":   false,
			"reasons": []string{"admission evaluation failed — denying by default"},
		})
		return
	}
	c.JSON(http.StatusOK, decision)
}

// writePolicyError maps a *policy.Error's Kind onto the closest HTTP status.
func writePolicyError(c *gin.Context, err error) {
	pe, ok := err.(*policy.Error)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	status := http.StatusInternalServerError
	switch pe.Kind {
	case policy.NoData, policy.ColumnNotFound, policy.SchemaFieldNotFound, policy.StructFieldNotFound:
		status = http.StatusNotFound
	case policy.InvalidOperation, policy.OutOfBounds, policy.SchemaMismatch, policy.ShapeMismatch, policy.SerializeError:
		status = http.StatusBadRequest
	case policy.PrivacyError:
		status = http.StatusUnprocessableEntity
	case policy.Unimplemented:
		status = http.StatusForbidden
	case policy.Already, policy.Duplicate:
		status = http.StatusConflict
	case policy.Io, policy.ComputeError, policy.StringCacheMismatch:
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": pe.Error(), "kind": pe.Kind.String()})
}

// rateLimiter implements a simple in-memory sliding window rate limiter per
// identity (bearer suffix, falling back to IP).
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string][]time.Time
	limit    int
	window   time.Duration
	done     chan struct{}
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		done:     make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Stop terminates the cleanup goroutine.
func (rl *rateLimiter) Stop() {
	close(rl.done)
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	timestamps := rl.visitors[key]
	valid := make([]time.Time, 0, len(timestamps))
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= rl.limit {
		rl.visitors[key] = valid
		return false
	}

	rl.visitors[key] = append(valid, now)
	return true
}

func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			cutoff := now.Add(-rl.window)
			for key, timestamps := range rl.visitors {
				valid := make([]time.Time, 0, len(timestamps))
				for _, ts := range timestamps {
					if ts.After(cutoff) {
						valid = append(valid, ts)
					}
				}
				if len(valid) == 0 {
					delete(rl.visitors, key)
				} else {
					rl.visitors[key] = valid
				}
			}
			rl.mu.Unlock()
		}
	}
}

// securityHeadersMiddleware adds security response headers to all responses.
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Content-Security-Policy", "default-src 'self'")
		c.Next()
	}
}

func rateLimitMiddleware(rl *rateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token := strings.TrimPrefix(auth, "Bearer ")
			if len(token) >= 8 {
				key = "bearer:" + token[len(token)-8:]
			}
		}

		if !rl.allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		wildcard := false
		for _, o := range allowedOrigins {
			if o == "*" {
				allowed = true
				wildcard = true
				break
			}
			if o == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if wildcard {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Access-Control-Allow-Credentials", "true")
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
			c.Header("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func bearerTokenMiddleware(token string) gin.HandlerFunc {
	if token == "" {
		log.Warn().Msg("AUTH_BEARER_TOKEN is not configured — all API requests will be rejected")
		return func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		}
	}
	if len(token) < 32 {
		log.Warn().Int("token_len", len(token)).
			Msg("AUTH_BEARER_TOKEN is shorter than 32 chars — consider using a stronger token")
	}
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		provided := strings.TrimPrefix(authHeader, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(scopeKey, []string{"read:admission", "write:admission"})
		c.Next()
	}
}

// requireScope returns middleware that enforces the presence of a required
// scope in the request context. In dev mode (auth.provider == "none"), scope
// checks are bypassed.
func requireScope(provider, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(provider, "none") {
			c.Next()
			return
		}

		raw, exists := c.Get(scopeKey)
		if !exists {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "missing auth scopes"})
			return
		}

		scopes, ok := raw.([]string)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid auth scopes"})
			return
		}

		for _, s := range scopes {
			if s == scope {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":    "insufficient scope",
			"required": scope,
		})
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func makeReadinessCheck(deps *RouterDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}
		ready := true

		if deps == nil || deps.Mon == nil {
			checks["monitor"] = "unavailable"
			ready = false
		} else {
			checks["monitor"] = "ok"
		}

		if deps == nil || deps.Admission == nil {
			checks["admission_engine"] = "unavailable"
		} else if !deps.Admission.Ready() {
			checks["admission_engine"] = "no_policies_loaded"
		} else {
			checks["admission_engine"] = "ok"
		}

		if deps != nil && deps.AuditHealth != nil {
			if err := deps.AuditHealth(c.Request.Context()); err != nil {
				checks["audit_trail"] = "unreachable"
			} else {
				checks["audit_trail"] = "ok"
			}
		}

		status := http.StatusOK
		statusStr := "ready"
		if !ready {
			status = http.StatusServiceUnavailable
			statusStr = "degraded"
		}

		c.JSON(status, gin.H{
			"status":    statusStr,
			"checks":    checks,
			"timestamp": time.Now().UTC(),
		})
	}
}
