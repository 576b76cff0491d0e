package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/milk-back/backend/internal/model"
	"github.com/milk-back/backend/internal/service"
)

const (
	authUserKey  = "auth_user"
	authStateKey = "auth_state"
)

// AuthMiddleware runs the interceptor around the rest of the chain. It never
// aborts: lack of authentication is a normal outcome, enforced by RequireAuth.
func AuthMiddleware(interceptor *service.AuthInterceptor, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		state := interceptor.PreProcess(c.Request.Context(), c.Request)
		attachState(c, state)

		w := &persistWriter{ResponseWriter: c.Writer}
		w.persist = func() {
			err := interceptor.PostProcess(c.Request.Context(), w.ResponseWriter, state, w.ResponseWriter.Status())
			if err != nil && log != nil {
				log.DebugContext(c.Request.Context(), "refreshed tokens not persisted", "error", err)
			}
		}
		c.Writer = w
		defer func() {
			c.Writer = w.ResponseWriter
		}()

		c.Next()
		w.flushPending()
	}
}

// persistWriter runs the post-process hook right before the first byte of the
// response (headers included) leaves the server.
type persistWriter struct {
	gin.ResponseWriter
	once    sync.Once
	persist func()
}

func (w *persistWriter) flushPending() {
	w.once.Do(func() {
		if w.persist != nil {
			w.persist()
		}
	})
}

func (w *persistWriter) WriteHeaderNow() {
	w.flushPending()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *persistWriter) Write(data []byte) (int, error) {
	w.flushPending()
	return w.ResponseWriter.Write(data)
}

func (w *persistWriter) WriteString(s string) (int, error) {
	w.flushPending()
	return w.ResponseWriter.WriteString(s)
}

func (w *persistWriter) Flush() {
	w.flushPending()
	w.ResponseWriter.Flush()
}

// RequireAuth rejects requests without an attached identity. A store outage
// is reported as 503 since validity could not be determined.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		state := GetAuthState(c)
		if _, ok := state.Identity(); ok {
			c.Next()
			return
		}
		if state.Unavailable() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}

// attachState publishes the state's principal and verdict to the gin context
// and the request context. Call it again whenever the state changes mid-request.
func attachState(c *gin.Context, state *service.AuthState) {
	ctx := model.WithPrincipal(c.Request.Context(), state.Principal)
	ctx = model.WithVerdict(ctx, state.Verdict)
	c.Request = c.Request.WithContext(ctx)
	c.Set(authStateKey, state)
	if id, ok := state.Identity(); ok {
		c.Set(authUserKey, &id)
	} else {
		c.Set(authUserKey, nil)
	}
}

func GetAuthUser(c *gin.Context) *model.Identity {
	if value, ok := c.Get(authUserKey); ok {
		if user, ok := value.(*model.Identity); ok {
			return user
		}
	}
	return nil
}

func GetAuthState(c *gin.Context) *service.AuthState {
	if value, ok := c.Get(authStateKey); ok {
		if state, ok := value.(*service.AuthState); ok {
			return state
		}
	}
	return nil
}

// RequestLogger logs one line per request.
func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"remote", c.ClientIP(),
		}
		if v, ok := model.VerdictFromContext(c.Request.Context()); ok {
			attrs = append(attrs, "auth", v.String())
		}
		log.InfoContext(c.Request.Context(), "http.request", attrs...)
	}
}

func CORSMiddleware(allowedOrigins []string, allowCredentials bool) gin.HandlerFunc {
	originMap := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		originMap[trimmed] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if _, ok := originMap[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				if allowCredentials {
					c.Header("Access-Control-Allow-Credentials", "true")
				}
				c.Header("Access-Control-Allow-Headers", "Content-Type")
				c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
