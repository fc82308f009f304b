package server

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skycode/skypanel/guard"
	"github.com/skycode/skypanel/types"
)

const (
	headerRequestID  = "X-Request-ID"
	headerOrigin     = "Origin"
	jsonContentType  = "application/json"
	errInvalidPort   = "Invalid port. Must use port %d"
	errInvalidHost   = "Invalid Host header."
	errNotJSON       = "Response must be JSON only."
	errNotFound      = "Not found."
	errInternal      = "Internal server error."
	requestIDContext = "request_id"
)

// RequestID tags every request with an id, reusing one supplied by a proxy.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDContext, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// AccessLog writes one structured entry per request.
func AccessLog(logger *zap.SugaredLogger) gin.HandlerFunc {
	logger = ensureLogger(logger)
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Infow("request",
			"id", c.GetString(requestIDContext),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// EnforceHostAndPort rejects requests that did not arrive on the locked port or
// that name a host other than allowedHost.
func EnforceHostAndPort(g *guard.Guard, allowedHost string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := g.EnsurePort(requestPort(c.Request)); err != nil {
			c.AbortWithStatusJSON(StatusFor(err), types.ErrorResponse{Error: fmt.Sprintf(errInvalidPort, g.Port())})
			return
		}

		if hostname(c.Request.Host) != allowedHost {
			c.AbortWithStatusJSON(http.StatusBadRequest, types.ErrorResponse{Error: errInvalidHost})
			return
		}

		c.Next()
	}
}

// CORS allows the single configured origin, with credentials, for any method and
// header. Preflight requests from that origin are answered directly.
func CORS(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader(headerOrigin)
		if origin == "" {
			c.Next()
			return
		}

		c.Header("Vary", headerOrigin)
		if origin != allowedOrigin {
			if isPreflight(c.Request) {
				c.AbortWithStatusJSON(http.StatusForbidden, types.ErrorResponse{Error: "Origin not allowed."})
				return
			}
			c.Next()
			return
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Credentials", "true")

		if isPreflight(c.Request) {
			methods := c.GetHeader("Access-Control-Request-Method")
			c.Header("Access-Control-Allow-Methods", methods)
			if headers := c.GetHeader("Access-Control-Request-Headers"); headers != "" {
				c.Header("Access-Control-Allow-Headers", headers)
			}
			c.Header("Access-Control-Max-Age", "600")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// JSONOnly buffers the downstream response and replaces it with a 500 unless it
// is JSON. Empty 204/304 responses pass through untouched.
func JSONOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		original := c.Writer
		buffered := &bufferedWriter{ResponseWriter: original, status: http.StatusOK}
		c.Writer = buffered
		defer func() { c.Writer = original }()

		c.Next()

		status := buffered.status
		if (status == http.StatusNoContent || status == http.StatusNotModified) && buffered.body.Len() == 0 {
			original.WriteHeader(status)
			original.WriteHeaderNow()
			return
		}

		if !strings.Contains(original.Header().Get("Content-Type"), jsonContentType) {
			original.Header().Del("Content-Length")
			original.Header().Del("Content-Type")
			c.Writer = original
			c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: errNotJSON})
			return
		}

		original.WriteHeader(status)
		_, _ = original.Write(buffered.body.Bytes())
	}
}

// Recovery turns a panicking handler into a JSON 500.
func Recovery(logger *zap.SugaredLogger) gin.HandlerFunc {
	logger = ensureLogger(logger)
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Errorw("handler panicked", "id", c.GetString(requestIDContext), "panic", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, types.ErrorResponse{Error: errInternal})
	})
}

// StatusFor maps the guard/lock error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	var (
		portErr     *types.InvalidPortError
		deniedErr   *types.AccessDeniedError
		unavailable *types.ResourceUnavailableError
	)

	switch {
	case errors.As(err, &portErr):
		return http.StatusBadRequest
	case errors.As(err, &deniedErr):
		return http.StatusForbidden
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// requestPort prefers the local port the connection was accepted on and falls
// back to the port named in the Host header, then to the scheme default.
func requestPort(r *http.Request) int {
	if addr, ok := r.Context().Value(http.LocalAddrContextKey).(net.Addr); ok {
		if tcp, ok := addr.(*net.TCPAddr); ok {
			return tcp.Port
		}
	}

	if _, port, err := net.SplitHostPort(r.Host); err == nil {
		if n, err := strconv.Atoi(port); err == nil {
			return n
		}
	}

	if r.TLS != nil {
		return 443
	}
	return 80
}

func ensureLogger(l *zap.SugaredLogger) *zap.SugaredLogger {
	if l == nil {
		return zap.NewNop().Sugar()
	}
	return l
}

func hostname(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
}

type bufferedWriter struct {
	gin.ResponseWriter
	body    bytes.Buffer
	status  int
	written bool
}

func (w *bufferedWriter) WriteHeader(code int) {
	if code > 0 {
		w.status = code
	}
}

func (w *bufferedWriter) WriteHeaderNow() {
	w.written = true
}

func (w *bufferedWriter) Write(data []byte) (int, error) {
	w.written = true
	return w.body.Write(data)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	w.written = true
	return w.body.WriteString(s)
}

func (w *bufferedWriter) Status() int {
	return w.status
}

func (w *bufferedWriter) Size() int {
	if !w.written {
		return -1
	}
	return w.body.Len()
}

func (w *bufferedWriter) Written() bool {
	return w.written
}
