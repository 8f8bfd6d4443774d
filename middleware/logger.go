package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/procuregov/authcore"
	"go.uber.org/zap"
)

type requestInfoContextKey struct{}

// requestInfo is shared by pointer so handlers further down can report the
// authenticated principal back to the access log.
type requestInfo struct {
	id          string
	principalID string
	clientIP    string
}

// RequestIDFromContext returns the id assigned by [RequestLogger].
func RequestIDFromContext(ctx context.Context) string {
	if info, ok := ctx.Value(requestInfoContextKey{}).(*requestInfo); ok {
		return info.id
	}
	return ""
}

func notePrincipal(ctx context.Context, principalID string) {
	if info, ok := ctx.Value(requestInfoContextKey{}).(*requestInfo); ok {
		info.principalID = principalID
	}
}

func noteClientIP(ctx context.Context, ip string) {
	if info, ok := ctx.Value(requestInfoContextKey{}).(*requestInfo); ok {
		info.clientIP = ip
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// RequestLogger logs each request with latency, status and request id. An
// incoming X-Request-ID is reused; otherwise a UUID is generated. The id is
// echoed in the response.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.L()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
			if requestID == "" || len(requestID) > 128 {
				requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", requestID)

			rec := &statusRecorder{ResponseWriter: w}
			info := &requestInfo{id: requestID, clientIP: authcore.ClientIPFromContext(r.Context())}
			if info.clientIP == "" {
				info.clientIP, _ = parseIPCandidate(r.RemoteAddr)
			}
			r = r.WithContext(context.WithValue(r.Context(), requestInfoContextKey{}, info))

			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}

			fields := []zap.Field{
				zap.String("request_id", requestID),
				zap.Int("status", status),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("latency", time.Since(start)),
				zap.Int("bytes", rec.bytes),
				zap.String("client_ip", info.clientIP),
				zap.String("user_agent", r.UserAgent()),
			}
			if info.principalID != "" {
				fields = append(fields, zap.String("principal_id", info.principalID))
			}

			switch {
			case status >= 500:
				logger.Error("http_request", fields...)
			case status >= 400:
				logger.Warn("http_request", fields...)
			default:
				logger.Info("http_request", fields...)
			}
		})
	}
}
