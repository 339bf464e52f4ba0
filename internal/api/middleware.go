package api

import (
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/harrylevesque/hivebff/internal/auth"
	"github.com/harrylevesque/hivebff/internal/utils"
)

const maxRequestIDLength = 128

// statusRecorder captures the status code and size written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// requestID reuses a sane inbound X-Request-Id or mints one, and echoes it.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(utils.RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = utils.NewRequestID()
		}
		w.Header().Set(utils.RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(utils.WithRequestID(r.Context(), id)))
	})
}

// tracing continues an inbound W3C trace and opens a server span.
func tracing(next http.Handler) http.Handler {
	tracer := otel.Tracer("github.com/harrylevesque/hivebff/internal/api")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, r.Method+" "+routeTemplate(r),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
				attribute.String("request.id", utils.RequestID(ctx)),
			))
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accessLog(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Int("bytes", rec.bytes),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", utils.RequestID(r.Context())))
		})
	}
}

// recoverer turns a handler panic into a 500 JSON response.
func recoverer(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					log.Error("handler panic",
						zap.Any("panic", v),
						zap.String("path", r.URL.Path),
						zap.String("request_id", utils.RequestID(r.Context())),
						zap.ByteString("stack", debug.Stack()))
					utils.WriteError(w, utils.Internal("Internal server error", nil))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// authenticate resolves the caller's bearer and stores the principal on the
// request context. A session whose refresh failed is rejected with 401.
func authenticate(sessions *auth.Manager, log *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := sessions.Resolve(w, r)
			if err != nil {
				if errors.Is(err, auth.ErrSessionExpired) {
					utils.WriteError(w, utils.New(http.StatusUnauthorized, "Session expired"))
					return
				}
				log.Error("resolve session", zap.Error(err))
				utils.WriteError(w, utils.Internal("Internal server error", err))
				return
			}
			if !p.Authenticated() {
				log.Debug("forwarding without bearer",
					zap.String("path", r.URL.Path),
					zap.String("request_id", utils.RequestID(r.Context())))
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}
