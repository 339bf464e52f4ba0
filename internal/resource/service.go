package resource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/harrylevesque/hivebff/internal/backend"
	"github.com/harrylevesque/hivebff/internal/cache"
	"github.com/harrylevesque/hivebff/internal/models"
	"github.com/harrylevesque/hivebff/internal/utils"
)

// Doer performs backend calls. *backend.Client satisfies it.
type Doer interface {
	Do(ctx context.Context, req backend.Request) (*backend.Response, error)
}

// Invalidator drops cached reads. *cache.Loader satisfies it.
type Invalidator interface {
	Invalidate(ctx context.Context, prefix string) error
}

// Result is a successful mutation.
type Result struct {
	Status int
	Body   []byte
	// Strategy names the delete strategy that succeeded.
	Strategy Strategy
}

// Service forwards validated mutations to the backend.
type Service struct {
	backend Doer
	cache   Invalidator
	log     *zap.Logger
	now     func() time.Time
}

// NewService returns a Service. inv may be nil when nothing is cached.
func NewService(b Doer, inv Invalidator, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{backend: b, cache: inv, log: log, now: time.Now}
}

// Create validates p and POSTs it to the collection.
func (s *Service) Create(ctx context.Context, schema Schema, p models.Payload, bearer string) (Result, error) {
	if err := schema.Validate(OpCreate, p); err != nil {
		return Result{}, err
	}
	resp, err := s.backend.Do(ctx, backend.Request{
		Method: http.MethodPost,
		Path:   schema.Path,
		Body:   p,
		Bearer: bearer,
	})
	if err != nil {
		return Result{}, upstreamError("Failed to create "+schema.Singular, err)
	}
	s.invalidate(ctx, schema, p.String("accountId"))
	return Result{Status: http.StatusCreated, Body: resp.JSONBody()}, nil
}

// Update validates p and PUTs it to the item.
func (s *Service) Update(ctx context.Context, schema Schema, p models.Payload, bearer string) (Result, error) {
	if err := schema.Validate(OpUpdate, p); err != nil {
		return Result{}, err
	}
	resp, err := s.backend.Do(ctx, backend.Request{
		Method: http.MethodPut,
		Path:   itemPath(schema, p.String("id")),
		Body:   p,
		Bearer: bearer,
	})
	if err != nil {
		return Result{}, upstreamError("Failed to update "+schema.Singular, err)
	}
	s.invalidate(ctx, schema, p.String("accountId"))
	return Result{Status: http.StatusOK, Body: resp.JSONBody()}, nil
}

// Delete validates p and runs the delete strategies in order until one
// succeeds. When all of them fail the error lists every attempt.
func (s *Service) Delete(ctx context.Context, schema Schema, p models.Payload, bearer string) (Result, error) {
	if err := schema.Validate(OpDelete, p); err != nil {
		return Result{}, err
	}

	attempts := make([]Attempt, 0, len(strategies))
	for _, st := range strategies {
		req := st.build(schema, p, s.now().UTC())
		req.Bearer = bearer

		resp, err := s.backend.Do(ctx, req)
		if err == nil {
			s.log.Debug("delete succeeded",
				zap.String("resource", schema.Name),
				zap.String("strategy", string(st.name)),
				zap.Int("failed_attempts", len(attempts)))
			s.invalidate(ctx, schema, p.String("accountId"))
			return Result{Status: http.StatusOK, Body: resp.JSONBody(), Strategy: st.name}, nil
		}
		if ctx.Err() != nil {
			return Result{}, utils.Internal("Failed to delete "+schema.Singular, ctx.Err())
		}

		a := Attempt{Strategy: st.name, Method: req.Method, Path: req.Path, Error: err.Error()}
		var ue *backend.UpstreamError
		if errors.As(err, &ue) {
			a.Status = ue.Status
			a.Error = fmt.Sprint(ue.Details())
		}
		attempts = append(attempts, a)
		s.log.Warn("delete strategy failed",
			zap.String("resource", schema.Name),
			zap.String("strategy", string(st.name)),
			zap.Int("status", a.Status),
			zap.String("request_id", utils.RequestID(ctx)),
			zap.Error(err))
	}

	return Result{}, &utils.HTTPError{
		Code:    http.StatusInternalServerError,
		Message: "Failed to delete " + schema.Singular,
		Details: attempts,
	}
}

func (s *Service) invalidate(ctx context.Context, schema Schema, accountID string) {
	if s.cache == nil || accountID == "" {
		return
	}
	for _, prefix := range []string{
		cache.ListPrefix(schema.Name, accountID),
		cache.ListPrefix(cache.ActivitiesCollection, accountID),
	} {
		if err := s.cache.Invalidate(ctx, prefix); err != nil {
			s.log.Warn("cache invalidation failed", zap.String("prefix", prefix), zap.Error(err))
		}
	}
}

// upstreamError maps a backend failure to the response the caller sees:
// the backend status and body for non-2xx, 500 for transport failures.
func upstreamError(message string, err error) error {
	var ue *backend.UpstreamError
	if errors.As(err, &ue) {
		return &utils.HTTPError{Code: ue.Status, Message: message, Details: ue.Details()}
	}
	return utils.Internal(message, err)
}

func itemPath(schema Schema, id string) string {
	return schema.Path + "/" + url.PathEscape(id)
}
