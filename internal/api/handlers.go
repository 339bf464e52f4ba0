package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/harrylevesque/hivebff/internal/auth"
	"github.com/harrylevesque/hivebff/internal/cache"
	"github.com/harrylevesque/hivebff/internal/mobile"
	"github.com/harrylevesque/hivebff/internal/models"
	"github.com/harrylevesque/hivebff/internal/resource"
	"github.com/harrylevesque/hivebff/internal/search"
	"github.com/harrylevesque/hivebff/internal/utils"
)

const (
	maxBodyBytes = 1 << 20

	defaultActivityLimit = 50
	maxActivityLimit     = 200

	// DeleteStrategyHeader names the delete strategy that succeeded.
	DeleteStrategyHeader = "X-Delete-Strategy"
	// CacheHeader reports hit, miss or stale for list reads.
	CacheHeader = "X-Cache"
)

func notFound(w http.ResponseWriter, r *http.Request) {
	utils.WriteError(w, utils.New(http.StatusNotFound, "Not found"))
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	utils.WriteError(w, utils.New(http.StatusMethodNotAllowed, "Method not allowed"))
}

// resourceStatus answers GET on a mutation route with a static health payload.
func (s *server) resourceStatus(schema resource.Schema) http.HandlerFunc {
	body := map[string]any{
		"status":   "ok",
		"resource": schema.Name,
		"methods":  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, body)
	}
}

func (s *server) mutate(schema resource.Schema, op resource.Op) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			utils.WriteError(w, utils.BadRequest("Invalid request body", err.Error()))
			return
		}
		p, err := models.DecodePayload(data)
		if err != nil {
			utils.WriteError(w, utils.BadRequest("Invalid JSON body", err.Error()))
			return
		}

		bearer := auth.PrincipalFrom(r.Context()).Bearer
		var res resource.Result
		switch op {
		case resource.OpCreate:
			res, err = s.resources.Create(r.Context(), schema, p, bearer)
		case resource.OpUpdate:
			res, err = s.resources.Update(r.Context(), schema, p, bearer)
		case resource.OpDelete:
			res, err = s.resources.Delete(r.Context(), schema, p, bearer)
		}
		if err != nil {
			s.logFailure(r, string(op)+" "+schema.Singular, err)
			utils.WriteError(w, err)
			return
		}
		if res.Strategy != "" {
			w.Header().Set(DeleteStrategyHeader, string(res.Strategy))
		}
		utils.WriteRawJSON(w, res.Status, res.Body)
	}
}

func (s *server) list(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	collection := vars["collection"]
	if !resource.IsCollection(collection) || collection == cache.ActivitiesCollection {
		notFound(w, r)
		return
	}
	res, err := s.readList(r, collection, vars["accountId"])
	if err != nil {
		s.logFailure(r, "list "+collection, err)
		utils.WriteError(w, err)
		return
	}
	setCacheHeaders(w, res)
	utils.WriteRawJSON(w, http.StatusOK, res.Body)
}

func (s *server) activities(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultActivityLimit, maxActivityLimit)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	res, err := s.readList(r, cache.ActivitiesCollection, mux.Vars(r)["accountId"])
	if err != nil {
		s.logFailure(r, "list activities", err)
		utils.WriteError(w, err)
		return
	}
	items, err := models.DecodeList[models.Activity](res.Body)
	if err != nil {
		utils.WriteError(w, &utils.HTTPError{Code: http.StatusBadGateway, Message: "Invalid activity feed", Details: err.Error()})
		return
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	if len(items) > limit {
		items = items[:limit]
	}
	setCacheHeaders(w, res)
	utils.WriteJSON(w, http.StatusOK, items)
}

func (s *server) readList(r *http.Request, collection, accountID string) (cache.Result, error) {
	p := auth.PrincipalFrom(r.Context())
	force, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	return s.lists.Read(r.Context(), resource.ListQuery{
		Collection: collection,
		AccountID:  accountID,
		Bearer:     p.Bearer,
		Scope:      p.CacheKey(),
		Force:      force,
	})
}

func setCacheHeaders(w http.ResponseWriter, res cache.Result) {
	state := "miss"
	switch {
	case res.Stale:
		state = "stale"
	case res.Hit:
		state = "hit"
	}
	w.Header().Set(CacheHeader, state)
	if !res.StoredAt.IsZero() {
		w.Header().Set("Last-Modified", res.StoredAt.UTC().Format(http.TimeFormat))
	}
}

func (s *server) searchHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var missing []string
	for _, f := range []string{"accountId", "q"} {
		if strings.TrimSpace(q.Get(f)) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		utils.WriteError(w, utils.MissingFields(missing))
		return
	}
	types, err := search.ParseTypes(q.Get("types"))
	if err != nil {
		utils.WriteError(w, utils.BadRequest("Invalid types", err.Error()))
		return
	}
	limit, err := parseLimit(q.Get("limit"), search.DefaultLimit, search.MaxLimit)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	p := auth.PrincipalFrom(r.Context())
	res, err := s.search.Search(r.Context(), search.Query{
		AccountID: q.Get("accountId"),
		Text:      strings.TrimSpace(q.Get("q")),
		Types:     types,
		Limit:     limit,
		Bearer:    p.Bearer,
		Scope:     p.CacheKey(),
	})
	if errors.Is(err, search.ErrAllSourcesFailed) {
		utils.WriteError(w, utils.New(http.StatusBadGateway, "Search unavailable"))
		return
	}
	if err != nil {
		s.logFailure(r, "search", err)
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, res)
}

func (s *server) handoff(w http.ResponseWriter, r *http.Request) {
	h, err := mobile.ParseHandoff(r.URL.Query())
	if err != nil {
		utils.WriteError(w, utils.MissingFields([]string{"token"}))
		return
	}
	sess := auth.Session{
		AccessToken:  h.AccessToken,
		RefreshToken: h.RefreshToken,
		UserID:       h.UserID,
		AccountID:    h.AccountID,
	}
	if err := s.sessions.Save(w, r, sess); err != nil {
		s.logFailure(r, "save hand-off session", err)
		utils.WriteError(w, utils.Internal("Failed to start session", err))
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	http.Redirect(w, r, h.Redirect, http.StatusSeeOther)
}

type sessionSummary struct {
	Authenticated bool       `json:"authenticated"`
	UserID        string     `json:"userId,omitempty"`
	AccountID     string     `json:"accountId,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

func (s *server) summarize(sess auth.Session) sessionSummary {
	out := sessionSummary{Authenticated: !sess.Empty(), UserID: sess.UserID, AccountID: sess.AccountID}
	if exp, ok := s.sessions.ExpiresAt(sess); ok {
		exp = exp.UTC()
		out.ExpiresAt = &exp
	}
	return out
}

func (s *server) getSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	utils.WriteJSON(w, http.StatusOK, s.summarize(s.sessions.Load(r)))
}

type sessionRequest struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
	AccountID    string `json:"accountId"`
}

func (s *server) createSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		utils.WriteError(w, utils.BadRequest("Invalid JSON body", err.Error()))
		return
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		utils.WriteError(w, utils.MissingFields([]string{"accessToken"}))
		return
	}
	sess := auth.Session{
		AccessToken:  strings.TrimSpace(req.AccessToken),
		RefreshToken: strings.TrimSpace(req.RefreshToken),
		UserID:       req.UserID,
		AccountID:    req.AccountID,
	}
	if err := s.sessions.Save(w, r, sess); err != nil {
		s.logFailure(r, "save session", err)
		utils.WriteError(w, utils.Internal("Failed to start session", err))
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	utils.WriteJSON(w, http.StatusOK, s.summarize(sess))
}

func (s *server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Clear(w, r); err != nil {
		s.logFailure(r, "clear session", err)
		utils.WriteError(w, utils.Internal("Failed to clear session", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseLimit(raw string, def, ceiling int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, utils.BadRequest("Invalid limit", "limit must be a positive integer")
	}
	if n > ceiling {
		n = ceiling
	}
	return n, nil
}

func (s *server) logFailure(r *http.Request, what string, err error) {
	he := utils.AsHTTPError(err)
	fields := []zap.Field{
		zap.String("op", what),
		zap.Int("status", he.Code),
		zap.String("request_id", utils.RequestID(r.Context())),
		zap.Error(err),
	}
	if he.Code >= http.StatusInternalServerError {
		s.log.Error("request failed", fields...)
		return
	}
	s.log.Info("request rejected", fields...)
}
