// Package search matches a query against several account collections at once.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harrylevesque/hivebff/internal/cache"
	"github.com/harrylevesque/hivebff/internal/models"
	"github.com/harrylevesque/hivebff/internal/resource"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
	snippetRunes = 120
)

// DefaultTypes are searched when a query names none.
var DefaultTypes = []string{"events", "tasks", "notes", "tiles", "documents"}

// ErrAllSourcesFailed is returned when no collection could be read.
var ErrAllSourcesFailed = errors.New("all search sources failed")

// Lister reads one account collection. *resource.Lists satisfies it.
type Lister interface {
	Read(ctx context.Context, q resource.ListQuery) (cache.Result, error)
}

// Query is one search request.
type Query struct {
	AccountID string
	Text      string
	Types     []string
	Limit     int
	Bearer    string
	Scope     string
}

// Hit is one matching entity.
type Hit struct {
	Type      string     `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`

	titleHit bool
}

// Response is the search result.
type Response struct {
	Query   string   `json:"query"`
	Results []Hit    `json:"results"`
	Partial []string `json:"partial"`
}

// Service runs searches.
type Service struct {
	lists Lister
	log   *zap.Logger
}

func NewService(lists Lister, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{lists: lists, log: log}
}

type decoder func([]byte) ([]models.Searchable, error)

var decoders = map[string]decoder{
	"events":    decodeAs[models.Event],
	"tasks":     decodeAs[models.Task],
	"notes":     decodeAs[models.Note],
	"tiles":     decodeAs[models.Tile],
	"documents": decodeAs[models.Document],
	"members":   decodeAs[models.User],
}

func decodeAs[T models.Searchable](body []byte) ([]models.Searchable, error) {
	items, err := models.DecodeList[T](body)
	if err != nil {
		return nil, err
	}
	out := make([]models.Searchable, len(items))
	for i, it := range items {
		out[i] = it
	}
	return out, nil
}

// ParseTypes splits a comma list of types, rejecting unknown ones. An empty
// list yields DefaultTypes.
func ParseTypes(raw string) ([]string, error) {
	var types []string
	seen := map[string]bool{}
	for _, t := range strings.Split(raw, ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		if _, ok := decoders[t]; !ok {
			return nil, fmt.Errorf("unknown search type %q", t)
		}
		seen[t] = true
		types = append(types, t)
	}
	if len(types) == 0 {
		return append([]string(nil), DefaultTypes...), nil
	}
	return types, nil
}

// ClampLimit applies the default and maximum result counts.
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	default:
		return n
	}
}

// Search reads every requested collection concurrently and ranks the matches.
// Collections that fail are reported in Partial; if all fail the error is
// ErrAllSourcesFailed.
func (s *Service) Search(ctx context.Context, q Query) (Response, error) {
	terms := strings.Fields(strings.ToLower(q.Text))
	types := q.Types
	if len(types) == 0 {
		types = DefaultTypes
	}

	hits := make([][]Hit, len(types))
	failed := make([]bool, len(types))

	g, gctx := errgroup.WithContext(ctx)
	for i, typ := range types {
		i, typ := i, typ
		g.Go(func() error {
			dec, ok := decoders[typ]
			if !ok {
				failed[i] = true
				return nil
			}
			res, err := s.lists.Read(gctx, resource.ListQuery{
				Collection: typ,
				AccountID:  q.AccountID,
				Bearer:     q.Bearer,
				Scope:      q.Scope,
			})
			if err == nil {
				var items []models.Searchable
				items, err = dec(res.Body)
				if err == nil {
					hits[i] = match(typ, items, terms)
					return nil
				}
			}
			s.log.Warn("search source failed", zap.String("type", typ), zap.Error(err))
			failed[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Response{}, err
	}

	out := Response{Query: q.Text, Results: []Hit{}, Partial: []string{}}
	for i, typ := range types {
		if failed[i] {
			out.Partial = append(out.Partial, typ)
			continue
		}
		out.Results = append(out.Results, hits[i]...)
	}
	if len(out.Partial) == len(types) {
		return Response{}, ErrAllSourcesFailed
	}

	rank(out.Results)
	if limit := ClampLimit(q.Limit); len(out.Results) > limit {
		out.Results = out.Results[:limit]
	}
	return out, nil
}

func match(typ string, items []models.Searchable, terms []string) []Hit {
	var hits []Hit
	for _, it := range items {
		title, body := it.SearchFields()
		lt, lb := strings.ToLower(title), strings.ToLower(body)

		all, inTitle := true, true
		for _, term := range terms {
			t := strings.Contains(lt, term)
			if !t {
				inTitle = false
			}
			if !t && !strings.Contains(lb, term) {
				all = false
				break
			}
		}
		if !all || len(terms) == 0 {
			continue
		}

		h := Hit{Type: typ, ID: it.SearchID(), Title: title, Snippet: snippet(body, terms), titleHit: inTitle}
		if ts, ok := it.(models.Timestamped); ok {
			if u := ts.LastUpdated(); !u.IsZero() {
				h.UpdatedAt = &u
			}
		}
		hits = append(hits, h)
	}
	return hits
}

// rank orders title hits first, then newest, then by title.
func rank(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.titleHit != b.titleHit {
			return a.titleHit
		}
		at, bt := updated(a), updated(b)
		if !at.Equal(bt) {
			return at.After(bt)
		}
		if a.Title != b.Title {
			return strings.ToLower(a.Title) < strings.ToLower(b.Title)
		}
		return a.Type+a.ID < b.Type+b.ID
	})
}

func updated(h Hit) time.Time {
	if h.UpdatedAt == nil {
		return time.Time{}
	}
	return *h.UpdatedAt
}

// snippet returns up to snippetRunes of body around the first matching term.
func snippet(body string, terms []string) string {
	body = strings.Join(strings.Fields(body), " ")
	if body == "" {
		return ""
	}
	runes := []rune(body)
	if len(runes) <= snippetRunes {
		return body
	}

	start := 0
	lower := strings.ToLower(body)
	for _, term := range terms {
		if idx := strings.Index(lower, term); idx >= 0 {
			start = utf8.RuneCountInString(lower[:idx]) - snippetRunes/4
			break
		}
	}
	if start < 0 {
		start = 0
	}
	if start > len(runes)-snippetRunes {
		start = len(runes) - snippetRunes
	}
	out := string(runes[start : start+snippetRunes])
	if start > 0 {
		out = "…" + out
	}
	if start+snippetRunes < len(runes) {
		out += "…"
	}
	return out
}
