package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/harrylevesque/hivebff/internal/cache"
	"github.com/harrylevesque/hivebff/internal/resource"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeLister struct {
	mu     sync.Mutex
	bodies map[string]string
	fail   map[string]bool
	seen   []resource.ListQuery
}

func (f *fakeLister) Read(_ context.Context, q resource.ListQuery) (cache.Result, error) {
	f.mu.Lock()
	f.seen = append(f.seen, q)
	f.mu.Unlock()
	if f.fail[q.Collection] {
		return cache.Result{}, errors.New("backend unavailable")
	}
	body, ok := f.bodies[q.Collection]
	if !ok {
		body = `[]`
	}
	return cache.Result{Body: []byte(body)}, nil
}

func ids(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Type + "/" + h.ID
	}
	return out
}

func household() *fakeLister {
	return &fakeLister{bodies: map[string]string{
		"events": `[
			{"id":"e1","title":"Boiler service","description":"annual check","updatedAt":"2026-10-01T10:00:00Z"},
			{"id":"e2","title":"Dentist","description":"ask about the boiler receipt","updatedAt":"2026-10-05T10:00:00Z"}
		]`,
		"tasks": `{"data":[
			{"id":"t1","title":"Bleed boiler radiators","updatedAt":"2026-10-03T10:00:00Z"},
			{"id":"t2","title":"Mow lawn"}
		]}`,
		"notes": `{"items":[{"id":"n1","title":"Boiler","content":"pressure 1.5 bar"}]}`,
		"tiles": `[{"id":"h1","name":"Utility room","category":"room","description":"boiler and washer"}]`,
	}}
}

func TestSearchRanksTitleHitsFirst(t *testing.T) {
	svc := NewService(household(), nil)
	res, err := svc.Search(context.Background(), Query{AccountID: "acc", Text: "Boiler"})
	require.NoError(t, err)

	want := []string{"tasks/t1", "events/e1", "notes/n1", "events/e2", "tiles/h1"}
	if diff := cmp.Diff(want, ids(res.Results)); diff != "" {
		t.Errorf("ranking mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "Boiler", res.Query)
	assert.Empty(t, res.Partial)
}

func TestSearchRequiresEveryTerm(t *testing.T) {
	svc := NewService(household(), nil)
	res, err := svc.Search(context.Background(), Query{Text: "boiler ANNUAL"})
	require.NoError(t, err)
	assert.Equal(t, []string{"events/e1"}, ids(res.Results))
	assert.Equal(t, "annual check", res.Results[0].Snippet)
}

func TestSearchTypesAndScopeArePassedThrough(t *testing.T) {
	lister := household()
	svc := NewService(lister, nil)
	_, err := svc.Search(context.Background(), Query{AccountID: "acc", Text: "x", Types: []string{"notes"}, Bearer: "tok", Scope: "u-1"})
	require.NoError(t, err)

	require.Len(t, lister.seen, 1)
	assert.Equal(t, resource.ListQuery{Collection: "notes", AccountID: "acc", Bearer: "tok", Scope: "u-1"}, lister.seen[0])
}

func TestSearchPartialFailure(t *testing.T) {
	lister := household()
	lister.fail = map[string]bool{"tasks": true}
	lister.bodies["documents"] = `{"total":3}`

	res, err := NewService(lister, nil).Search(context.Background(), Query{Text: "boiler"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tasks", "documents"}, res.Partial)
	assert.NotContains(t, ids(res.Results), "tasks/t1")
}

func TestSearchAllSourcesFail(t *testing.T) {
	lister := &fakeLister{fail: map[string]bool{"events": true, "notes": true}}
	_, err := NewService(lister, nil).Search(context.Background(), Query{Text: "x", Types: []string{"events", "notes"}})
	assert.ErrorIs(t, err, ErrAllSourcesFailed)
}

func TestSearchLimit(t *testing.T) {
	var b strings.Builder
	b.WriteString("[")
	for i := 0; i < 150; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(`{"id":"n` + strings.Repeat("x", i%5) + `","title":"bins"}`)
	}
	b.WriteString("]")
	lister := &fakeLister{bodies: map[string]string{"notes": b.String()}}
	svc := NewService(lister, nil)

	res, err := svc.Search(context.Background(), Query{Text: "bins", Types: []string{"notes"}})
	require.NoError(t, err)
	assert.Len(t, res.Results, DefaultLimit)

	res, err = svc.Search(context.Background(), Query{Text: "bins", Types: []string{"notes"}, Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, res.Results, MaxLimit)
}

func TestSearchBlankQueryMatchesNothing(t *testing.T) {
	res, err := NewService(household(), nil).Search(context.Background(), Query{Text: "   "})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.NotNil(t, res.Results)
}

func TestParseTypes(t *testing.T) {
	types, err := ParseTypes("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTypes, types)

	types, err = ParseTypes(" Notes,members,notes ,")
	require.NoError(t, err)
	assert.Equal(t, []string{"notes", "members"}, types)

	_, err = ParseTypes("events,passwords")
	assert.Error(t, err)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, ClampLimit(0))
	assert.Equal(t, DefaultLimit, ClampLimit(-3))
	assert.Equal(t, 7, ClampLimit(7))
	assert.Equal(t, MaxLimit, ClampLimit(MaxLimit+1))
}

func TestSnippetWindowsLongBodies(t *testing.T) {
	body := strings.Repeat("filler ", 40) + "boiler pressure" + strings.Repeat(" tail", 40)
	s := snippet(body, []string{"boiler"})
	assert.Contains(t, s, "boiler pressure")
	assert.True(t, strings.HasPrefix(s, "…"))
	assert.True(t, strings.HasSuffix(s, "…"))
	assert.Equal(t, snippetRunes+2, len([]rune(s)))
}
