package resource

import (
	"net/http"
	"net/url"
	"time"

	"github.com/harrylevesque/hivebff/internal/backend"
	"github.com/harrylevesque/hivebff/internal/models"
)

// Strategy names one way of asking the backend to delete an item.
type Strategy string

const (
	StrategyDirect     Strategy = "direct"
	StrategyBulkArray  Strategy = "bulk-array"
	StrategyBulkObject Strategy = "bulk-object"
	StrategySoftDelete Strategy = "soft-delete"
)

// Attempt records one failed delete strategy.
type Attempt struct {
	Strategy Strategy `json:"strategy"`
	Method   string   `json:"method"`
	Path     string   `json:"path"`
	Status   int      `json:"status,omitempty"`
	Error    string   `json:"error"`
}

type strategy struct {
	name  Strategy
	build func(schema Schema, p models.Payload, now time.Time) backend.Request
}

// strategies run in this order.
var strategies = []strategy{
	{name: StrategyDirect, build: directDelete},
	{name: StrategyBulkArray, build: bulkArrayDelete},
	{name: StrategyBulkObject, build: bulkObjectDelete},
	{name: StrategySoftDelete, build: softDelete},
}

func directDelete(schema Schema, p models.Payload, _ time.Time) backend.Request {
	return backend.Request{
		Method: http.MethodDelete,
		Path:   itemPath(schema, p.String("id")),
		Query: url.Values{
			"accountId": {p.String("accountId")},
			"userId":    {p.String("userId")},
		},
	}
}

func bulkArrayDelete(schema Schema, p models.Payload, _ time.Time) backend.Request {
	return backend.Request{
		Method: http.MethodDelete,
		Path:   schema.Path,
		Body:   []string{p.String("id")},
	}
}

func bulkObjectDelete(schema Schema, p models.Payload, _ time.Time) backend.Request {
	return backend.Request{
		Method: http.MethodDelete,
		Path:   schema.Path,
		Body: map[string]any{
			"ids":       []string{p.String("id")},
			"accountId": p.String("accountId"),
			"userId":    p.String("userId"),
		},
	}
}

// softDelete marks the item deleted with a PUT carrying only whitelisted fields.
func softDelete(schema Schema, p models.Payload, now time.Time) backend.Request {
	body := p.Pick(schema.SoftDeleteFields...)
	body["isDeleted"] = true
	body["deletedAt"] = now.Format(time.RFC3339)
	return backend.Request{
		Method: http.MethodPut,
		Path:   itemPath(schema, p.String("id")),
		Body:   body,
	}
}
