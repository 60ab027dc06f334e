package protocol

import (
	"time"

	"somnarium.ai/internal/concoction"
)

// GET /health
type HealthResponse struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
}

// POST /concoctions. Seeds is optional; when present it carries one seed per item.
type CreateConcoctionRequest struct {
	Items []string  `json:"items"`
	Seeds []float64 `json:"seeds,omitempty"`
}

type CreateConcoctionResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
}

type ItemDTO struct {
	Slug string  `json:"slug"`
	Seed float64 `json:"seed"`
}

// GET /concoctions/{code}; GET /concoctions returns a JSON array of these.
type ConcoctionDTO struct {
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"createdAt"`
	Items     []ItemDTO `json:"items"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func FromConcoction(c concoction.Concoction) ConcoctionDTO {
	out := ConcoctionDTO{Code: c.Code, CreatedAt: c.CreatedAt.UTC(), Items: make([]ItemDTO, len(c.Items))}
	for i, it := range c.Items {
		out.Items[i] = ItemDTO{Slug: it.Slug, Seed: it.Seed}
	}
	return out
}

func (d ConcoctionDTO) Concoction() concoction.Concoction {
	c := concoction.Concoction{Code: d.Code, CreatedAt: d.CreatedAt, Items: make([]concoction.Item, len(d.Items))}
	for i, it := range d.Items {
		c.Items[i] = concoction.Item{Slug: it.Slug, Seed: it.Seed}
	}
	return c
}

// SUBSCRIBE (client -> server). First message on the feed connection.
// Backlog 0 asks for the server default, a negative value for none.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Backlog         int    `json:"backlog"`
}

// BACKLOG (server -> client). Recent concoctions, newest first.
type BacklogMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Concoctions     []ConcoctionDTO `json:"concoctions"`
}

// CONCOCTION_CREATED (server -> client).
type ConcoctionCreatedMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	Seq             uint64        `json:"seq"`
	Concoction      ConcoctionDTO `json:"concoction"`
}
