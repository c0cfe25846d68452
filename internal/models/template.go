package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Template is a catalog item. It is authored by an external collaborator and
// read-only to this service.
type Template struct {
	bun.BaseModel `bun:"table:templates"`

	ID            string                 `bun:"id,pk" json:"id"`
	Name          string                 `bun:"name,notnull" json:"name"`
	Description   string                 `bun:"description,nullzero" json:"description,omitempty"`
	Category      string                 `bun:"category,nullzero" json:"category,omitempty"`
	ImageURL      string                 `bun:"image_url,nullzero" json:"image_url,omitempty"`
	ThumbnailURL  string                 `bun:"thumbnail_url,nullzero" json:"thumbnail_url,omitempty"`
	BaseUnitPrice int64                  `bun:"base_unit_price,notnull,default:0" json:"base_unit_price"`
	TemplateData  map[string]interface{} `bun:"template_data,type:jsonb" json:"template_data"`
	IsActive      bool                   `bun:"is_active,notnull,default:true" json:"is_active"`
	SortOrder     int                    `bun:"sort_order,notnull,default:0" json:"sort_order"`
	CreatedAt     time.Time              `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time              `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// SafeArea is the printable region declared in a template's template_data.
type SafeArea struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// CanvasSize is the full drawable surface of a template.
type CanvasSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}
