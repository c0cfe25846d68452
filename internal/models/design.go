package models

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type DesignStatus string

const (
	DesignDraft     DesignStatus = "draft"
	DesignQueued    DesignStatus = "queued"
	DesignRendering DesignStatus = "rendering"
	DesignReady     DesignStatus = "ready"
	DesignFailed    DesignStatus = "failed"
)

func ParseDesignStatus(s string) (DesignStatus, error) {
	switch DesignStatus(s) {
	case DesignDraft, DesignQueued, DesignRendering, DesignReady, DesignFailed:
		return DesignStatus(s), nil
	}
	return "", fmt.Errorf("unknown design status %q", s)
}

// Design is a versioned customization of a template. Once ready it is
// immutable; reorders produce new versions linked through OriginalDesignID.
type Design struct {
	bun.BaseModel `bun:"table:designs"`

	ID               string                 `bun:"id,pk" json:"id"`
	UserID           string                 `bun:"user_id,notnull" json:"user_id"`
	TemplateID       string                 `bun:"template_id,notnull" json:"template_id"`
	OriginalDesignID string                 `bun:"original_design_id,nullzero" json:"original_design_id,omitempty"`
	Name             string                 `bun:"name,nullzero" json:"name,omitempty"`
	Version          int                    `bun:"version,notnull,default:1" json:"version"`
	Params           map[string]interface{} `bun:"params,type:jsonb" json:"params"`
	ParamsCRC32      string                 `bun:"params_crc32,nullzero" json:"params_crc32,omitempty"`
	PreviewImageURL  string                 `bun:"preview_image_url,nullzero" json:"preview_image_url,omitempty"`
	FinalImageURL    string                 `bun:"final_image_url,nullzero" json:"final_image_url,omitempty"`
	SafeAreaWarning  bool                   `bun:"safe_area_warning,notnull,default:false" json:"safe_area_warning"`
	Status           DesignStatus           `bun:"status,notnull,default:'draft'" json:"status"`
	CreatedAt        time.Time              `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt        time.Time              `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}
