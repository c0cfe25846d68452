package design

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"printmill/internal/logger"
	"printmill/internal/models"
)

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrTemplateInactive = errors.New("template is not active")
	ErrDesignNotFound   = errors.New("design not found")
	ErrInvalidParams    = errors.New("invalid design params")
	ErrInvalidLineage   = errors.New("invalid design lineage")
)

type DBLayer interface {
	GetTemplateByID(ctx context.Context, id string) (*models.Template, error)
	ListActiveTemplates(ctx context.Context) ([]models.Template, error)
	GetDesignByID(ctx context.Context, id string) (*models.Design, error)
	FindReadyDesignByContent(ctx context.Context, userID, templateID, crc string) (*models.Design, error)
	CreateDesign(ctx context.Context, d *models.Design) error
	ListDesignsByUser(ctx context.Context, userID string) ([]models.Design, error)
}

type Service struct {
	db     DBLayer
	logger *logger.Logger
}

func NewService(db DBLayer, log *logger.Logger) *Service {
	return &Service{db: db, logger: log}
}

// CreateDesign canonicalizes params, hashes them, and either returns an
// existing ready design with the same content (dedup) or creates a new draft.
// New versions of a parent always carry version = parent.version + 1, so
// lineage chains are acyclic by construction.
func (s *Service) CreateDesign(ctx context.Context, userID, templateID, name string, params map[string]interface{}, parentDesignID string) (*models.Design, error) {
	tmpl, err := s.db.GetTemplateByID(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, templateID)
	}
	if !tmpl.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrTemplateInactive, templateID)
	}

	warning, err := checkSafeArea(tmpl, params)
	if err != nil {
		return nil, err
	}

	crc, err := ParamsCRC32(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	// Identical customization already rendered for this user and template:
	// reuse it instead of re-queuing render work.
	if existing, err := s.db.FindReadyDesignByContent(ctx, userID, templateID, crc); err == nil && existing != nil {
		s.logger.Info("DESIGN", fmt.Sprintf("Deduplicated design for user %s (crc %s), reusing %s", userID, crc, existing.ID))
		return existing, nil
	}

	version := 1
	originalID := ""
	if parentDesignID != "" {
		parent, err := s.db.GetDesignByID(ctx, parentDesignID)
		if err != nil {
			return nil, fmt.Errorf("%w: parent %s not found", ErrInvalidLineage, parentDesignID)
		}
		if parent.UserID != userID || parent.TemplateID != templateID {
			return nil, fmt.Errorf("%w: parent %s belongs to a different user or template", ErrInvalidLineage, parentDesignID)
		}
		version = parent.Version + 1
		originalID = parent.ID
	}

	d := &models.Design{
		ID:               uuid.NewString(),
		UserID:           userID,
		TemplateID:       templateID,
		OriginalDesignID: originalID,
		Name:             name,
		Version:          version,
		Params:           params,
		ParamsCRC32:      crc,
		SafeAreaWarning:  warning,
		Status:           models.DesignDraft,
		CreatedAt:        time.Now(),
	}

	if err := s.db.CreateDesign(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to create design: %w", err)
	}

	s.logger.Info("DESIGN", fmt.Sprintf("Created design %s v%d for user %s (crc %s)", d.ID, d.Version, userID, crc))
	return d, nil
}

func (s *Service) GetDesign(ctx context.Context, id string) (*models.Design, error) {
	d, err := s.db.GetDesignByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDesignNotFound, id)
	}
	return d, nil
}

func (s *Service) ListDesigns(ctx context.Context, userID string) ([]models.Design, error) {
	return s.db.ListDesignsByUser(ctx, userID)
}

// GetTemplate serves the read-only catalog. Inactive templates stay visible
// so existing designs keep resolving, but new designs cannot use them.
func (s *Service) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	tmpl, err := s.db.GetTemplateByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return tmpl, nil
}

func (s *Service) ListTemplates(ctx context.Context) ([]models.Template, error) {
	return s.db.ListActiveTemplates(ctx)
}

// checkSafeArea validates design elements against the template's canvas and
// safe area. Elements off the canvas are a hard failure; elements that merely
// cross the safe-area boundary are advisory and only set the warning flag.
func checkSafeArea(tmpl *models.Template, params map[string]interface{}) (bool, error) {
	canvas, hasCanvas := boxFromDoc(tmpl.TemplateData, "canvas")
	safe, hasSafe := boxFromDoc(tmpl.TemplateData, "safe_area")

	elements, ok := params["elements"].([]interface{})
	if !ok {
		// Params without positioned elements have nothing to check.
		return false, nil
	}

	warning := false
	for i, raw := range elements {
		el, ok := raw.(map[string]interface{})
		if !ok {
			return false, fmt.Errorf("%w: element %d is not an object", ErrInvalidParams, i)
		}
		x, y := numField(el, "x"), numField(el, "y")
		w, h := numField(el, "width"), numField(el, "height")
		if w < 0 || h < 0 {
			return false, fmt.Errorf("%w: element %d has negative size", ErrInvalidParams, i)
		}
		if hasCanvas && (x < 0 || y < 0 || x+w > canvas.Width || y+h > canvas.Height) {
			return false, fmt.Errorf("%w: element %d is outside the canvas", ErrInvalidParams, i)
		}
		if hasSafe && (x < safe.X || y < safe.Y || x+w > safe.X+safe.Width || y+h > safe.Y+safe.Height) {
			warning = true
		}
	}
	return warning, nil
}

type box struct {
	X, Y, Width, Height float64
}

func boxFromDoc(doc map[string]interface{}, key string) (box, bool) {
	raw, ok := doc[key].(map[string]interface{})
	if !ok {
		return box{}, false
	}
	return box{
		X:      numField(raw, "x"),
		Y:      numField(raw, "y"),
		Width:  numField(raw, "width"),
		Height: numField(raw, "height"),
	}, true
}

func numField(doc map[string]interface{}, key string) float64 {
	switch v := doc[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	}
	return 0
}
