package design

import (
	"context"
	"errors"
	"testing"

	"printmill/internal/logger"
	"printmill/internal/models"
)

// Mock implementations for testing

type MockDesignDB struct {
	templates map[string]*models.Template
	designs   map[string]*models.Design
}

func NewMockDesignDB() *MockDesignDB {
	return &MockDesignDB{
		templates: make(map[string]*models.Template),
		designs:   make(map[string]*models.Design),
	}
}

func (m *MockDesignDB) GetTemplateByID(_ context.Context, id string) (*models.Template, error) {
	tmpl, ok := m.templates[id]
	if !ok {
		return nil, errors.New("template not found")
	}
	return tmpl, nil
}

func (m *MockDesignDB) ListActiveTemplates(_ context.Context) ([]models.Template, error) {
	var out []models.Template
	for _, tmpl := range m.templates {
		if tmpl.IsActive {
			out = append(out, *tmpl)
		}
	}
	return out, nil
}

func (m *MockDesignDB) GetDesignByID(_ context.Context, id string) (*models.Design, error) {
	d, ok := m.designs[id]
	if !ok {
		return nil, errors.New("design not found")
	}
	return d, nil
}

func (m *MockDesignDB) FindReadyDesignByContent(_ context.Context, userID, templateID, crc string) (*models.Design, error) {
	for _, d := range m.designs {
		if d.UserID == userID && d.TemplateID == templateID && d.ParamsCRC32 == crc && d.Status == models.DesignReady {
			return d, nil
		}
	}
	return nil, errors.New("no matching design")
}

func (m *MockDesignDB) CreateDesign(_ context.Context, d *models.Design) error {
	m.designs[d.ID] = d
	return nil
}

func (m *MockDesignDB) ListDesignsByUser(_ context.Context, userID string) ([]models.Design, error) {
	var out []models.Design
	for _, d := range m.designs {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func testTemplate() *models.Template {
	return &models.Template{
		ID:            "tmpl-1",
		Name:          "Mug classic",
		BaseUnitPrice: 3000,
		IsActive:      true,
		TemplateData: map[string]interface{}{
			"canvas":    map[string]interface{}{"width": 1000.0, "height": 1000.0},
			"safe_area": map[string]interface{}{"x": 100.0, "y": 100.0, "width": 800.0, "height": 800.0},
		},
	}
}

func newTestService(db DBLayer) *Service {
	return NewService(db, logger.NewLogger())
}

func TestCreateDesignFirstVersion(t *testing.T) {
	db := NewMockDesignDB()
	db.templates["tmpl-1"] = testTemplate()
	svc := newTestService(db)

	d, err := svc.CreateDesign(context.Background(), "user-1", "tmpl-1", "my mug", map[string]interface{}{"color": "red"}, "")
	if err != nil {
		t.Fatalf("CreateDesign failed: %v", err)
	}
	if d.Version != 1 {
		t.Errorf("expected version 1, got %d", d.Version)
	}
	if d.Status != models.DesignDraft {
		t.Errorf("expected draft status, got %s", d.Status)
	}
	if d.ParamsCRC32 == "" {
		t.Error("expected a content hash")
	}
	if d.OriginalDesignID != "" {
		t.Errorf("expected no lineage pointer, got %s", d.OriginalDesignID)
	}
}

func TestCreateDesignDeduplicatesReadyContent(t *testing.T) {
	db := NewMockDesignDB()
	db.templates["tmpl-1"] = testTemplate()
	svc := newTestService(db)

	params := map[string]interface{}{"color": "red"}

	first, err := svc.CreateDesign(context.Background(), "user-1", "tmpl-1", "mug", params, "")
	if err != nil {
		t.Fatalf("CreateDesign failed: %v", err)
	}

	// Draft designs are not dedup targets: same params again makes a new draft.
	second, err := svc.CreateDesign(context.Background(), "user-1", "tmpl-1", "mug", params, "")
	if err != nil {
		t.Fatalf("CreateDesign failed: %v", err)
	}
	if second.ID == first.ID {
		t.Error("draft design must not be returned as a dedup hit")
	}

	// Once ready, identical params resolve to the existing design.
	first.Status = models.DesignReady
	third, err := svc.CreateDesign(context.Background(), "user-1", "tmpl-1", "mug", params, "")
	if err != nil {
		t.Fatalf("CreateDesign failed: %v", err)
	}
	if third.ID != first.ID {
		t.Errorf("expected dedup to return %s, got %s", first.ID, third.ID)
	}
}

func TestCreateDesignLineage(t *testing.T) {
	db := NewMockDesignDB()
	db.templates["tmpl-1"] = testTemplate()
	svc := newTestService(db)

	parent, err := svc.CreateDesign(context.Background(), "user-1", "tmpl-1", "v1", map[string]interface{}{"color": "red"}, "")
	if err != nil {
		t.Fatalf("CreateDesign failed: %v", err)
	}

	child, err := svc.CreateDesign(context.Background(), "user-1", "tmpl-1", "v2", map[string]interface{}{"color": "blue"}, parent.ID)
	if err != nil {
		t.Fatalf("CreateDesign failed: %v", err)
	}
	if child.Version != parent.Version+1 {
		t.Errorf("expected version %d, got %d", parent.Version+1, child.Version)
	}
	if child.OriginalDesignID != parent.ID {
		t.Errorf("expected lineage pointer to %s, got %s", parent.ID, child.OriginalDesignID)
	}

	// Lineage across users is rejected.
	_, err = svc.CreateDesign(context.Background(), "user-2", "tmpl-1", "stolen", map[string]interface{}{"color": "green"}, parent.ID)
	if !errors.Is(err, ErrInvalidLineage) {
		t.Errorf("expected ErrInvalidLineage, got %v", err)
	}
}

func TestCreateDesignSafeArea(t *testing.T) {
	db := NewMockDesignDB()
	db.templates["tmpl-1"] = testTemplate()
	svc := newTestService(db)

	// Element crossing the safe area boundary: advisory warning only.
	d, err := svc.CreateDesign(context.Background(), "user-1", "tmpl-1", "edge", map[string]interface{}{
		"elements": []interface{}{
			map[string]interface{}{"x": 50.0, "y": 50.0, "width": 100.0, "height": 100.0},
		},
	}, "")
	if err != nil {
		t.Fatalf("CreateDesign failed: %v", err)
	}
	if !d.SafeAreaWarning {
		t.Error("expected safe_area_warning to be set")
	}

	// Element outside the canvas: hard validation failure.
	_, err = svc.CreateDesign(context.Background(), "user-1", "tmpl-1", "off", map[string]interface{}{
		"elements": []interface{}{
			map[string]interface{}{"x": 950.0, "y": 0.0, "width": 100.0, "height": 100.0},
		},
	}, "")
	if !errors.Is(err, ErrInvalidParams) {
		t.Errorf("expected ErrInvalidParams, got %v", err)
	}
}

func TestCreateDesignInactiveTemplate(t *testing.T) {
	db := NewMockDesignDB()
	tmpl := testTemplate()
	tmpl.IsActive = false
	db.templates[tmpl.ID] = tmpl
	svc := newTestService(db)

	_, err := svc.CreateDesign(context.Background(), "user-1", "tmpl-1", "x", map[string]interface{}{"color": "red"}, "")
	if !errors.Is(err, ErrTemplateInactive) {
		t.Errorf("expected ErrTemplateInactive, got %v", err)
	}
}
