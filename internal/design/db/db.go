package db

import (
	"context"

	"github.com/uptrace/bun"

	"printmill/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- TEMPLATES ----------------

func (d *DB) GetTemplateByID(ctx context.Context, id string) (*models.Template, error) {
	var tmpl models.Template
	err := d.Bun.NewSelect().
		Model(&tmpl).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// ListActiveTemplates returns the orderable catalog.
func (d *DB) ListActiveTemplates(ctx context.Context) ([]models.Template, error) {
	var templates []models.Template
	err := d.Bun.NewSelect().
		Model(&templates).
		Where("is_active = ?", true).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return templates, nil
}

// ---------------- DESIGNS ----------------

func (d *DB) GetDesignByID(ctx context.Context, id string) (*models.Design, error) {
	var design models.Design
	err := d.Bun.NewSelect().
		Model(&design).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &design, nil
}

// FindReadyDesignByContent looks up an already-rendered design with the same
// content hash for dedup of identical resubmissions.
func (d *DB) FindReadyDesignByContent(ctx context.Context, userID, templateID, crc string) (*models.Design, error) {
	var design models.Design
	err := d.Bun.NewSelect().
		Model(&design).
		Where("user_id = ?", userID).
		Where("template_id = ?", templateID).
		Where("params_crc32 = ?", crc).
		Where("status = ?", models.DesignReady).
		Order("version DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &design, nil
}

func (d *DB) CreateDesign(ctx context.Context, design *models.Design) error {
	_, err := d.Bun.NewInsert().Model(design).Exec(ctx)
	return err
}

func (d *DB) ListDesignsByUser(ctx context.Context, userID string) ([]models.Design, error) {
	var designs []models.Design
	err := d.Bun.NewSelect().
		Model(&designs).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return designs, nil
}
