package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"social-brand-analyzer/pkg/models"
)

// AnalysisRow is a row of the analyses table. The document parts are kept
// as raw JSON.
type AnalysisRow struct {
	ID              string    `db:"id"`
	Status          string    `db:"status"`
	Progress        int       `db:"progress"`
	Message         string    `db:"message"`
	BrandsData      []byte    `db:"brands_data"`
	UniversalFilter []byte    `db:"universal_filter"`
	ReferenceImages []byte    `db:"reference_images"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// BrandConfigRow is a row of the brand_configs table
type BrandConfigRow struct {
	AnalysisID   string   `db:"analysis_id"`
	Brand        string   `db:"brand"`
	InstagramURL string   `db:"instagram_url"`
	FacebookURL  string   `db:"facebook_url"`
	Keywords     []string `db:"keywords"`
}

func newAnalysisRow(result *models.AnalysisResult) (*AnalysisRow, error) {
	row := &AnalysisRow{
		ID:        result.AnalysisID,
		Status:    result.Status,
		Progress:  result.Progress,
		Message:   result.Message,
		CreatedAt: result.CreatedAt,
		UpdatedAt: result.UpdatedAt,
	}

	brands := result.BrandsData
	if brands == nil {
		brands = map[string]models.BrandData{}
	}

	var err error
	if row.BrandsData, err = json.Marshal(brands); err != nil {
		return nil, fmt.Errorf("failed to encode brands data: %w", err)
	}
	if result.UniversalFilter != nil {
		if row.UniversalFilter, err = json.Marshal(result.UniversalFilter); err != nil {
			return nil, fmt.Errorf("failed to encode universal filter: %w", err)
		}
	}
	if len(result.ReferenceImages) > 0 {
		if row.ReferenceImages, err = json.Marshal(result.ReferenceImages); err != nil {
			return nil, fmt.Errorf("failed to encode reference images: %w", err)
		}
	}
	return row, nil
}

func (r *AnalysisRow) toResult() (*models.AnalysisResult, error) {
	result := &models.AnalysisResult{
		AnalysisID: r.ID,
		Status:     r.Status,
		Progress:   r.Progress,
		Message:    r.Message,
		BrandsData: map[string]models.BrandData{},
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}

	if len(r.BrandsData) > 0 {
		if err := json.Unmarshal(r.BrandsData, &result.BrandsData); err != nil {
			return nil, fmt.Errorf("failed to decode brands data of %s: %w", r.ID, err)
		}
	}
	if len(r.UniversalFilter) > 0 {
		var filter models.TimeFilter
		if err := json.Unmarshal(r.UniversalFilter, &filter); err != nil {
			return nil, fmt.Errorf("failed to decode universal filter of %s: %w", r.ID, err)
		}
		result.UniversalFilter = &filter
	}
	if len(r.ReferenceImages) > 0 {
		if err := json.Unmarshal(r.ReferenceImages, &result.ReferenceImages); err != nil {
			return nil, fmt.Errorf("failed to decode reference images of %s: %w", r.ID, err)
		}
	}
	return result, nil
}

// nullJSON maps an empty document to SQL NULL
func nullJSON(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
