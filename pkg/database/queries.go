package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"social-brand-analyzer/pkg/models"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned when an analysis does not exist
var ErrNotFound = errors.New("analysis not found")

// Store persists analysis documents in PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates a store on db
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveAnalysis inserts or updates an analysis document
func (s *Store) SaveAnalysis(ctx context.Context, result *models.AnalysisResult) error {
	row, err := newAnalysisRow(result)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO analyses (
			id, status, progress, message, brands_data,
			universal_filter, reference_images, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			progress = EXCLUDED.progress,
			message = EXCLUDED.message,
			brands_data = EXCLUDED.brands_data,
			universal_filter = EXCLUDED.universal_filter,
			reference_images = EXCLUDED.reference_images,
			updated_at = EXCLUDED.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		row.ID, row.Status, row.Progress, row.Message, string(row.BrandsData),
		nullJSON(row.UniversalFilter), nullJSON(row.ReferenceImages),
		row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		log.Error().Err(err).Str("analysis_id", row.ID).Msg("failed to upsert analysis")
		return fmt.Errorf("failed to upsert analysis: %w", err)
	}

	log.Debug().Str("analysis_id", row.ID).Str("status", row.Status).Int("progress", row.Progress).Msg("saved analysis")
	return nil
}

// GetAnalysis retrieves an analysis document by ID
func (s *Store) GetAnalysis(ctx context.Context, analysisID string) (*models.AnalysisResult, error) {
	query := `
		SELECT id, status, progress, message, brands_data,
		       universal_filter, reference_images, created_at, updated_at
		FROM analyses
		WHERE id = $1
	`

	var row AnalysisRow
	err := s.db.QueryRowContext(ctx, query, analysisID).Scan(
		&row.ID, &row.Status, &row.Progress, &row.Message, &row.BrandsData,
		&row.UniversalFilter, &row.ReferenceImages, &row.CreatedAt, &row.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	return row.toResult()
}

// ListRecentAnalyses returns summaries of the most recently updated analyses
func (s *Store) ListRecentAnalyses(ctx context.Context, limit int) ([]models.AnalysisSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, status, progress, message,
		       (SELECT COUNT(*) FROM jsonb_object_keys(brands_data)) AS brand_count,
		       created_at, updated_at
		FROM analyses
		ORDER BY updated_at DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	summaries := []models.AnalysisSummary{}
	for rows.Next() {
		var summary models.AnalysisSummary
		if err := rows.Scan(
			&summary.AnalysisID, &summary.Status, &summary.Progress, &summary.Message,
			&summary.BrandCount, &summary.CreatedAt, &summary.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan analysis summary: %w", err)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analyses: %w", err)
	}

	return summaries, nil
}

// DeleteAnalysis removes an analysis and its brand configs. It reports
// whether a row existed.
func (s *Store) DeleteAnalysis(ctx context.Context, analysisID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM analyses WHERE id = $1`, analysisID)
	if err != nil {
		return false, fmt.Errorf("failed to delete analysis: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// DeleteAnalysesOlderThan removes analyses not updated since cutoff and
// returns their IDs
func (s *Store) DeleteAnalysesOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `DELETE FROM analyses WHERE updated_at < $1 RETURNING id`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to delete old analyses: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan deleted analysis id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	log.Info().Int("count", len(ids)).Time("cutoff", cutoff).Msg("deleted old analyses")
	return ids, nil
}

// SaveBrandConfigs stores the brand configuration of an analysis
func (s *Store) SaveBrandConfigs(ctx context.Context, analysisID string, brands map[string]models.BrandConfig) error {
	if len(brands) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO brand_configs (
			analysis_id, brand, instagram_url, facebook_url, keywords
		) VALUES (
			$1, $2, $3, $4, $5
		)
		ON CONFLICT (analysis_id, brand) DO UPDATE SET
			instagram_url = EXCLUDED.instagram_url,
			facebook_url = EXCLUDED.facebook_url,
			keywords = EXCLUDED.keywords
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	names := make([]string, 0, len(brands))
	for name := range brands {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cfg := brands[name]
		_, err = stmt.ExecContext(ctx, analysisID, name, cfg.InstagramURL, cfg.FacebookURL, pq.Array(cfg.Keywords))
		if err != nil {
			return fmt.Errorf("failed to execute statement for brand %s: %w", name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().Str("analysis_id", analysisID).Int("count", len(brands)).Msg("saved brand configs")
	return nil
}

// GetBrandConfigs loads the brand configuration of an analysis
func (s *Store) GetBrandConfigs(ctx context.Context, analysisID string) (map[string]models.BrandConfig, error) {
	query := `
		SELECT analysis_id, brand, instagram_url, facebook_url, keywords
		FROM brand_configs
		WHERE analysis_id = $1
	`

	rows, err := s.db.QueryContext(ctx, query, analysisID)
	if err != nil {
		return nil, fmt.Errorf("failed to get brand configs: %w", err)
	}
	defer rows.Close()

	brands := make(map[string]models.BrandConfig)
	for rows.Next() {
		var row BrandConfigRow
		if err := rows.Scan(&row.AnalysisID, &row.Brand, &row.InstagramURL, &row.FacebookURL, pq.Array(&row.Keywords)); err != nil {
			return nil, fmt.Errorf("failed to scan brand config: %w", err)
		}
		brands[row.Brand] = models.BrandConfig{
			InstagramURL: row.InstagramURL,
			FacebookURL:  row.FacebookURL,
			Keywords:     row.Keywords,
		}
	}
	return brands, rows.Err()
}
