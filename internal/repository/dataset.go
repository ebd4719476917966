package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// DatasetRepository — интерфейс доступа к датасетам и их жизненному циклу.
type DatasetRepository interface {
	// FilterPresent возвращает подмножество datasetIDs, существующих в архиве.
	FilterPresent(ctx context.Context, datasetIDs []string) ([]string, error)
	// LatestEvent возвращает последнее событие жизненного цикла датасета.
	LatestEvent(ctx context.Context, datasetID string) (string, error)
	// StableIDByReference возвращает стабильный идентификатор датасета
	// по внешнему reference id (алиас из sda.dataset_references).
	StableIDByReference(ctx context.Context, referenceID string) (string, error)
}

// datasetRepo — реализация DatasetRepository через pgx.
type datasetRepo struct {
	db DBTX
}

// NewDatasetRepository создаёт репозиторий датасетов.
func NewDatasetRepository(db DBTX) DatasetRepository {
	return &datasetRepo{db: db}
}

// FilterPresent возвращает датасеты из списка, у которых есть файлы в архиве.
// Порядок результата соответствует порядку в БД, дубликаты схлопываются.
func (r *datasetRepo) FilterPresent(ctx context.Context, datasetIDs []string) ([]string, error) {
	if len(datasetIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT DISTINCT dataset_id FROM local_ega_ebi.file_dataset
		WHERE dataset_id = ANY($1)`

	rows, err := r.db.Query(ctx, query, datasetIDs)
	if err != nil {
		return nil, fmt.Errorf("ошибка фильтрации датасетов: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ошибка сканирования датасета: %w", err)
		}
		result = append(result, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}
	return result, nil
}

// LatestEvent возвращает последнее событие журнала датасета или ErrNotFound.
func (r *datasetRepo) LatestEvent(ctx context.Context, datasetID string) (string, error) {
	query := `
		SELECT event FROM sda.dataset_event_log
		WHERE dataset_id = $1
		ORDER BY event_date DESC, id DESC
		LIMIT 1`

	var event string
	if err := r.db.QueryRow(ctx, query, datasetID).Scan(&event); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("ошибка получения события датасета: %w", err)
	}
	return event, nil
}

// StableIDByReference ищет датасет по внешнему reference id.
// Используется при экспорте: запрос может прийти с алиасом датасета.
func (r *datasetRepo) StableIDByReference(ctx context.Context, referenceID string) (string, error) {
	query := `
		SELECT d.stable_id FROM sda.datasets d
		JOIN sda.dataset_references dr ON dr.dataset_id = d.id
		WHERE dr.reference_id = $1`

	var stableID string
	if err := r.db.QueryRow(ctx, query, referenceID).Scan(&stableID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("ошибка поиска датасета по reference id: %w", err)
	}
	return stableID, nil
}
