// metadata.go — сервис метаданных: перечисление доступных датасетов
// и файлов датасета. Множество авторизованных датасетов передаётся явно.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigkaa/goarchive/doa-module/internal/domain/model"
	"github.com/bigkaa/goarchive/doa-module/internal/repository"
)

// MetadataService — сервис метаданных датасетов и файлов.
type MetadataService struct {
	files    repository.FileRepository
	datasets repository.DatasetRepository
	logger   *slog.Logger
}

// NewMetadataService создаёт сервис метаданных.
func NewMetadataService(
	files repository.FileRepository,
	datasets repository.DatasetRepository,
	logger *slog.Logger,
) *MetadataService {
	return &MetadataService{
		files:    files,
		datasets: datasets,
		logger:   logger.With(slog.String("component", "metadata_service")),
	}
}

// Datasets возвращает авторизованные датасеты, у которых есть файлы в архиве.
// Датасеты из credential, отсутствующие в архиве, отбрасываются.
func (s *MetadataService) Datasets(ctx context.Context, authorized []string) ([]string, error) {
	present, err := s.datasets.FilterPresent(ctx, authorized)
	if err != nil {
		return nil, fmt.Errorf("фильтрация датасетов: %w", err)
	}
	return present, nil
}

// DatasetFiles возвращает файлы датасета в статусе ready.
// Датасет должен входить в авторизованное множество, иначе ErrPermissionDenied.
func (s *MetadataService) DatasetFiles(ctx context.Context, authorized []string, datasetID string) ([]*model.ArchivedFile, error) {
	granted := false
	for _, id := range authorized {
		if id == datasetID {
			granted = true
			break
		}
	}
	if !granted {
		return nil, ErrPermissionDenied
	}

	files, err := s.files.ListByDataset(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("получение файлов датасета %s: %w", datasetID, err)
	}
	return files, nil
}
