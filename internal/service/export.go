// export.go — сервис асинхронного экспорта в outbox пользователя.
// Запросы приходят из очереди exportRequests; выдача всегда в формате
// crypt4gh под ключ получателя. Ошибка одного файла прерывает оставшиеся
// файлы задания, уже записанные файлы не откатываются.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goarchive/doa-module/internal/auth"
	"github.com/bigkaa/goarchive/doa-module/internal/domain/model"
	"github.com/bigkaa/goarchive/doa-module/internal/repository"
	"github.com/bigkaa/goarchive/doa-module/internal/storage"
)

// Prometheus-метрики экспорта.
var (
	exportJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "doa_export_jobs_total",
		Help: "Общее количество заданий экспорта (по исходу).",
	}, []string{"outcome"})

	exportFilesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "doa_export_files_total",
		Help: "Общее количество файлов, обработанных экспортом (по статусу).",
	}, []string{"status"})
)

// Authorizer — извлечение авторизованных датасетов из credential.
type Authorizer interface {
	GetDatasetIDs(ctx context.Context, credential string) ([]string, error)
}

// ExportService — сервис асинхронного экспорта.
type ExportService struct {
	authorizer Authorizer
	files      repository.FileRepository
	datasets   repository.DatasetRepository
	streaming  *StreamingService
	outbox     storage.OutboxWriter
	logger     *slog.Logger
}

// NewExportService создаёт сервис экспорта.
func NewExportService(
	authorizer Authorizer,
	files repository.FileRepository,
	datasets repository.DatasetRepository,
	streaming *StreamingService,
	outbox storage.OutboxWriter,
	logger *slog.Logger,
) *ExportService {
	return &ExportService{
		authorizer: authorizer,
		files:      files,
		datasets:   datasets,
		streaming:  streaming,
		outbox:     outbox,
		logger:     logger.With(slog.String("component", "export_service")),
	}
}

// Handle обрабатывает один запрос экспорта.
//
// Pipeline:
//  1. sub из токена (без проверки подписи — только компонент пути outbox)
//  2. Авторизация credential → множество датасетов
//  3. Датасет: последнее событие жизненного цикла должно быть released
//     (неизвестный идентификатор повторно ищется как reference-алиас);
//     файл: только permission gate
//  4. Каждый файл пересобирается под ключ получателя и пишется в outbox
//
// Ошибка возвращается вызывающему только для логирования: сообщение очереди
// подтверждается независимо от исхода (at-most-one-attempt).
func (es *ExportService) Handle(ctx context.Context, req model.ExportRequest) error {
	user, err := auth.SubjectFromToken(req.JWTToken)
	if err != nil {
		exportJobsTotal.WithLabelValues("unauthorized").Inc()
		return fmt.Errorf("извлечение sub из токена: %w", err)
	}

	datasetIDs, err := es.authorizer.GetDatasetIDs(ctx, req.JWTToken)
	if err != nil {
		exportJobsTotal.WithLabelValues("unauthorized").Inc()
		return fmt.Errorf("авторизация запроса экспорта: %w", err)
	}

	if req.DatasetID != "" {
		err = es.exportDataset(ctx, user, datasetIDs, req)
	} else {
		err = es.exportFile(ctx, user, datasetIDs, req.FileID, req)
	}
	if err != nil {
		exportJobsTotal.WithLabelValues("error").Inc()
		return err
	}

	exportJobsTotal.WithLabelValues("success").Inc()
	return nil
}

// exportDataset экспортирует все ready-файлы датасета.
// Ошибка файла прерывает оставшиеся; уже записанные файлы остаются в outbox.
func (es *ExportService) exportDataset(ctx context.Context, user string, datasetIDs []string, req model.ExportRequest) error {
	datasetID, err := es.resolveReleased(ctx, req.DatasetID)
	if err != nil {
		return err
	}

	files, err := es.files.ListByDataset(ctx, datasetID)
	if err != nil {
		return fmt.Errorf("получение файлов датасета %s: %w", datasetID, err)
	}
	if len(files) == 0 {
		es.logger.Warn("В датасете нет файлов для экспорта",
			slog.String("dataset_id", datasetID),
		)
		return nil
	}

	for _, file := range files {
		if err := es.exportFile(ctx, user, datasetIDs, file.FileID, req); err != nil {
			return fmt.Errorf("экспорт датасета %s прерван: %w", datasetID, err)
		}
	}
	return nil
}

// resolveReleased проверяет, что датасет released.
// Неизвестный идентификатор повторно ищется как reference-алиас.
func (es *ExportService) resolveReleased(ctx context.Context, datasetID string) (string, error) {
	event, err := es.datasets.LatestEvent(ctx, datasetID)
	if errors.Is(err, repository.ErrNotFound) {
		stableID, refErr := es.datasets.StableIDByReference(ctx, datasetID)
		if refErr != nil {
			return "", fmt.Errorf("датасет %s: %w", datasetID, ErrNotFound)
		}
		es.logger.Debug("Датасет найден по reference-алиасу",
			slog.String("reference_id", datasetID),
			slog.String("dataset_id", stableID),
		)
		datasetID = stableID
		event, err = es.datasets.LatestEvent(ctx, datasetID)
	}
	if err != nil {
		return "", fmt.Errorf("событие датасета %s: %w", datasetID, err)
	}

	if event != model.DatasetEventReleased {
		return "", fmt.Errorf("датасет %s (событие %s): %w", datasetID, event, ErrDatasetNotReleased)
	}
	return datasetID, nil
}

// exportFile пересобирает файл под ключ получателя и пишет его в outbox.
// Существующий файл в POSIX-outbox пропускается с warning, не ошибка.
func (es *ExportService) exportFile(ctx context.Context, user string, datasetIDs []string, fileID string, req model.ExportRequest) error {
	stream, err := es.streaming.Stream(ctx, StreamRequest{
		DatasetIDs: datasetIDs,
		FileID:     fileID,
		Format:     FormatCrypt4GH,
		PublicKey:  req.PublicKey,
		Start:      uint64(req.StartCoordinate),
		End:        uint64(req.EndCoordinate),
	})
	if err != nil {
		exportFilesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("подготовка файла %s: %w", fileID, err)
	}
	defer stream.Close()

	written, err := es.outbox.Write(ctx, user, stream.File.DisplayFileName, stream)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			es.logger.Warn("Файл уже существует в outbox, пропущен",
				slog.String("file_id", fileID),
				slog.String("user", user),
			)
			exportFilesTotal.WithLabelValues("skipped").Inc()
			return nil
		}
		exportFilesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("запись файла %s в outbox: %w", fileID, err)
	}

	exportFilesTotal.WithLabelValues("success").Inc()
	es.logger.Info("Файл экспортирован в outbox",
		slog.String("file_id", fileID),
		slog.String("user", user),
		slog.Int64("bytes", written),
	)
	return nil
}
