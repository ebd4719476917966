// streaming.go — сервис синхронной выдачи файлов архива.
// Полный pipeline: permission gate → метаданные файла → архивный поток →
// расшифровка (plain) или пересборка заголовка (crypt4gh).
// Содержимое нигде не буферизуется целиком.
package service

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/neicnordic/crypt4gh/model/headers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goarchive/doa-module/internal/c4gh"
	"github.com/bigkaa/goarchive/doa-module/internal/domain/model"
	"github.com/bigkaa/goarchive/doa-module/internal/repository"
	"github.com/bigkaa/goarchive/doa-module/internal/storage"
)

// Prometheus-метрики streaming.
var (
	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "doa_downloads_total",
		Help: "Общее количество запросов на выдачу файла (по статусу).",
	}, []string{"status"})

	downloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "doa_download_duration_seconds",
		Help:    "Длительность выдачи файла (от запроса до закрытия потока).",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})

	downloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "doa_download_bytes_total",
		Help: "Общее количество байт, выданных из архива.",
	})

	activeDownloads = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "doa_active_downloads",
		Help: "Количество активных (in-progress) выдач.",
	})
)

// StreamRequest — параметры выдачи одного файла.
type StreamRequest struct {
	// DatasetIDs — датасеты, авторизованные для запрашивающего.
	// Передаются явно: сервис не извлекает их из окружения запроса.
	DatasetIDs []string
	// FileID — стабильный идентификатор файла
	FileID string
	// Format — формат выдачи
	Format Format
	// PublicKey — ключ получателя (PEM или base64(PEM)), обязателен для crypt4gh
	PublicKey string
	// Start — сколько байт расшифрованного содержимого пропустить
	Start uint64
	// End — сколько байт расшифрованного содержимого выдать (0 — весь файл)
	End uint64
}

// Stream — открытый поток выдачи. Вызывающий обязан закрыть его.
type Stream struct {
	io.ReadCloser
	// File — метаданные выдаваемого файла
	File *model.ArchivedFile
	// Format — фактический формат выдачи
	Format Format
}

// streamBody — поток выдачи с учётом метрик при закрытии.
type streamBody struct {
	reader  io.Reader
	source  io.Closer
	started time.Time
	written int64
	closed  bool
}

func (b *streamBody) Read(p []byte) (int, error) {
	n, err := b.reader.Read(p)
	b.written += int64(n)
	return n, err
}

func (b *streamBody) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	activeDownloads.Dec()
	downloadDuration.Observe(time.Since(b.started).Seconds())
	downloadBytesTotal.Add(float64(b.written))
	return b.source.Close()
}

// StreamingService — сервис выдачи файлов архива.
type StreamingService struct {
	files   repository.FileRepository
	archive storage.ArchiveReader
	privKey c4gh.Key
	logger  *slog.Logger
}

// NewStreamingService создаёт сервис выдачи.
// privKey — приватный crypt4gh-ключ сервиса, которым зашифрованы заголовки архива.
func NewStreamingService(
	files repository.FileRepository,
	archive storage.ArchiveReader,
	privKey c4gh.Key,
	logger *slog.Logger,
) *StreamingService {
	return &StreamingService{
		files:   files,
		archive: archive,
		privKey: privKey,
		logger:  logger.With(slog.String("component", "streaming_service")),
	}
}

// Stream открывает поток выдачи файла.
//
// Pipeline:
//  1. Permission gate: файл должен входить в один из авторизованных датасетов
//  2. Метаданные файла из БД, hex-декодирование crypt4gh-заголовка
//  3. Открытие тела файла в архиве (тело хранится без заголовка)
//  4. plain — расшифровка ключом сервиса; crypt4gh — пересборка заголовка
//     под ключ получателя, тело отдаётся нетронутым
//
// Диапазон {Start, End} применяется к расшифрованному содержимому:
// пропустить Start байт, выдать End байт. Для crypt4gh диапазон вшивается
// в новый заголовок и применяется на стороне получателя.
func (s *StreamingService) Stream(ctx context.Context, req StreamRequest) (*Stream, error) {
	// 1. Permission gate — до любых обращений к метаданным файла
	ok, err := s.files.CheckPermission(ctx, req.FileID, req.DatasetIDs)
	if err != nil {
		downloadsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("проверка прав на файл %s: %w", req.FileID, err)
	}
	if !ok {
		downloadsTotal.WithLabelValues("forbidden").Inc()
		return nil, ErrPermissionDenied
	}

	// 2. Метаданные и заголовок
	file, err := s.files.GetByID(ctx, req.FileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			downloadsTotal.WithLabelValues("not_found").Inc()
			return nil, ErrNotFound
		}
		downloadsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("получение файла %s: %w", req.FileID, err)
	}

	header, err := hex.DecodeString(file.Header)
	if err != nil || len(header) == 0 {
		downloadsTotal.WithLabelValues("crypto_error").Inc()
		return nil, fmt.Errorf("некорректный заголовок файла %s: %v", req.FileID, err)
	}

	// Диапазон: DataEditList {пропустить Start, выдать End}.
	// Срабатывает только End: пропуск "до конца файла" в DataEditList
	// не выражается, Start без End игнорируется.
	var directive *headers.DataEditListHeaderPacket
	if req.End > 0 {
		directive = c4gh.RangeDirective(req.Start, req.End)
	}

	// 3. Тело файла из архива
	body, err := s.archive.Open(ctx, file.FilePath)
	if err != nil {
		downloadsTotal.WithLabelValues("storage_error").Inc()
		return nil, fmt.Errorf("открытие файла %s в архиве: %w", req.FileID, err)
	}

	// 4. Формат выдачи
	reader, err := s.assemble(file.FileID, header, body, req, directive)
	if err != nil {
		body.Close()
		return nil, err
	}

	activeDownloads.Inc()
	downloadsTotal.WithLabelValues("success").Inc()
	s.logger.Debug("Выдача файла началась",
		slog.String("file_id", file.FileID),
		slog.String("format", string(req.Format)),
	)

	return &Stream{
		ReadCloser: &streamBody{reader: reader, source: body, started: time.Now()},
		File:       file,
		Format:     req.Format,
	}, nil
}

// assemble собирает итоговый поток по формату выдачи.
func (s *StreamingService) assemble(
	fileID string,
	header []byte,
	body io.Reader,
	req StreamRequest,
	directive *headers.DataEditListHeaderPacket,
) (io.Reader, error) {
	switch req.Format {
	case FormatPlain:
		reader, err := c4gh.Decrypt(io.MultiReader(bytes.NewReader(header), body), s.privKey, directive)
		if err != nil {
			downloadsTotal.WithLabelValues("crypto_error").Inc()
			return nil, fmt.Errorf("расшифровка файла %s: %w", fileID, err)
		}
		return reader, nil

	case FormatCrypt4GH:
		if req.PublicKey == "" {
			downloadsTotal.WithLabelValues("bad_request").Inc()
			return nil, ErrPublicKeyRequired
		}
		recipient, err := c4gh.ParsePublicKey(req.PublicKey)
		if err != nil {
			downloadsTotal.WithLabelValues("bad_request").Inc()
			return nil, fmt.Errorf("ключ получателя: %w", err)
		}
		newHeader, err := c4gh.Reencrypt(header, s.privKey, recipient, directive)
		if err != nil {
			downloadsTotal.WithLabelValues("crypto_error").Inc()
			return nil, fmt.Errorf("пересборка заголовка файла %s: %w", fileID, err)
		}
		// Новый заголовок + нетронутое тело архива
		return io.MultiReader(bytes.NewReader(newHeader), body), nil

	default:
		downloadsTotal.WithLabelValues("bad_request").Inc()
		return nil, ErrUnknownFormat
	}
}
