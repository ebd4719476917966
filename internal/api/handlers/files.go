// files.go — обработчик GET /files/{fileId}.
// Синхронная выдача содержимого файла: plain (расшифрованное) или
// crypt4gh-контейнер, пересобранный под ключ получателя из заголовка
// Public-Key. Координаты диапазона — query-параметры.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goarchive/doa-module/internal/api/errors"
	"github.com/bigkaa/goarchive/doa-module/internal/api/middleware"
	"github.com/bigkaa/goarchive/doa-module/internal/service"
)

// DownloadFile — реализация GET /files/{fileId}.
// Авторизация выполнена middleware: датасеты уже в контексте.
func (h *APIHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileId")
	datasetIDs := middleware.DatasetsFromContext(r.Context())

	format, err := service.ParseFormat(r.URL.Query().Get("destinationFormat"))
	if err != nil {
		apierrors.ValidationError(w, "Недопустимый destinationFormat: допустимые plain, crypt4gh")
		return
	}

	start, err := parseCoordinate(r.URL.Query().Get("startCoordinate"))
	if err != nil {
		apierrors.InvalidRange(w, "Некорректный startCoordinate: "+err.Error())
		return
	}
	end, err := parseCoordinate(r.URL.Query().Get("endCoordinate"))
	if err != nil {
		apierrors.InvalidRange(w, "Некорректный endCoordinate: "+err.Error())
		return
	}

	stream, err := h.streaming.Stream(r.Context(), service.StreamRequest{
		DatasetIDs: datasetIDs,
		FileID:     fileID,
		Format:     format,
		PublicKey:  r.Header.Get("Public-Key"),
		Start:      start,
		End:        end,
	})
	if err != nil {
		h.writeStreamError(w, fileID, err)
		return
	}
	defer stream.Close()

	filename := stream.File.DisplayFileName
	if stream.Format == service.FormatCrypt4GH {
		filename += ".enc"
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)

	// Статус уже отправлен: ошибку середины потока можно только залогировать
	if _, err := io.Copy(w, stream); err != nil {
		h.logger.Error("Передача файла прервана",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
	}
}

// writeStreamError мапит ошибки сервисного слоя на HTTP-ответы.
// Отсутствующий файл отдаётся как 403, а не 404: существование файла
// вне авторизованных датасетов не раскрывается.
func (h *APIHandler) writeStreamError(w http.ResponseWriter, fileID string, err error) {
	switch {
	case errors.Is(err, service.ErrPermissionDenied), errors.Is(err, service.ErrNotFound):
		apierrors.Forbidden(w, "Нет разрешения на файл")
	case errors.Is(err, service.ErrPublicKeyRequired):
		apierrors.ValidationError(w, "Для destinationFormat=crypt4gh требуется заголовок Public-Key")
	default:
		h.logger.Error("Ошибка подготовки файла к выдаче",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка при выдаче файла")
	}
}

// parseCoordinate разбирает координату диапазона.
// Пустая строка — 0 (диапазон не задан).
func parseCoordinate(raw string) (uint64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ожидается неотрицательное целое, получено %q", raw)
	}
	return v, nil
}
