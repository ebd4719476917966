// metadata.go — обработчики GET /metadata/datasets и
// GET /metadata/datasets/{datasetId}/files.
// Перечисление авторизованных датасетов и их ready-файлов.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goarchive/doa-module/internal/api/errors"
	"github.com/bigkaa/goarchive/doa-module/internal/api/middleware"
	"github.com/bigkaa/goarchive/doa-module/internal/domain/model"
	"github.com/bigkaa/goarchive/doa-module/internal/service"
)

// fileResponse — DTO файла в ответе метаданных.
type fileResponse struct {
	FileID                    string `json:"fileId"`
	DatasetID                 string `json:"datasetId"`
	DisplayFileName           string `json:"displayFileName"`
	FileName                  string `json:"fileName"`
	FileSize                  int64  `json:"fileSize"`
	UnencryptedChecksum       string `json:"unencryptedChecksum"`
	UnencryptedChecksumType   string `json:"unencryptedChecksumType"`
	DecryptedFileSize         int64  `json:"decryptedFileSize"`
	DecryptedFileChecksum     string `json:"decryptedFileChecksum"`
	DecryptedFileChecksumType string `json:"decryptedFileChecksumType"`
	FileStatus                string `json:"fileStatus"`
}

// ListDatasets — реализация GET /metadata/datasets.
// Возвращает авторизованные датасеты, присутствующие в архиве.
func (h *APIHandler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	datasetIDs := middleware.DatasetsFromContext(r.Context())

	present, err := h.metadata.Datasets(r.Context(), datasetIDs)
	if err != nil {
		h.logger.Error("Ошибка перечисления датасетов",
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка при перечислении датасетов")
		return
	}

	if present == nil {
		present = []string{}
	}
	writeJSON(w, http.StatusOK, present)
}

// ListDatasetFiles — реализация GET /metadata/datasets/{datasetId}/files.
// 403, если датасет не входит в авторизованное множество.
func (h *APIHandler) ListDatasetFiles(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "datasetId")
	datasetIDs := middleware.DatasetsFromContext(r.Context())

	files, err := h.metadata.DatasetFiles(r.Context(), datasetIDs, datasetID)
	if err != nil {
		if errors.Is(err, service.ErrPermissionDenied) {
			apierrors.Forbidden(w, "Нет разрешения на датасет")
			return
		}
		h.logger.Error("Ошибка перечисления файлов датасета",
			slog.String("dataset_id", datasetID),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка при перечислении файлов датасета")
		return
	}

	resp := make([]fileResponse, 0, len(files))
	for _, f := range files {
		resp = append(resp, toFileResponse(f, datasetID))
	}
	writeJSON(w, http.StatusOK, resp)
}

// toFileResponse конвертирует domain-модель в DTO ответа.
func toFileResponse(f *model.ArchivedFile, datasetID string) fileResponse {
	return fileResponse{
		FileID:                    f.FileID,
		DatasetID:                 datasetID,
		DisplayFileName:           f.DisplayFileName,
		FileName:                  f.FileName,
		FileSize:                  f.FileSize,
		UnencryptedChecksum:       f.UnencryptedChecksum,
		UnencryptedChecksumType:   f.UnencryptedChecksumType,
		DecryptedFileSize:         f.DecryptedFileSize,
		DecryptedFileChecksum:     f.DecryptedFileChecksum,
		DecryptedFileChecksumType: f.DecryptedFileChecksumType,
		FileStatus:                f.Status,
	}
}
