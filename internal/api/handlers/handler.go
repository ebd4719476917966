// handler.go — основной обработчик Data Out API.
// Объединяет health, выдачу файлов и метаданные; запросы делегируются
// в сервисный слой. Авторизация — на уровне middleware (VisaAuth).
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/bigkaa/goarchive/doa-module/internal/service"
)

// APIHandler — основной обработчик Data Out API.
type APIHandler struct {
	streaming *service.StreamingService
	metadata  *service.MetadataService
	health    *HealthHandler
	logger    *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	streaming *service.StreamingService,
	metadata *service.MetadataService,
	health *HealthHandler,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		streaming: streaming,
		metadata:  metadata,
		health:    health,
		logger:    logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
