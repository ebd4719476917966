// auth.go — middleware авторизации Data Out API по GA4GH-паспорту.
// Извлекает Bearer credential (JWT-паспорт или opaque-токен), обменивает его
// на множество авторизованных датасетов и помещает результат в контекст.
// Пустое множество датасетов означает отказ — 401 до входа в обработчики.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/goarchive/doa-module/internal/api/errors"
	"github.com/bigkaa/goarchive/doa-module/internal/auth"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyDatasets — авторизованные датасеты в контексте запроса.
	ContextKeyDatasets contextKey = "authorized_datasets"
)

// DatasetAuthorizer — обмен credential на множество авторизованных датасетов.
type DatasetAuthorizer interface {
	GetDatasetIDs(ctx context.Context, credential string) ([]string, error)
}

// VisaAuth — middleware авторизации по GA4GH visas.
type VisaAuth struct {
	authorizer DatasetAuthorizer
	logger     *slog.Logger
}

// NewVisaAuth создаёт middleware авторизации.
func NewVisaAuth(authorizer DatasetAuthorizer, logger *slog.Logger) *VisaAuth {
	return &VisaAuth{
		authorizer: authorizer,
		logger:     logger.With(slog.String("component", "visa_auth")),
	}
}

// Middleware возвращает HTTP middleware авторизации.
// Извлекает Bearer credential, обменивает на датасеты и помещает их в контекст.
func (v *VisaAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Извлекаем Bearer credential
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			credential := parts[1]
			if credential == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			// Обмен credential → авторизованные датасеты
			datasetIDs, err := v.authorizer.GetDatasetIDs(r.Context(), credential)
			if err != nil {
				if !errors.Is(err, auth.ErrUnauthorized) {
					v.logger.Debug("Авторизация credential не пройдена",
						slog.String("error", err.Error()),
						slog.String("remote_addr", r.RemoteAddr),
					)
				}
				apierrors.Unauthorized(w, "Нет действующих разрешений ControlledAccessGrants")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyDatasets, datasetIDs)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DatasetsFromContext извлекает авторизованные датасеты из контекста запроса.
// Возвращает nil, если авторизация не выполнялась.
func DatasetsFromContext(ctx context.Context) []string {
	datasetIDs, _ := ctx.Value(ContextKeyDatasets).([]string)
	return datasetIDs
}
