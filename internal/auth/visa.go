// Пакет auth — авторизация по GA4GH passport/visa.
// Из access token пользователя извлекается множество датасетов, к которым
// у него есть доступ (visa типа ControlledAccessGrants).
//
// Поддерживаются три формы credential:
//   - JWT с claim ga4gh_visa_v1 — одиночная visa;
//   - JWT с claim ga4gh_passport_v1 — passport со вложенными visa-токенами;
//   - opaque token — обменивается на passport через userinfo endpoint.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Ошибки авторизации.
var (
	// ErrUnauthorized — credential не дал ни одного действующего разрешения.
	ErrUnauthorized = errors.New("нет действующих разрешений ControlledAccessGrants")
)

// visaTypeControlledAccess — тип visa, дающий доступ к датасету.
// Сравнение без учёта регистра.
const visaTypeControlledAccess = "ControlledAccessGrants"

// Допустимые алгоритмы подписи passport/visa токенов.
var allowedAlgs = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}

// ga4ghVisa — содержимое claim ga4gh_visa_v1.
type ga4ghVisa struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Source   string `json:"source,omitempty"`
	By       string `json:"by,omitempty"`
	Asserted int64  `json:"asserted,omitempty"`
}

// tokenClaims — claims passport/visa токена.
// Одно и то же представление используется для обоих видов: у visa заполнен
// Visa, у passport — VisaTokens.
type tokenClaims struct {
	jwt.RegisteredClaims
	// Visa — признак одиночной visa.
	Visa *ga4ghVisa `json:"ga4gh_visa_v1,omitempty"`
	// VisaTokens — вложенные visa-токены passport'а.
	VisaTokens []string `json:"ga4gh_passport_v1,omitempty"`
}

// userinfoResponse — ответ userinfo endpoint для opaque токенов.
type userinfoResponse struct {
	VisaTokens []string `json:"ga4gh_passport_v1"`
}

// VisaAuthorizer — извлечение авторизованных датасетов из credential.
type VisaAuthorizer struct {
	passportKeyfunc jwt.Keyfunc
	visaKeyfunc     jwt.Keyfunc
	userinfoURL     string
	httpClient      *http.Client
	leeway          time.Duration
	cache           *TokenCache
	logger          *slog.Logger
}

// NewVisaAuthorizer создаёт авторизатор.
// passportKeyfunc, visaKeyfunc — источники ключей проверки подписи
// (статический PEM-ключ или JWKS, см. keys.go).
// userinfoURL — endpoint обмена opaque токена на passport (пустой — opaque
// токены отклоняются).
// cache — кэш результатов (nil — кэширование выключено).
func NewVisaAuthorizer(
	passportKeyfunc, visaKeyfunc jwt.Keyfunc,
	userinfoURL string,
	httpClientTimeout time.Duration,
	leeway time.Duration,
	cache *TokenCache,
	logger *slog.Logger,
) *VisaAuthorizer {
	return &VisaAuthorizer{
		passportKeyfunc: passportKeyfunc,
		visaKeyfunc:     visaKeyfunc,
		userinfoURL:     userinfoURL,
		httpClient:      &http.Client{Timeout: httpClientTimeout},
		leeway:          leeway,
		cache:           cache,
		logger:          logger.With(slog.String("component", "visa_authorizer")),
	}
}

// GetDatasetIDs возвращает множество датасетов, доступных по credential.
// Результат не зависит от окружения запроса — только от самого credential.
// Пустое множество — ErrUnauthorized.
func (a *VisaAuthorizer) GetDatasetIDs(ctx context.Context, credential string) ([]string, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, fmt.Errorf("пустой credential: %w", ErrUnauthorized)
	}

	if a.cache != nil {
		if datasets, ok := a.cache.Get(cacheKey(credential)); ok {
			return datasets, nil
		}
	}

	var datasets []string
	var err error
	if isJWT(credential) {
		datasets, err = a.datasetsFromJWT(ctx, credential)
	} else {
		datasets, err = a.datasetsFromOpaque(ctx, credential)
	}
	if err != nil {
		return nil, err
	}

	if len(datasets) == 0 {
		return nil, ErrUnauthorized
	}

	if a.cache != nil {
		a.cache.Set(cacheKey(credential), datasets)
	}
	return datasets, nil
}

// datasetsFromJWT обрабатывает credential-JWT: одиночную visa или passport.
func (a *VisaAuthorizer) datasetsFromJWT(ctx context.Context, credential string) ([]string, error) {
	// Незаверенный разбор — только чтобы отличить visa от passport.
	// Подпись проверяется ниже соответствующим ключом.
	peek := &tokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(credential, peek); err != nil {
		return nil, fmt.Errorf("некорректный JWT: %w: %s", ErrUnauthorized, err)
	}

	// Одиночная visa
	if peek.Visa != nil {
		datasetID, err := a.verifyVisa(ctx, credential)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnauthorized, err)
		}
		if datasetID == "" {
			return nil, nil
		}
		return []string{datasetID}, nil
	}

	// Passport: проверяем подпись и обходим вложенные visa
	claims := &tokenClaims{}
	if _, err := jwt.ParseWithClaims(credential, claims, a.passportKeyfunc,
		a.parserOptions()...); err != nil {
		return nil, fmt.Errorf("passport не прошёл проверку: %w: %s", ErrUnauthorized, err)
	}

	return a.collectDatasets(ctx, claims.VisaTokens), nil
}

// datasetsFromOpaque обменивает opaque token на passport через userinfo.
func (a *VisaAuthorizer) datasetsFromOpaque(ctx context.Context, credential string) ([]string, error) {
	if a.userinfoURL == "" {
		return nil, fmt.Errorf("userinfo endpoint не настроен, opaque токены не поддерживаются: %w", ErrUnauthorized)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.userinfoURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса userinfo: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo вернул статус %d: %w", resp.StatusCode, ErrUnauthorized)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("чтение ответа userinfo: %w", err)
	}

	var info userinfoResponse
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("разбор ответа userinfo: %w", err)
	}

	return a.collectDatasets(ctx, info.VisaTokens), nil
}

// collectDatasets проверяет вложенные visa-токены и собирает датасеты.
// Ошибка отдельной visa не фатальна — visa пропускается с warning.
func (a *VisaAuthorizer) collectDatasets(ctx context.Context, visaTokens []string) []string {
	seen := make(map[string]bool)
	var datasets []string

	for _, visaToken := range visaTokens {
		datasetID, err := a.verifyVisa(ctx, visaToken)
		if err != nil {
			a.logger.Warn("Visa отклонена",
				slog.String("error", err.Error()),
			)
			continue
		}
		if datasetID == "" || seen[datasetID] {
			continue
		}
		seen[datasetID] = true
		datasets = append(datasets, datasetID)
	}
	return datasets
}

// verifyVisa проверяет подпись и срок действия visa-токена.
// Возвращает идентификатор датасета или пустую строку, если visa
// не типа ControlledAccessGrants.
func (a *VisaAuthorizer) verifyVisa(ctx context.Context, visaToken string) (string, error) {
	claims := &tokenClaims{}
	if _, err := jwt.ParseWithClaims(visaToken, claims, a.visaKeyfunc,
		a.parserOptions()...); err != nil {
		return "", fmt.Errorf("подпись visa не прошла проверку: %w", err)
	}

	if claims.Visa == nil {
		return "", fmt.Errorf("отсутствует claim ga4gh_visa_v1")
	}
	if !strings.EqualFold(claims.Visa.Type, visaTypeControlledAccess) {
		return "", nil
	}

	datasetID := datasetIDFromValue(claims.Visa.Value)
	if datasetID == "" {
		return "", fmt.Errorf("пустое value в visa ControlledAccessGrants")
	}
	return datasetID, nil
}

// parserOptions — общие опции проверки JWT.
func (a *VisaAuthorizer) parserOptions() []jwt.ParserOption {
	return []jwt.ParserOption{
		jwt.WithValidMethods(allowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.leeway),
	}
}

// datasetIDFromValue извлекает идентификатор датасета из value visa:
// последний сегмент пути URI, хвостовой "/" отбрасывается.
// "https://ega.example.org/datasets/EGAD001/" → "EGAD001".
func datasetIDFromValue(value string) string {
	value = strings.TrimSuffix(strings.TrimSpace(value), "/")
	if idx := strings.LastIndex(value, "/"); idx >= 0 {
		value = value[idx+1:]
	}
	return value
}

// isJWT определяет форму credential по количеству сегментов:
// три сегмента через точку — JWT, иначе opaque token.
func isJWT(credential string) bool {
	return strings.Count(credential, ".") == 2
}

// cacheKey — ключ кэша: sha256 от credential, сам credential не хранится.
func cacheKey(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}
