// keys.go — источники ключей проверки подписи passport/visa токенов.
// Статический PEM-ключ из файла либо JWKS endpoint AAI с фоновым обновлением.
package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// StaticKeyfunc загружает публичный ключ из PEM-файла и возвращает keyfunc,
// отдающий этот ключ для любого токена. Поддерживаются RSA и ECDSA.
func StaticKeyfunc(pemPath string) (jwt.Keyfunc, error) {
	data, err := os.ReadFile(pemPath)
	if err != nil {
		return nil, fmt.Errorf("чтение публичного ключа %s: %w", pemPath, err)
	}

	var key any
	if rsaKey, rsaErr := jwt.ParseRSAPublicKeyFromPEM(data); rsaErr == nil {
		key = rsaKey
	} else if ecKey, ecErr := jwt.ParseECPublicKeyFromPEM(data); ecErr == nil {
		key = ecKey
	} else {
		return nil, fmt.Errorf("разбор публичного ключа %s: не RSA и не ECDSA", pemPath)
	}

	return func(token *jwt.Token) (any, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA:
			if _, ok := key.(*rsa.PublicKey); !ok {
				return nil, fmt.Errorf("алгоритм %s не соответствует типу ключа", token.Method.Alg())
			}
		case *jwt.SigningMethodECDSA:
			if _, ok := key.(*ecdsa.PublicKey); !ok {
				return nil, fmt.Errorf("алгоритм %s не соответствует типу ключа", token.Method.Alg())
			}
		default:
			return nil, fmt.Errorf("неподдерживаемый алгоритм %s", token.Method.Alg())
		}
		return key, nil
	}, nil
}

// JWKSKeyfunc создаёт keyfunc с JWKS endpoint'а AAI.
// Ключи обновляются в фоне; старт не блокируется недоступностью AAI.
func JWKSKeyfunc(jwksURL string, clientTimeout, refreshInterval time.Duration, logger *slog.Logger) (jwt.Keyfunc, error) {
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: clientTimeout},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           refreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}
	return k.Keyfunc, nil
}

// SubjectFromToken извлекает sub из JWT без проверки подписи.
// Используется при экспорте только как компонент пути outbox —
// авторизация выполняется отдельно через GetDatasetIDs.
func SubjectFromToken(credential string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(credential, claims); err != nil {
		return "", fmt.Errorf("некорректный JWT: %w", err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("отсутствует sub в токене")
	}
	return claims.Subject, nil
}
