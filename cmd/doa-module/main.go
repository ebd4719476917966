// Точка входа DOA Module — сервис выдачи данных Local EGA.
// Загружает конфигурацию, подключается к PostgreSQL и архивному хранилищу,
// загружает crypt4gh-ключ сервиса, настраивает авторизацию по GA4GH visas,
// запускает консьюмер очереди экспорта и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bigkaa/goarchive/doa-module/internal/api/handlers"
	"github.com/bigkaa/goarchive/doa-module/internal/api/middleware"
	"github.com/bigkaa/goarchive/doa-module/internal/auth"
	"github.com/bigkaa/goarchive/doa-module/internal/c4gh"
	"github.com/bigkaa/goarchive/doa-module/internal/config"
	"github.com/bigkaa/goarchive/doa-module/internal/database"
	"github.com/bigkaa/goarchive/doa-module/internal/mq"
	"github.com/bigkaa/goarchive/doa-module/internal/repository"
	"github.com/bigkaa/goarchive/doa-module/internal/schema"
	"github.com/bigkaa/goarchive/doa-module/internal/server"
	"github.com/bigkaa/goarchive/doa-module/internal/service"
	"github.com/bigkaa/goarchive/doa-module/internal/storage"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("DOA Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// 3. Подключение к PostgreSQL (pgxpool, read-only потребитель схем
	// local_ega_ebi и sda — миграции принадлежат ingest-пайплайну)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4. Приватный crypt4gh-ключ сервиса
	privKey, err := c4gh.LoadPrivateKey(cfg.C4GHKeyPath, cfg.C4GHPassphrasePath)
	if err != nil {
		logger.Error("Ошибка загрузки crypt4gh-ключа", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Crypt4gh-ключ сервиса загружен", slog.String("path", cfg.C4GHKeyPath))

	// 5. Источники ключей проверки passport/visa (JWKS или статический PEM)
	passportKeyfunc, err := buildKeyfunc(cfg.PassportJWKSURL, cfg.PassportPublicKeyPath, cfg, logger)
	if err != nil {
		logger.Error("Ошибка настройки ключей паспортов", slog.String("error", err.Error()))
		os.Exit(1)
	}
	visaKeyfunc, err := buildKeyfunc(cfg.VisaJWKSURL, cfg.VisaPublicKeyPath, cfg, logger)
	if err != nil {
		logger.Error("Ошибка настройки ключей visa", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 6. Авторизатор GA4GH с кэшем credential → датасеты
	tokenCache := auth.NewTokenCache(cfg.TokenCacheSize, cfg.TokenCacheTTL)
	authorizer := auth.NewVisaAuthorizer(
		passportKeyfunc,
		visaKeyfunc,
		cfg.OIDCUserinfoURL,
		cfg.JWKSClientTimeout,
		cfg.JWTLeeway,
		tokenCache,
		logger,
	)

	// 7. Архивное хранилище (файловая система + опциональный S3
	// для числовых ключей объектов)
	archive, err := buildArchive(ctx, cfg)
	if err != nil {
		logger.Error("Ошибка инициализации архива", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Архивное хранилище инициализировано",
		slog.String("path", cfg.ArchivePath),
		slog.Bool("s3", cfg.ArchiveS3.Bucket != ""),
	)

	// 8. Repositories
	fileRepo := repository.NewFileRepository(pool)
	datasetRepo := repository.NewDatasetRepository(pool)

	// 9. Services
	streamingSvc := service.NewStreamingService(fileRepo, archive, privKey, logger)
	metadataSvc := service.NewMetadataService(fileRepo, datasetRepo, logger)

	// 10. Консьюмер очереди экспорта (опционально)
	var brokerChecker handlers.ReadinessChecker
	if cfg.MQEnabled {
		outbox, err := buildOutbox(ctx, cfg)
		if err != nil {
			logger.Error("Ошибка инициализации outbox", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Outbox инициализирован", slog.String("mode", cfg.OutboxMode))

		validator, err := schema.NewExportRequestValidator()
		if err != nil {
			logger.Error("Ошибка компиляции схемы экспорта", slog.String("error", err.Error()))
			os.Exit(1)
		}

		exportSvc := service.NewExportService(authorizer, fileRepo, datasetRepo, streamingSvc, outbox, logger)
		consumer := mq.NewConsumer(cfg.MQURI, cfg.MQQueue, cfg.MQReconnectInterval, validator, exportSvc, logger)
		brokerChecker = consumer

		consumerCtx, cancelConsumer := context.WithCancel(ctx)
		defer cancelConsumer()
		go func() {
			if err := consumer.Run(consumerCtx); err != nil {
				logger.Error("Консьюмер завершился с ошибкой", slog.String("error", err.Error()))
			}
		}()
	} else {
		logger.Info("Консьюмер очереди экспорта отключён")
	}

	// 11. Handlers
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), brokerChecker)
	apiHandler := handlers.NewAPIHandler(streamingSvc, metadataSvc, healthHandler, logger)

	// 12. Middleware: метрики → логирование → авторизация
	// (health и metrics исключены из авторизации)
	visaAuth := middleware.NewVisaAuth(authorizer, logger)
	middlewares := []func(http.Handler) http.Handler{
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
		server.AuthWithExclusions(visaAuth.Middleware(), "/health/", "/metrics"),
	}

	// 13. HTTP-сервер (блокирующий вызов с graceful shutdown)
	srv := server.New(cfg, logger, apiHandler, middlewares...)
	if err := srv.Run(); err != nil {
		logger.Error("Сервер завершился с ошибкой", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("DOA Module остановлен")
}

// buildKeyfunc выбирает источник ключей проверки подписи:
// статический PEM в приоритете, иначе JWKS endpoint AAI.
func buildKeyfunc(jwksURL, pemPath string, cfg *config.Config, logger *slog.Logger) (jwt.Keyfunc, error) {
	if pemPath != "" {
		return auth.StaticKeyfunc(pemPath)
	}
	return auth.JWKSKeyfunc(jwksURL, cfg.JWKSClientTimeout, cfg.JWKSRefreshInterval, logger)
}

// buildArchive создаёт архивное хранилище. Пути файлов из БД смешанные,
// поэтому архив всегда диспетчеризует по виду пути: числовой путь —
// ключ объекта S3 (если S3-архив настроен), остальные — POSIX.
func buildArchive(ctx context.Context, cfg *config.Config) (storage.ArchiveReader, error) {
	posix := storage.NewPosixArchive(cfg.ArchivePath)
	if cfg.ArchiveS3.Bucket == "" {
		return storage.NewArchiveDispatcher(posix, nil), nil
	}

	client, err := storage.NewS3Client(ctx, s3Config(cfg.ArchiveS3))
	if err != nil {
		return nil, err
	}
	return storage.NewArchiveDispatcher(posix, storage.NewS3Archive(client, cfg.ArchiveS3.Bucket)), nil
}

// buildOutbox создаёт outbox-хранилище по конфигурации.
func buildOutbox(ctx context.Context, cfg *config.Config) (storage.OutboxWriter, error) {
	mode, err := storage.ParseMode(cfg.OutboxMode)
	if err != nil {
		return nil, err
	}
	if mode == storage.ModeS3 {
		client, err := storage.NewS3Client(ctx, s3Config(cfg.OutboxS3))
		if err != nil {
			return nil, err
		}
		return storage.NewS3Outbox(client, cfg.OutboxS3.Bucket), nil
	}
	return storage.NewPosixOutbox(cfg.OutboxLocation), nil
}

// s3Config конвертирует настройки конфигурации в параметры S3-клиента.
func s3Config(s config.S3Settings) storage.S3Config {
	return storage.S3Config{
		Endpoint:  s.Endpoint,
		Region:    s.Region,
		Bucket:    s.Bucket,
		AccessKey: s.AccessKey,
		SecretKey: s.SecretKey,
	}
}
