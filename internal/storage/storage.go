// Пакет storage — backends архивного хранилища и пользовательского outbox.
// Два режима: POSIX (файловая система) и S3 (совместимое object storage).
// Архив read-only, outbox write-only.
package storage

import (
	"context"
	"fmt"
	"io"
)

// Mode — режим backend'а хранилища. Закрытое перечисление.
type Mode string

const (
	// ModePOSIX — файловая система.
	ModePOSIX Mode = "posix"
	// ModeS3 — S3-совместимое object storage.
	ModeS3 Mode = "s3"
)

// ParseMode разбирает режим хранилища из конфигурации.
// Любое значение кроме posix и s3 — ошибка.
func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case ModePOSIX:
		return ModePOSIX, nil
	case ModeS3:
		return ModeS3, nil
	default:
		return "", fmt.Errorf("недопустимый режим хранилища %q, допустимые: posix, s3", raw)
	}
}

// ArchiveReader — чтение тела файла из архива по пути/ключу из БД.
type ArchiveReader interface {
	// Open открывает поток тела файла. Вызывающий обязан закрыть reader.
	Open(ctx context.Context, filePath string) (io.ReadCloser, error)
}

// OutboxWriter — запись экспортированного файла в outbox пользователя.
type OutboxWriter interface {
	// Write сохраняет содержимое r как файл filename в outbox пользователя user.
	// Возвращает количество записанных байт.
	Write(ctx context.Context, user, filename string, r io.Reader) (int64, error)
}
