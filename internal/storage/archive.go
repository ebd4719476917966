package storage

import (
	"context"
	"fmt"
	"io"
)

// isObjectKey определяет вид пути файла из БД. История ingest оставляет
// в архиве два вида путей: числовые идентификаторы объектов S3 и пути
// файловой системы. Путь целиком из цифр — ключ объекта.
func isObjectKey(filePath string) bool {
	if filePath == "" {
		return false
	}
	for _, r := range filePath {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ArchiveDispatcher — архив со смешанными путями: числовые пути читаются
// из S3, остальные — с файловой системы. Выбор backend'а выполняется
// на каждый файл, а не на процесс.
type ArchiveDispatcher struct {
	posix ArchiveReader
	s3    ArchiveReader
}

// NewArchiveDispatcher создаёт архив со смешанными путями.
// s3 может быть nil — тогда числовые пути не обслуживаются.
func NewArchiveDispatcher(posix, s3 ArchiveReader) *ArchiveDispatcher {
	return &ArchiveDispatcher{posix: posix, s3: s3}
}

// Open открывает поток тела файла через backend, соответствующий пути.
func (d *ArchiveDispatcher) Open(ctx context.Context, filePath string) (io.ReadCloser, error) {
	if isObjectKey(filePath) {
		if d.s3 == nil {
			return nil, fmt.Errorf("путь %s — ключ объекта, но S3-архив не настроен", filePath)
		}
		return d.s3.Open(ctx, filePath)
	}
	return d.posix.Open(ctx, filePath)
}
