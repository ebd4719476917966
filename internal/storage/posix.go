package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrAlreadyExists — файл уже существует в outbox (POSIX не перезаписывает).
var ErrAlreadyExists = errors.New("файл уже существует в outbox")

// PosixArchive — архив на файловой системе.
type PosixArchive struct {
	root string
}

// NewPosixArchive создаёт POSIX-архив с корневым каталогом root.
func NewPosixArchive(root string) *PosixArchive {
	return &PosixArchive{root: root}
}

// Open открывает файл архива по пути из БД.
// Путь из БД может начинаться с "/", двойные слэши схлопываются.
func (a *PosixArchive) Open(_ context.Context, filePath string) (io.ReadCloser, error) {
	full := strings.ReplaceAll(a.root+"/"+filePath, "//", "/")

	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("открытие файла архива %s: %w", full, err)
	}
	return f, nil
}

// PosixOutbox — outbox на файловой системе.
// locationPattern — шаблон каталога outbox с %s для имени пользователя,
// например "/outbox/%s/files".
type PosixOutbox struct {
	locationPattern string
}

// NewPosixOutbox создаёт POSIX-outbox.
func NewPosixOutbox(locationPattern string) *PosixOutbox {
	return &PosixOutbox{locationPattern: locationPattern}
}

// Write сохраняет файл в outbox пользователя.
// Существующий файл не перезаписывается — возвращается ErrAlreadyExists.
func (o *PosixOutbox) Write(_ context.Context, user, filename string, r io.Reader) (int64, error) {
	dir := fmt.Sprintf(o.locationPattern, user)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return 0, fmt.Errorf("создание каталога outbox %s: %w", dir, err)
	}

	full := filepath.Join(dir, filename)
	if _, err := os.Stat(full); err == nil {
		return 0, fmt.Errorf("%s: %w", full, ErrAlreadyExists)
	}

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return 0, fmt.Errorf("создание файла outbox %s: %w", full, err)
	}

	written, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(full)
		return written, fmt.Errorf("запись файла outbox %s: %w", full, err)
	}

	if err := f.Close(); err != nil {
		return written, fmt.Errorf("закрытие файла outbox %s: %w", full, err)
	}
	return written, nil
}
