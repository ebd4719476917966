package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// TestParseMode проверяет закрытое перечисление режимов.
func TestParseMode(t *testing.T) {
	tests := []struct {
		raw     string
		want    Mode
		wantErr bool
	}{
		{"posix", ModePOSIX, false},
		{"s3", ModeS3, false},
		{"", "", true},
		{"S3", "", true},
		{"gcs", "", true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseMode(%q): ожидалась ошибка", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMode(%q) ошибка: %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %q, ожидался %q", tt.raw, got, tt.want)
		}
	}
}

// TestPosixArchive_Open проверяет чтение файла архива и нормализацию пути.
func TestPosixArchive_Open(t *testing.T) {
	root := t.TempDir()
	content := []byte("encrypted body")
	if err := os.WriteFile(filepath.Join(root, "body.c4gh"), content, 0o600); err != nil {
		t.Fatalf("подготовка файла: %v", err)
	}

	archive := NewPosixArchive(root)

	// Путь из БД с ведущим слэшем — двойной слэш должен схлопнуться
	r, err := archive.Open(context.Background(), "/body.c4gh")
	if err != nil {
		t.Fatalf("Open ошибка: %v", err)
	}
	defer r.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("чтение: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("прочитано %q, ожидалось %q", got, content)
	}
}

// TestPosixArchive_OpenMissing проверяет ошибку на отсутствующем файле.
func TestPosixArchive_OpenMissing(t *testing.T) {
	archive := NewPosixArchive(t.TempDir())

	if _, err := archive.Open(context.Background(), "missing.c4gh"); err == nil {
		t.Error("Open отсутствующего файла должен вернуть ошибку")
	}
}

// TestPosixOutbox_Write проверяет запись файла в outbox пользователя.
func TestPosixOutbox_Write(t *testing.T) {
	root := t.TempDir()
	outbox := NewPosixOutbox(root + "/%s/files")

	content := []byte("exported container")
	written, err := outbox.Write(context.Background(), "alice", "data.c4gh", bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Write ошибка: %v", err)
	}
	if written != int64(len(content)) {
		t.Errorf("written = %d, ожидалось %d", written, len(content))
	}

	got, err := os.ReadFile(filepath.Join(root, "alice", "files", "data.c4gh"))
	if err != nil {
		t.Fatalf("чтение записанного файла: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("в outbox %q, ожидалось %q", got, content)
	}
}

// TestPosixOutbox_NoOverwrite проверяет, что существующий файл не перезаписывается.
func TestPosixOutbox_NoOverwrite(t *testing.T) {
	root := t.TempDir()
	outbox := NewPosixOutbox(root + "/%s")

	original := []byte("original")
	if _, err := outbox.Write(context.Background(), "bob", "data.c4gh", bytes.NewReader(original)); err != nil {
		t.Fatalf("первая запись: %v", err)
	}

	_, err := outbox.Write(context.Background(), "bob", "data.c4gh", bytes.NewReader([]byte("replacement")))
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("ошибка = %v, ожидалась ErrAlreadyExists", err)
	}

	// Содержимое осталось прежним
	got, err := os.ReadFile(filepath.Join(root, "bob", "data.c4gh"))
	if err != nil {
		t.Fatalf("чтение файла: %v", err)
	}
	if !bytes.Equal(got, original) {
		t.Errorf("файл изменён: %q, ожидалось %q", got, original)
	}
}
