package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/neicnordic/crypt4gh/keys"

	"github.com/bigkaa/goarchive/doa-module/internal/c4gh"
	"github.com/bigkaa/goarchive/doa-module/internal/domain/model"
	"github.com/bigkaa/goarchive/doa-module/internal/repository"
	"github.com/bigkaa/goarchive/doa-module/internal/storage"
)

// exportToken выпускает тестовый JWT с sub (подпись не проверяется экспортом).
func exportToken(t *testing.T, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("подпись токена: %v", err)
	}
	return signed
}

// recipientPEM генерирует ключ получателя и возвращает PEM и приватную часть.
func recipientPEM(t *testing.T) (string, c4gh.Key) {
	t.Helper()
	pub, priv, err := keys.GenerateKeyPair()
	if err != nil {
		t.Fatalf("генерация ключа получателя: %v", err)
	}
	buf := &bytes.Buffer{}
	if err := keys.WriteCrypt4GHX25519PublicKey(buf, pub); err != nil {
		t.Fatalf("сериализация ключа: %v", err)
	}
	return buf.String(), priv
}

// capturedWrite — одна запись в mock-outbox.
type capturedWrite struct {
	user     string
	filename string
	content  []byte
}

// newCapturingOutbox возвращает outbox, складывающий записи в срез.
func newCapturingOutbox(writes *[]capturedWrite) *mockOutbox {
	return &mockOutbox{
		writeFn: func(_ context.Context, user, filename string, r io.Reader) (int64, error) {
			content, err := io.ReadAll(r)
			if err != nil {
				return 0, err
			}
			*writes = append(*writes, capturedWrite{user: user, filename: filename, content: content})
			return int64(len(content)), nil
		},
	}
}

// newTestExportService собирает сервис экспорта над fixture.
func newTestExportService(
	fx *archiveFixture,
	fileRepo *mockFileRepo,
	datasetRepo *mockDatasetRepo,
	outbox *mockOutbox,
	authorized []string,
) *ExportService {
	archive := &mockArchive{
		openFn: func(_ context.Context, _ string) (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(fx.body)), nil
		},
	}
	streamingSvc := NewStreamingService(fileRepo, archive, fx.servicePrv, slog.Default())
	authorizer := &mockAuthorizer{
		getDatasetIDsFn: func(_ context.Context, _ string) ([]string, error) {
			return authorized, nil
		},
	}
	return NewExportService(authorizer, fileRepo, datasetRepo, streamingSvc, outbox, slog.Default())
}

// TestExportService_File проверяет экспорт одного файла: контейнер в outbox
// пользователя расшифровывается ключом получателя.
func TestExportService_File(t *testing.T) {
	fx := newArchiveFixture(t, []byte("exported payload"))
	pubPEM, recipientPriv := recipientPEM(t)

	fileRepo := &mockFileRepo{
		getByIDFn: func(_ context.Context, _ string) (*model.ArchivedFile, error) {
			return &model.ArchivedFile{
				FileID:          "EGAF001",
				DisplayFileName: "sample.bam",
				FilePath:        "/archive/EGAF001",
				Header:          fx.headerHex,
				Status:          "ready",
			}, nil
		},
	}

	var writes []capturedWrite
	svc := newTestExportService(fx, fileRepo, &mockDatasetRepo{}, newCapturingOutbox(&writes), []string{"EGAD001"})

	err := svc.Handle(context.Background(), model.ExportRequest{
		JWTToken:  exportToken(t, "alice@elixir-europe.org"),
		FileID:    "EGAF001",
		PublicKey: pubPEM,
	})
	if err != nil {
		t.Fatalf("Handle ошибка: %v", err)
	}

	if len(writes) != 1 {
		t.Fatalf("записей в outbox = %d, ожидалась 1", len(writes))
	}
	if writes[0].user != "alice@elixir-europe.org" {
		t.Errorf("user = %q, ожидался alice@elixir-europe.org", writes[0].user)
	}
	if writes[0].filename != "sample.bam" {
		t.Errorf("filename = %q, ожидался sample.bam", writes[0].filename)
	}

	decrypted, err := c4gh.Decrypt(bytes.NewReader(writes[0].content), recipientPriv, nil)
	if err != nil {
		t.Fatalf("расшифровка экспортированного контейнера: %v", err)
	}
	got, err := io.ReadAll(decrypted)
	if err != nil {
		t.Fatalf("чтение расшифрованного: %v", err)
	}
	if !bytes.Equal(got, fx.payload) {
		t.Errorf("расшифровано %q, ожидалось %q", got, fx.payload)
	}
}

// TestExportService_DatasetNotReleased проверяет отказ для не-released датасета.
func TestExportService_DatasetNotReleased(t *testing.T) {
	fx := newArchiveFixture(t, []byte("payload"))
	pubPEM, _ := recipientPEM(t)

	datasetRepo := &mockDatasetRepo{
		latestEventFn: func(_ context.Context, _ string) (string, error) {
			return model.DatasetEventDeprecated, nil
		},
	}
	fileRepo := &mockFileRepo{
		listByDatasetFn: func(_ context.Context, _ string) ([]*model.ArchivedFile, error) {
			t.Fatal("файлы не должны запрашиваться для не-released датасета")
			return nil, nil
		},
	}

	var writes []capturedWrite
	svc := newTestExportService(fx, fileRepo, datasetRepo, newCapturingOutbox(&writes), []string{"EGAD001"})

	err := svc.Handle(context.Background(), model.ExportRequest{
		JWTToken:  exportToken(t, "alice"),
		DatasetID: "EGAD001",
		PublicKey: pubPEM,
	})
	if !errors.Is(err, ErrDatasetNotReleased) {
		t.Errorf("ошибка = %v, ожидалась ErrDatasetNotReleased", err)
	}
	if len(writes) != 0 {
		t.Errorf("записей в outbox = %d, ожидался 0", len(writes))
	}
}

// TestExportService_DatasetViaAlias проверяет поиск датасета по reference-алиасу.
func TestExportService_DatasetViaAlias(t *testing.T) {
	fx := newArchiveFixture(t, []byte("alias payload"))
	pubPEM, _ := recipientPEM(t)

	datasetRepo := &mockDatasetRepo{
		latestEventFn: func(_ context.Context, datasetID string) (string, error) {
			if datasetID == "EGAD001" {
				return model.DatasetEventReleased, nil
			}
			return "", repository.ErrNotFound
		},
		stableIDByRefFn: func(_ context.Context, referenceID string) (string, error) {
			if referenceID == "DOI:10.1000/alias" {
				return "EGAD001", nil
			}
			return "", repository.ErrNotFound
		},
	}
	fileRepo := &mockFileRepo{
		listByDatasetFn: func(_ context.Context, datasetID string) ([]*model.ArchivedFile, error) {
			if datasetID != "EGAD001" {
				t.Errorf("ListByDataset(%q), ожидался EGAD001", datasetID)
			}
			return []*model.ArchivedFile{{
				FileID:          "EGAF001",
				DisplayFileName: "sample.bam",
				FilePath:        "/archive/EGAF001",
				Header:          fx.headerHex,
				Status:          "ready",
			}}, nil
		},
		getByIDFn: func(_ context.Context, _ string) (*model.ArchivedFile, error) {
			return &model.ArchivedFile{
				FileID:          "EGAF001",
				DisplayFileName: "sample.bam",
				FilePath:        "/archive/EGAF001",
				Header:          fx.headerHex,
				Status:          "ready",
			}, nil
		},
	}

	var writes []capturedWrite
	svc := newTestExportService(fx, fileRepo, datasetRepo, newCapturingOutbox(&writes), []string{"EGAD001"})

	err := svc.Handle(context.Background(), model.ExportRequest{
		JWTToken:  exportToken(t, "alice"),
		DatasetID: "DOI:10.1000/alias",
		PublicKey: pubPEM,
	})
	if err != nil {
		t.Fatalf("Handle ошибка: %v", err)
	}
	if len(writes) != 1 {
		t.Errorf("записей в outbox = %d, ожидалась 1", len(writes))
	}
}

// TestExportService_SkipExisting проверяет пропуск существующего файла
// в POSIX-outbox без прерывания задания.
func TestExportService_SkipExisting(t *testing.T) {
	fx := newArchiveFixture(t, []byte("payload"))
	pubPEM, _ := recipientPEM(t)

	fileRepo := &mockFileRepo{
		getByIDFn: func(_ context.Context, _ string) (*model.ArchivedFile, error) {
			return &model.ArchivedFile{
				FileID:          "EGAF001",
				DisplayFileName: "sample.bam",
				FilePath:        "/archive/EGAF001",
				Header:          fx.headerHex,
				Status:          "ready",
			}, nil
		},
	}
	outbox := &mockOutbox{
		writeFn: func(_ context.Context, _, _ string, _ io.Reader) (int64, error) {
			return 0, storage.ErrAlreadyExists
		},
	}

	svc := newTestExportService(fx, fileRepo, &mockDatasetRepo{}, outbox, []string{"EGAD001"})

	err := svc.Handle(context.Background(), model.ExportRequest{
		JWTToken:  exportToken(t, "alice"),
		FileID:    "EGAF001",
		PublicKey: pubPEM,
	})
	if err != nil {
		t.Errorf("Handle ошибка: %v, существующий файл должен пропускаться", err)
	}
}

// TestExportService_AbortOnFileError проверяет, что ошибка файла прерывает
// оставшиеся файлы датасета, а уже записанные остаются.
func TestExportService_AbortOnFileError(t *testing.T) {
	fx := newArchiveFixture(t, []byte("payload"))
	pubPEM, _ := recipientPEM(t)

	okFile := &model.ArchivedFile{
		FileID:          "EGAF001",
		DisplayFileName: "first.bam",
		FilePath:        "/archive/EGAF001",
		Header:          fx.headerHex,
		Status:          "ready",
	}
	brokenFile := &model.ArchivedFile{
		FileID:          "EGAF002",
		DisplayFileName: "second.bam",
		FilePath:        "/archive/EGAF002",
		Header:          "не hex",
		Status:          "ready",
	}
	thirdRequested := false

	datasetRepo := &mockDatasetRepo{
		latestEventFn: func(_ context.Context, _ string) (string, error) {
			return model.DatasetEventReleased, nil
		},
	}
	fileRepo := &mockFileRepo{
		listByDatasetFn: func(_ context.Context, _ string) ([]*model.ArchivedFile, error) {
			return []*model.ArchivedFile{okFile, brokenFile, {FileID: "EGAF003"}}, nil
		},
		getByIDFn: func(_ context.Context, fileID string) (*model.ArchivedFile, error) {
			switch fileID {
			case "EGAF001":
				return okFile, nil
			case "EGAF002":
				return brokenFile, nil
			default:
				thirdRequested = true
				return nil, repository.ErrNotFound
			}
		},
	}

	var writes []capturedWrite
	svc := newTestExportService(fx, fileRepo, datasetRepo, newCapturingOutbox(&writes), []string{"EGAD001"})

	err := svc.Handle(context.Background(), model.ExportRequest{
		JWTToken:  exportToken(t, "alice"),
		DatasetID: "EGAD001",
		PublicKey: pubPEM,
	})
	if err == nil {
		t.Fatal("ожидалась ошибка экспорта датасета")
	}

	// Первый файл записан, третий не запрашивался
	if len(writes) != 1 || writes[0].filename != "first.bam" {
		t.Errorf("записи в outbox = %v, ожидался только first.bam", writes)
	}
	if thirdRequested {
		t.Error("третий файл не должен обрабатываться после ошибки второго")
	}
}

// TestExportService_Unauthorized проверяет отказ авторизации credential.
func TestExportService_Unauthorized(t *testing.T) {
	fx := newArchiveFixture(t, []byte("payload"))
	pubPEM, _ := recipientPEM(t)

	var writes []capturedWrite
	svc := newTestExportService(fx, &mockFileRepo{}, &mockDatasetRepo{}, newCapturingOutbox(&writes), nil)
	svc.authorizer = &mockAuthorizer{
		getDatasetIDsFn: func(_ context.Context, _ string) ([]string, error) {
			return nil, errors.New("нет действующих разрешений")
		},
	}

	err := svc.Handle(context.Background(), model.ExportRequest{
		JWTToken:  exportToken(t, "mallory"),
		FileID:    "EGAF001",
		PublicKey: pubPEM,
	})
	if err == nil {
		t.Fatal("ожидалась ошибка авторизации")
	}
	if len(writes) != 0 {
		t.Errorf("записей в outbox = %d, ожидался 0", len(writes))
	}
}
