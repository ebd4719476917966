package service

import (
	"context"
	"io"

	"github.com/bigkaa/goarchive/doa-module/internal/domain/model"
)

// --- Mock-реализации зависимостей сервисного слоя ---

// mockFileRepo — mock FileRepository с переопределяемыми функциями.
type mockFileRepo struct {
	getByIDFn         func(ctx context.Context, fileID string) (*model.ArchivedFile, error)
	listByDatasetFn   func(ctx context.Context, datasetID string) ([]*model.ArchivedFile, error)
	checkPermissionFn func(ctx context.Context, fileID string, datasetIDs []string) (bool, error)
}

func (m *mockFileRepo) GetByID(ctx context.Context, fileID string) (*model.ArchivedFile, error) {
	return m.getByIDFn(ctx, fileID)
}

func (m *mockFileRepo) ListByDataset(ctx context.Context, datasetID string) ([]*model.ArchivedFile, error) {
	return m.listByDatasetFn(ctx, datasetID)
}

func (m *mockFileRepo) CheckPermission(ctx context.Context, fileID string, datasetIDs []string) (bool, error) {
	if m.checkPermissionFn != nil {
		return m.checkPermissionFn(ctx, fileID, datasetIDs)
	}
	return true, nil
}

// mockDatasetRepo — mock DatasetRepository.
type mockDatasetRepo struct {
	filterPresentFn func(ctx context.Context, datasetIDs []string) ([]string, error)
	latestEventFn   func(ctx context.Context, datasetID string) (string, error)
	stableIDByRefFn func(ctx context.Context, referenceID string) (string, error)
}

func (m *mockDatasetRepo) FilterPresent(ctx context.Context, datasetIDs []string) ([]string, error) {
	return m.filterPresentFn(ctx, datasetIDs)
}

func (m *mockDatasetRepo) LatestEvent(ctx context.Context, datasetID string) (string, error) {
	return m.latestEventFn(ctx, datasetID)
}

func (m *mockDatasetRepo) StableIDByReference(ctx context.Context, referenceID string) (string, error) {
	return m.stableIDByRefFn(ctx, referenceID)
}

// mockArchive — mock ArchiveReader.
type mockArchive struct {
	openFn func(ctx context.Context, filePath string) (io.ReadCloser, error)
}

func (m *mockArchive) Open(ctx context.Context, filePath string) (io.ReadCloser, error) {
	return m.openFn(ctx, filePath)
}

// mockOutbox — mock OutboxWriter, складывающий записи в память.
type mockOutbox struct {
	writeFn func(ctx context.Context, user, filename string, r io.Reader) (int64, error)
}

func (m *mockOutbox) Write(ctx context.Context, user, filename string, r io.Reader) (int64, error) {
	return m.writeFn(ctx, user, filename, r)
}

// mockAuthorizer — mock Authorizer.
type mockAuthorizer struct {
	getDatasetIDsFn func(ctx context.Context, credential string) ([]string, error)
}

func (m *mockAuthorizer) GetDatasetIDs(ctx context.Context, credential string) ([]string, error) {
	return m.getDatasetIDsFn(ctx, credential)
}
