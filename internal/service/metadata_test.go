package service

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"testing"

	"github.com/bigkaa/goarchive/doa-module/internal/domain/model"
)

// TestMetadataService_Datasets проверяет фильтрацию авторизованных датасетов
// по наличию в архиве.
func TestMetadataService_Datasets(t *testing.T) {
	datasetRepo := &mockDatasetRepo{
		filterPresentFn: func(_ context.Context, datasetIDs []string) ([]string, error) {
			want := []string{"EGAD001", "EGAD002", "EGAD003"}
			if !reflect.DeepEqual(datasetIDs, want) {
				t.Errorf("FilterPresent(%v), ожидался %v", datasetIDs, want)
			}
			return []string{"EGAD001", "EGAD003"}, nil
		},
	}
	svc := NewMetadataService(&mockFileRepo{}, datasetRepo, slog.Default())

	got, err := svc.Datasets(context.Background(), []string{"EGAD001", "EGAD002", "EGAD003"})
	if err != nil {
		t.Fatalf("Datasets ошибка: %v", err)
	}
	want := []string{"EGAD001", "EGAD003"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Datasets = %v, ожидался %v", got, want)
	}
}

// TestMetadataService_DatasetFiles проверяет выдачу файлов авторизованного датасета.
func TestMetadataService_DatasetFiles(t *testing.T) {
	files := []*model.ArchivedFile{
		{FileID: "EGAF001", DisplayFileName: "a.bam", Status: "ready"},
		{FileID: "EGAF002", DisplayFileName: "b.bam", Status: "ready"},
	}
	fileRepo := &mockFileRepo{
		listByDatasetFn: func(_ context.Context, datasetID string) ([]*model.ArchivedFile, error) {
			if datasetID != "EGAD001" {
				t.Errorf("ListByDataset(%q), ожидался EGAD001", datasetID)
			}
			return files, nil
		},
	}
	svc := NewMetadataService(fileRepo, &mockDatasetRepo{}, slog.Default())

	got, err := svc.DatasetFiles(context.Background(), []string{"EGAD001", "EGAD002"}, "EGAD001")
	if err != nil {
		t.Fatalf("DatasetFiles ошибка: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("файлов = %d, ожидалось 2", len(got))
	}
}

// TestMetadataService_DatasetFilesForbidden проверяет отказ для датасета
// вне авторизованного множества.
func TestMetadataService_DatasetFilesForbidden(t *testing.T) {
	fileRepo := &mockFileRepo{
		listByDatasetFn: func(_ context.Context, _ string) ([]*model.ArchivedFile, error) {
			t.Fatal("ListByDataset не должен вызываться без авторизации")
			return nil, nil
		},
	}
	svc := NewMetadataService(fileRepo, &mockDatasetRepo{}, slog.Default())

	_, err := svc.DatasetFiles(context.Background(), []string{"EGAD001"}, "EGAD999")
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("ошибка = %v, ожидалась ErrPermissionDenied", err)
	}
}
