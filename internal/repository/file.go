package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goarchive/doa-module/internal/domain/model"
)

// fileColumns — список столбцов таблицы local_ega_ebi.file для SELECT-запросов.
// DRY: одно место для всех SELECT'ов.
const fileColumns = `file_id, display_file_name, file_name, file_path, file_size,
	checksum, checksum_type, unencrypted_checksum, unencrypted_checksum_type,
	decrypted_file_size, decrypted_file_checksum, decrypted_file_checksum_type,
	file_status, header`

// FileRepository — интерфейс доступа к файлам и правам на них.
// Все операции read-only.
type FileRepository interface {
	// GetByID возвращает файл по стабильному идентификатору.
	GetByID(ctx context.Context, fileID string) (*model.ArchivedFile, error)
	// ListByDataset возвращает файлы датасета в статусе ready.
	ListByDataset(ctx context.Context, datasetID string) ([]*model.ArchivedFile, error)
	// CheckPermission проверяет, входит ли файл хотя бы в один из датасетов.
	CheckPermission(ctx context.Context, fileID string, datasetIDs []string) (bool, error)
}

// fileRepo — реализация FileRepository через pgx.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

// GetByID возвращает файл по идентификатору или ErrNotFound.
func (r *fileRepo) GetByID(ctx context.Context, fileID string) (*model.ArchivedFile, error) {
	query := fmt.Sprintf(`SELECT %s FROM local_ega_ebi.file WHERE file_id = $1`, fileColumns)

	f := &model.ArchivedFile{}
	err := r.db.QueryRow(ctx, query, fileID).Scan(
		&f.FileID, &f.DisplayFileName, &f.FileName, &f.FilePath, &f.FileSize,
		&f.Checksum, &f.ChecksumType, &f.UnencryptedChecksum, &f.UnencryptedChecksumType,
		&f.DecryptedFileSize, &f.DecryptedFileChecksum, &f.DecryptedFileChecksumType,
		&f.Status, &f.Header,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения файла: %w", err)
	}
	return f, nil
}

// ListByDataset возвращает файлы датасета в статусе ready.
func (r *fileRepo) ListByDataset(ctx context.Context, datasetID string) ([]*model.ArchivedFile, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM local_ega_ebi.file f
		JOIN local_ega_ebi.file_dataset fd ON f.file_id = fd.file_id
		WHERE fd.dataset_id = $1 AND f.file_status = 'ready'
		ORDER BY f.file_id`, fileColumns)

	rows, err := r.db.Query(ctx, query, datasetID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения файлов датасета: %w", err)
	}
	defer rows.Close()

	var result []*model.ArchivedFile
	for rows.Next() {
		f := &model.ArchivedFile{}
		if err := rows.Scan(
			&f.FileID, &f.DisplayFileName, &f.FileName, &f.FilePath, &f.FileSize,
			&f.Checksum, &f.ChecksumType, &f.UnencryptedChecksum, &f.UnencryptedChecksumType,
			&f.DecryptedFileSize, &f.DecryptedFileChecksum, &f.DecryptedFileChecksumType,
			&f.Status, &f.Header,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования файла: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}
	return result, nil
}

// CheckPermission проверяет принадлежность файла к одному из датасетов.
// Пустой список датасетов — всегда false, без запроса к БД.
func (r *fileRepo) CheckPermission(ctx context.Context, fileID string, datasetIDs []string) (bool, error) {
	if len(datasetIDs) == 0 {
		return false, nil
	}

	query := `
		SELECT COUNT(*) FROM local_ega_ebi.file_dataset
		WHERE file_id = $1 AND dataset_id = ANY($2)`

	var count int
	if err := r.db.QueryRow(ctx, query, fileID, datasetIDs).Scan(&count); err != nil {
		return false, fmt.Errorf("ошибка проверки прав на файл: %w", err)
	}
	return count > 0, nil
}
