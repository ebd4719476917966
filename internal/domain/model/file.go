// Пакет model — доменные модели DOA Module.
// ArchivedFile — маппинг таблицы local_ega_ebi.file (owned by ingest pipeline).
package model

// ArchivedFile — запись файла в архиве (local_ega_ebi.file).
// DOA использует эту модель только для чтения: файлы регистрирует ingest,
// DOA отдаёт их наружу (streaming и export).
type ArchivedFile struct {
	// FileID — стабильный идентификатор файла (EGAF...)
	FileID string
	// DisplayFileName — имя файла для выдачи пользователю
	DisplayFileName string
	// FileName — имя файла в архиве
	FileName string
	// FilePath — путь (POSIX) или ключ объекта (S3) в архивном хранилище
	FilePath string
	// FileSize — размер зашифрованного файла в байтах
	FileSize int64
	// Checksum — контрольная сумма зашифрованного файла
	Checksum string
	// ChecksumType — тип контрольной суммы (SHA256, MD5)
	ChecksumType string
	// UnencryptedChecksum — контрольная сумма исходного файла
	UnencryptedChecksum string
	// UnencryptedChecksumType — тип контрольной суммы исходного файла
	UnencryptedChecksumType string
	// DecryptedFileSize — размер расшифрованного файла в байтах
	DecryptedFileSize int64
	// DecryptedFileChecksum — контрольная сумма расшифрованного содержимого
	DecryptedFileChecksum string
	// DecryptedFileChecksumType — тип контрольной суммы расшифрованного содержимого
	DecryptedFileChecksumType string
	// Status — статус файла в жизненном цикле ingest (ready, archived, ...)
	Status string
	// Header — crypt4gh-заголовок файла, hex-кодированный.
	// Тело в архиве хранится без заголовка.
	Header string
}

// DatasetEvent — запись журнала событий датасета (sda.dataset_event_log).
type DatasetEvent struct {
	// DatasetID — стабильный идентификатор датасета (EGAD...)
	DatasetID string
	// Event — событие жизненного цикла: registered, released, deprecated
	Event string
}

// События жизненного цикла датасета.
const (
	DatasetEventRegistered = "registered"
	DatasetEventReleased   = "released"
	DatasetEventDeprecated = "deprecated"
)
