// Пакет service — бизнес-логика DOA Module:
// streaming выдача файлов, метаданные датасетов, асинхронный экспорт.
package service

import "errors"

// Ошибки сервисного слоя.
var (
	// ErrNotFound — файл или датасет не найден.
	ErrNotFound = errors.New("объект не найден")
	// ErrPermissionDenied — у пользователя нет прав на файл или датасет.
	ErrPermissionDenied = errors.New("доступ запрещён")
	// ErrDatasetNotReleased — датасет не в состоянии released.
	ErrDatasetNotReleased = errors.New("датасет не released")
	// ErrUnknownFormat — неизвестный формат выдачи.
	ErrUnknownFormat = errors.New("неизвестный формат выдачи, допустимые: plain, crypt4gh")
	// ErrPublicKeyRequired — для crypt4gh-выдачи нужен ключ получателя.
	ErrPublicKeyRequired = errors.New("для формата crypt4gh требуется публичный ключ получателя")
)

// Format — формат выдачи файла. Закрытое перечисление.
type Format string

const (
	// FormatPlain — расшифрованное содержимое.
	FormatPlain Format = "plain"
	// FormatCrypt4GH — crypt4gh-контейнер, пересобранный под ключ получателя.
	FormatCrypt4GH Format = "crypt4gh"
)

// ParseFormat разбирает формат выдачи. Пустая строка — plain.
// Любое другое значение — ErrUnknownFormat.
func ParseFormat(raw string) (Format, error) {
	switch Format(raw) {
	case "", FormatPlain:
		return FormatPlain, nil
	case FormatCrypt4GH:
		return FormatCrypt4GH, nil
	default:
		return "", ErrUnknownFormat
	}
}
