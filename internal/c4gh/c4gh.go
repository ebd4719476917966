// Пакет c4gh — работа с контейнерами crypt4gh.
// Оборачивает github.com/neicnordic/crypt4gh: загрузка ключей сервиса,
// пересборка заголовка под ключ получателя (reseal) и расшифровка потока.
// Сессионный ключ файла никогда не покидает пакет в открытом виде.
package c4gh

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/neicnordic/crypt4gh/keys"
	"github.com/neicnordic/crypt4gh/model/headers"
	"github.com/neicnordic/crypt4gh/streaming"
	"golang.org/x/crypto/chacha20poly1305"
)

// Key — 32-байтовый X25519-ключ в формате crypt4gh.
type Key = [chacha20poly1305.KeySize]byte

// LoadPrivateKey загружает приватный ключ сервиса из PEM-файла.
// passphrasePath — путь к файлу с passphrase (пустая строка — ключ без пароля).
func LoadPrivateKey(keyPath, passphrasePath string) (Key, error) {
	var passphrase []byte
	if passphrasePath != "" {
		data, err := os.ReadFile(passphrasePath)
		if err != nil {
			return Key{}, fmt.Errorf("чтение passphrase %s: %w", passphrasePath, err)
		}
		passphrase = []byte(strings.TrimSpace(string(data)))
	}

	f, err := os.Open(keyPath)
	if err != nil {
		return Key{}, fmt.Errorf("открытие приватного ключа %s: %w", keyPath, err)
	}
	defer f.Close()

	privKey, err := keys.ReadPrivateKey(f, passphrase)
	if err != nil {
		return Key{}, fmt.Errorf("разбор приватного ключа %s: %w", keyPath, err)
	}
	return privKey, nil
}

// ParsePublicKey разбирает публичный ключ получателя.
// Принимает PEM crypt4gh либо base64(PEM) — второй вариант используется
// в HTTP-заголовках и в запросах экспорта.
func ParsePublicKey(raw string) (Key, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Key{}, fmt.Errorf("пустой публичный ключ")
	}

	keyBytes := []byte(raw)
	if !strings.Contains(raw, "-----BEGIN") {
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return Key{}, fmt.Errorf("публичный ключ не PEM и не base64: %w", err)
		}
		keyBytes = decoded
	}

	pubKey, err := keys.ReadPublicKey(bytes.NewReader(keyBytes))
	if err != nil {
		return Key{}, fmt.Errorf("разбор публичного ключа: %w", err)
	}
	return pubKey, nil
}

// RangeDirective создаёт DataEditList-пакет для диапазона:
// пропустить skip байт расшифрованного содержимого, выдать emit байт.
func RangeDirective(skip, emit uint64) *headers.DataEditListHeaderPacket {
	return &headers.DataEditListHeaderPacket{
		PacketType:    headers.PacketType{PacketType: headers.DataEditList},
		NumberLengths: 2,
		Lengths:       []uint64{skip, emit},
	}
}

// Reencrypt пересобирает crypt4gh-заголовок под ключ получателя.
// Сессионный ключ исходного заголовка переносится в новый без расшифровки тела.
// directive (опционально) добавляется в новый заголовок, заменяя существующий
// DataEditList; при nil существующий DataEditList сохраняется.
func Reencrypt(header []byte, privKey, recipient Key, directive *headers.DataEditListHeaderPacket) ([]byte, error) {
	if len(header) == 0 {
		return nil, fmt.Errorf("пустой crypt4gh-заголовок")
	}

	var extra []headers.EncryptedHeaderPacket
	if directive != nil {
		extra = append(extra, *directive)
	}

	newHeader, err := headers.ReEncryptHeader(header, privKey, []Key{recipient}, extra...)
	if err != nil {
		return nil, fmt.Errorf("пересборка заголовка: %w", err)
	}
	return newHeader, nil
}

// Decrypt возвращает reader расшифрованного содержимого контейнера.
// source должен отдавать заголовок и тело единым потоком.
// directive (опционально) применяет диапазон {skip, emit} к расшифрованным байтам.
// Расшифровка ленивая — байты читаются из source по мере чтения результата.
func Decrypt(source io.Reader, privKey Key, directive *headers.DataEditListHeaderPacket) (io.Reader, error) {
	reader, err := streaming.NewCrypt4GHReader(source, privKey, directive)
	if err != nil {
		return nil, fmt.Errorf("открытие crypt4gh-потока: %w", err)
	}
	return reader, nil
}
