package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Coordinate — координата диапазона экспорта.
// В очереди встречаются оба представления — число и строка с числом,
// поэтому разбор ручной.
type Coordinate uint64

// UnmarshalJSON принимает неотрицательное целое числом или строкой.
func (c *Coordinate) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*c = 0
		return nil
	}

	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("некорректная координата %s", data)
	}
	*c = Coordinate(v)
	return nil
}

// ExportRequest — запрос асинхронного экспорта из очереди exportRequests.
// Ровно одно из полей DatasetID / FileID должно быть заполнено.
type ExportRequest struct {
	// JWTToken — access token пользователя (passport или visa)
	JWTToken string `json:"jwtToken"`
	// DatasetID — идентификатор датасета для экспорта целиком
	DatasetID string `json:"datasetId,omitempty"`
	// FileID — идентификатор одного файла для экспорта
	FileID string `json:"fileId,omitempty"`
	// PublicKey — crypt4gh публичный ключ получателя (PEM или base64(PEM))
	PublicKey string `json:"publicKey"`
	// StartCoordinate — сколько байт расшифрованного содержимого пропустить
	StartCoordinate Coordinate `json:"startCoordinate,omitempty"`
	// EndCoordinate — сколько байт расшифрованного содержимого выдать
	EndCoordinate Coordinate `json:"endCoordinate,omitempty"`
}
