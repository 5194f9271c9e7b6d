package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SchemaFieldType — допустимые типы полей в схеме результата игры.
const (
	SchemaFieldInt    = "int"
	SchemaFieldString = "string"
	SchemaFieldBool   = "bool"
)

type SchemaField struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// ResultSchema описывает, как выглядит валидный payload результата для игры.
// Хранится как jsonb в строке игры; версия растёт при каждом изменении схемы,
// поэтому результаты верификации никогда не кэшируются между вызовами.
type ResultSchema struct {
	Version      int           `json:"version"`
	Fields       []SchemaField `json:"fields"`
	ScorePattern string        `json:"score_pattern,omitempty"` // regexp для поля score, по умолчанию "^\d+-\d+$"
}

func (s ResultSchema) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *ResultSchema) Scan(src interface{}) error {
	if src == nil {
		*s = ResultSchema{}
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unsupported type for ResultSchema: %T", src)
	}
	return json.Unmarshal(b, s)
}

// Game — игровая дисциплина с собственной схемой результата.
type Game struct {
	ID           int          `json:"id" db:"id"`
	Slug         string       `json:"slug" db:"slug"`
	Name         string       `json:"name" db:"name"`
	ResultSchema ResultSchema `json:"result_schema" db:"result_schema"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
}
