package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap — произвольный jsonb-объект (аргументы отложенных задач и т.п.).
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unsupported type for JSONMap: %T", src)
	}
	return json.Unmarshal(b, m)
}

// Int достаёт целочисленное значение по ключу. После прохода через jsonb
// числа возвращаются как float64.
func (m JSONMap) Int(key string) (int, bool) {
	value, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := value.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}
