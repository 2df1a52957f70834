package types

import (
	"database/sql/driver"
	"encoding/json"

	ierr "github.com/servorahq/servora/internal/errors"
)

// Metadata is a free-form key value store persisted as JSONB.
type Metadata map[string]string

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = Metadata{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return ierr.NewError("unsupported metadata column type").
			Mark(ierr.ErrDatabase)
	}

	if len(data) == 0 {
		*m = Metadata{}
		return nil
	}
	return json.Unmarshal(data, m)
}

// Merge returns a copy of m overlaid with the given overrides.
func (m Metadata) Merge(overrides Metadata) Metadata {
	out := make(Metadata, len(m)+len(overrides))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
