package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/viant/gatekeep/model"
)

func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// marshalJSON returns NULL for nil values.
func marshalJSON(v interface{}) (sql.NullString, error) {
	switch actual := v.(type) {
	case nil:
		return sql.NullString{}, nil
	case map[string]interface{}:
		if actual == nil {
			return sql.NullString{}, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal json: %w", err)
	}
	if string(data) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalJSON(text sql.NullString, target interface{}) error {
	if !text.Valid || text.String == "" {
		return nil
	}
	if err := model.DecodeJSON([]byte(text.String), target); err != nil {
		return fmt.Errorf("unmarshal json: %w", err)
	}
	return nil
}
