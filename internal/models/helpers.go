// Package models defines the persisted records of the watch-party service.
package models

import (
	"fmt"
	"math"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// RecordIDString safely extracts the string ID from a SurrealDB RecordID.
// Returns an error if the ID is not a string type.
func RecordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("unexpected ID type: %T (expected string)", id.ID)
	}
	return s, nil
}

// RecordIDInt extracts a numeric record key. CBOR decoding yields different
// integer widths depending on sign and size, so all of them are accepted.
func RecordIDInt(id surrealmodels.RecordID) (int64, error) {
	switch v := id.ID.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("record id %d overflows int64", v)
		}
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("record id %v is not integral", v)
		}
		return int64(v), nil
	default:
		return 0, fmt.Errorf("unexpected ID type: %T (expected integer)", id.ID)
	}
}

// MustRecordIDInt extracts the numeric ID, panicking if it is not an integer.
// Use only on records this package created.
func MustRecordIDInt(id surrealmodels.RecordID) int64 {
	n, err := RecordIDInt(id)
	if err != nil {
		panic(err)
	}
	return n
}
