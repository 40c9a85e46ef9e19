package models

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/google/uuid"
)

// Metadata keys that carry a record change alongside an activity.
const (
	MetaTableName = "table_name"
	MetaRecordID  = "record_id"
	MetaOldValues = "old_values"
	MetaNewValues = "new_values"
)

// FieldChange is the before/after value of one changed field.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Diff is the structured before/after companion of an activity log entry.
type Diff struct {
	ActivityLogID  uuid.UUID
	OrganizationID string
	TableName      string
	RecordID       string
	OldValues      map[string]any
	NewValues      map[string]any
	Changes        map[string]FieldChange
}

// DiffFromMetadata extracts a record change from dispatch metadata.
// A diff is present only when the table name, the record id and at least one of the
// old/new value maps are supplied.
func DiffFromMetadata(orgID string, metadata map[string]any) (*Diff, bool) {
	if len(metadata) == 0 {
		return nil, false
	}
	table := stringValue(metadata[MetaTableName])
	record := stringValue(metadata[MetaRecordID])
	if table == "" || record == "" {
		return nil, false
	}
	oldValues, hasOld := mapValue(metadata[MetaOldValues])
	newValues, hasNew := mapValue(metadata[MetaNewValues])
	if !hasOld && !hasNew {
		return nil, false
	}
	return &Diff{
		OrganizationID: orgID,
		TableName:      table,
		RecordID:       record,
		OldValues:      oldValues,
		NewValues:      newValues,
		Changes:        ComputeChanges(oldValues, newValues),
	}, true
}

// ComputeChanges returns the fields whose values differ between old and new.
// Fields missing on one side are reported with a nil value on that side.
func ComputeChanges(oldValues, newValues map[string]any) map[string]FieldChange {
	changes := make(map[string]FieldChange)
	for _, key := range unionKeys(oldValues, newValues) {
		before, inOld := oldValues[key]
		after, inNew := newValues[key]
		if inOld && inNew && reflect.DeepEqual(before, after) {
			continue
		}
		changes[key] = FieldChange{Old: before, New: after}
	}
	return changes
}

func unionKeys(a, b map[string]any) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	keys := make([]string, 0, len(a)+len(b))
	for _, m := range []map[string]any{a, b} {
		for k := range m {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func mapValue(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok || m == nil {
		return nil, false
	}
	return m, true
}
