// Package activity implements the change tracker and activity log
// (C13): comparing a current entity snapshot against a pending update
// to derive field-level changes, and recording + broadcasting the
// resulting audit event.
package activity

import "fmt"

// FieldChange is one {field_name, old, new} difference, string
// rendered because the wire protocol and the activity log only ever
// carry text for old/new values.
type FieldChange struct {
	FieldName string
	OldValue  *string
	NewValue  *string
}

// FieldChangeBuilder accumulates FieldChange entries, comparing
// string-rendered values and only keeping fields that actually
// differ.
type FieldChangeBuilder struct {
	changes []FieldChange
}

func NewFieldChangeBuilder() *FieldChangeBuilder {
	return &FieldChangeBuilder{}
}

// Track records a required-field change: both sides always present.
func (b *FieldChangeBuilder) Track(fieldName string, oldValue, newValue fmt.Stringer) {
	old, new := oldValue.String(), newValue.String()
	if old == new {
		return
	}
	b.changes = append(b.changes, FieldChange{FieldName: fieldName, OldValue: &old, NewValue: &new})
}

// TrackString is Track for plain strings, avoiding a Stringer wrapper
// at every call site.
func (b *FieldChangeBuilder) TrackString(fieldName, oldValue, newValue string) {
	if oldValue == newValue {
		return
	}
	b.changes = append(b.changes, FieldChange{FieldName: fieldName, OldValue: &oldValue, NewValue: &newValue})
}

// TrackOptionalString is track_option ported for *string fields: nil
// and "" are distinct old/new states worth recording.
func (b *FieldChangeBuilder) TrackOptionalString(fieldName string, oldValue, newValue *string) {
	if stringsEqual(oldValue, newValue) {
		return
	}
	b.changes = append(b.changes, FieldChange{FieldName: fieldName, OldValue: oldValue, NewValue: newValue})
}

func stringsEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (b *FieldChangeBuilder) Build() []FieldChange {
	return b.changes
}

func (b *FieldChangeBuilder) Len() int {
	return len(b.changes)
}
