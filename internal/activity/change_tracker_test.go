package activity

import "testing"

func TestFieldChangeBuilder_OnlyKeepsDifferingFields(t *testing.T) {
	b := NewFieldChangeBuilder()
	b.TrackString("title", "Old Title", "New Title")
	b.TrackString("status", "todo", "todo")

	changes := b.Build()
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d: %+v", len(changes), changes)
	}
	if changes[0].FieldName != "title" || *changes[0].OldValue != "Old Title" || *changes[0].NewValue != "New Title" {
		t.Errorf("unexpected change: %+v", changes[0])
	}
}

func TestTrackOptionalString_DistinguishesNilFromEmpty(t *testing.T) {
	b := NewFieldChangeBuilder()
	empty := ""
	b.TrackOptionalString("description", nil, &empty)

	if b.Len() != 1 {
		t.Fatalf("expected nil vs empty-string to count as a change, got %d changes", b.Len())
	}
}

func TestTrackOptionalString_BothNilIsNoChange(t *testing.T) {
	b := NewFieldChangeBuilder()
	b.TrackOptionalString("description", nil, nil)
	if b.Len() != 0 {
		t.Fatalf("expected no change, got %d", b.Len())
	}
}
