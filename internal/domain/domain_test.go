package domain

import "testing"

func TestValidParentage(t *testing.T) {
	cases := []struct {
		child, parent WorkItemType
		want          bool
	}{
		{WorkItemEpic, WorkItemProject, true},
		{WorkItemStory, WorkItemEpic, true},
		{WorkItemTask, WorkItemStory, true},
		{WorkItemStory, WorkItemProject, false},
		{WorkItemTask, WorkItemEpic, false},
		{WorkItemEpic, WorkItemStory, false},
	}
	for _, tc := range cases {
		if got := ValidParentage(tc.child, tc.parent); got != tc.want {
			t.Errorf("ValidParentage(%s, %s) = %v, want %v", tc.child, tc.parent, got, tc.want)
		}
	}
}

func TestValidProjectKey(t *testing.T) {
	valid := []string{"A", "ENG", "PROJ1", "ABCDEFGHIJ"}
	invalid := []string{"", "eng", "too-long-key", "has space", "ABCDEFGHIJK"}
	for _, k := range valid {
		if !ValidProjectKey(k) {
			t.Errorf("expected %q to be a valid project key", k)
		}
	}
	for _, k := range invalid {
		if ValidProjectKey(k) {
			t.Errorf("expected %q to be an invalid project key", k)
		}
	}
}

func TestParseDependencyType(t *testing.T) {
	if _, ok := ParseDependencyType("blocks"); !ok {
		t.Errorf("expected blocks to parse")
	}
	if _, ok := ParseDependencyType("relates_to"); !ok {
		t.Errorf("expected relates_to to parse")
	}
	if _, ok := ParseDependencyType("depends_on"); ok {
		t.Errorf("expected depends_on to be rejected")
	}
}

func TestUpdatedLog_CommentOnlyWhenChangesPresent(t *testing.T) {
	withChanges := UpdatedLog("work_item", "wi-1", "user-1", 2)
	if withChanges.Comment == nil || *withChanges.Comment != "2 fields changed" {
		t.Errorf("expected comment '2 fields changed', got %v", withChanges.Comment)
	}

	noChanges := UpdatedLog("work_item", "wi-1", "user-1", 0)
	if noChanges.Comment != nil {
		t.Errorf("expected nil comment when no fields changed, got %v", *noChanges.Comment)
	}
}

func TestWorkItem_DisplayKey(t *testing.T) {
	wi := WorkItem{ItemNumber: 42}
	if got := wi.DisplayKey("ENG"); got != "ENG-42" {
		t.Errorf("expected ENG-42, got %s", got)
	}
}
