// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package tasks

import "testing"

func TestGroupCompletesOnLastMember(t *testing.T) {
	tracker := NewGroupTracker()

	var done []*Record
	groupID := tracker.Register([]string{"t1", "t2", "t3"}, func(records []*Record) {
		done = records
	})

	tracker.Observe(&Record{ID: "t1", GroupID: groupID, Status: StatusSucceeded})
	tracker.Observe(&Record{ID: "t2", GroupID: groupID, Status: StatusFailed})
	if done != nil {
		t.Fatal("callback fired before the group drained")
	}

	status, ok := tracker.Status(groupID)
	if !ok || status.Remaining != 1 || status.Total != 3 {
		t.Errorf("unexpected mid-flight status: %+v", status)
	}

	tracker.Observe(&Record{ID: "t3", GroupID: groupID, Status: StatusSucceeded})
	if len(done) != 3 {
		t.Fatalf("callback got %d records, want 3", len(done))
	}

	if _, ok := tracker.Status(groupID); ok {
		t.Error("completed group should be dropped")
	}
	if tracker.Active() != 0 {
		t.Errorf("active groups = %d, want 0", tracker.Active())
	}
}

func TestObserveIgnoresUnrelatedRecords(t *testing.T) {
	tracker := NewGroupTracker()
	groupID := tracker.Register([]string{"t1"}, nil)

	// No group, wrong group, and non-member records must all be ignored.
	tracker.Observe(&Record{ID: "x", Status: StatusSucceeded})
	tracker.Observe(&Record{ID: "x", GroupID: "other", Status: StatusSucceeded})
	tracker.Observe(&Record{ID: "x", GroupID: groupID, Status: StatusSucceeded})

	status, ok := tracker.Status(groupID)
	if !ok || status.Remaining != 1 {
		t.Errorf("group state disturbed: %+v ok=%v", status, ok)
	}
}

func TestObserveSameMemberTwice(t *testing.T) {
	tracker := NewGroupTracker()

	fired := 0
	groupID := tracker.Register([]string{"t1", "t2"}, func([]*Record) { fired++ })

	rec := &Record{ID: "t1", GroupID: groupID, Status: StatusSucceeded}
	tracker.Observe(rec)
	tracker.Observe(rec) // duplicate terminal write must not double-count

	if status, _ := tracker.Status(groupID); status.Remaining != 1 {
		t.Errorf("remaining = %d, want 1", status.Remaining)
	}

	tracker.Observe(&Record{ID: "t2", GroupID: groupID, Status: StatusSucceeded})
	if fired != 1 {
		t.Errorf("callback fired %d times, want 1", fired)
	}
}
