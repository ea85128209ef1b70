package session

import (
	"context"
	"errors"
	"testing"

	"pairshare/p2p"
	"pairshare/p2p/p2ptest"
)

func TestCreateGroupRepeatedLeavesOneGroup(t *testing.T) {
	medium := p2ptest.NewMedium()
	manager := medium.NewManager("Owner", "aa:aa", "127.0.0.1")
	s := newTestSession(t, manager, testSessionConfig{disableAutoListen: true})

	for i := 0; i < 3; i++ {
		if err := s.CreateGroup(context.Background()); err != nil {
			t.Fatalf("CreateGroup #%d failed: %v", i+1, err)
		}
	}

	if got := manager.Calls(p2ptest.OpCreateGroup); got != 3 {
		t.Fatalf("expected 3 create calls, got %d", got)
	}
	if got := manager.Calls(p2ptest.OpRemoveGroup); got != 2 {
		t.Fatalf("expected 2 remove calls before re-creating, got %d", got)
	}
	if group := manager.Group(); group == nil || !group.IsOwner {
		t.Fatalf("expected exactly one owned group, got %+v", group)
	}

	status := s.GroupStatus()
	if status.Kind != GroupSuccess || status.GroupName != "DIRECT-Owner" {
		t.Fatalf("unexpected group status %s", status)
	}
	if group := s.GroupInfo(); group == nil || !group.IsOwner {
		t.Fatalf("expected adapter group info, got %+v", group)
	}
}

func TestRemoveGroupIfNeedWithoutGroupIssuesNoRemoval(t *testing.T) {
	medium := p2ptest.NewMedium()
	manager := medium.NewManager("Owner", "aa:aa", "127.0.0.1")
	s := newTestSession(t, manager, testSessionConfig{disableAutoListen: true})

	if err := s.groups.RemoveGroupIfNeed(context.Background()); err != nil {
		t.Fatalf("RemoveGroupIfNeed failed: %v", err)
	}
	if got := manager.Calls(p2ptest.OpRemoveGroup); got != 0 {
		t.Fatalf("expected no remove calls, got %d", got)
	}
}

func TestRemoveGroupIfNeedFailureCountsAsCompletion(t *testing.T) {
	medium := p2ptest.NewMedium()
	manager := medium.NewManager("Owner", "aa:aa", "127.0.0.1")
	s := newTestSession(t, manager, testSessionConfig{disableAutoListen: true})

	if err := s.CreateGroup(context.Background()); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	manager.SetFailure(p2ptest.OpRemoveGroup, p2p.ReasonError)

	if err := s.groups.RemoveGroupIfNeed(context.Background()); err != nil {
		t.Fatalf("expected failed removal to complete without error, got %v", err)
	}
	if got := manager.Calls(p2ptest.OpRemoveGroup); got != 1 {
		t.Fatalf("expected one remove call and no retry, got %d", got)
	}

	// The stale group makes the following create fail with the transport reason.
	err := s.CreateGroup(context.Background())
	var actionErr *ActionError
	if !errors.As(err, &actionErr) || actionErr.Reason != p2p.ReasonBusy {
		t.Fatalf("expected busy create failure, got %v", err)
	}
	status := s.GroupStatus()
	if status.Kind != GroupError || status.Message != "create group failed: busy (2)" {
		t.Fatalf("unexpected group status %s", status)
	}
}

func TestRemoveGroupReportsStatus(t *testing.T) {
	medium := p2ptest.NewMedium()
	manager := medium.NewManager("Owner", "aa:aa", "127.0.0.1")
	s := newTestSession(t, manager, testSessionConfig{disableAutoListen: true})

	if err := s.RemoveGroup(context.Background()); err != nil {
		t.Fatalf("RemoveGroup without group failed: %v", err)
	}
	if s.GroupStatus().Kind != GroupIdle {
		t.Fatalf("expected idle status, got %s", s.GroupStatus())
	}

	if err := s.CreateGroup(context.Background()); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	manager.SetFailure(p2ptest.OpRemoveGroup, p2p.ReasonBusy)
	if err := s.RemoveGroup(context.Background()); err == nil {
		t.Fatalf("expected removal failure")
	}
	if status := s.GroupStatus(); status.Kind != GroupError || status.Message != "remove group failed: busy (2)" {
		t.Fatalf("unexpected group status %s", status)
	}

	manager.ClearFailure(p2ptest.OpRemoveGroup)
	if err := s.RemoveGroup(context.Background()); err != nil {
		t.Fatalf("RemoveGroup failed: %v", err)
	}
	if s.GroupStatus().Kind != GroupIdle || s.GroupInfo() != nil || manager.Group() != nil {
		t.Fatalf("expected group removed and status idle")
	}
}

func TestCreateGroupRejectedForSender(t *testing.T) {
	medium := p2ptest.NewMedium()
	manager := medium.NewManager("Owner", "aa:aa", "127.0.0.1")
	s := newTestSession(t, manager, testSessionConfig{disableAutoListen: true})

	if err := s.SelectRole(RoleSender); err != nil {
		t.Fatalf("SelectRole failed: %v", err)
	}
	if err := s.CreateGroup(context.Background()); !errors.Is(err, ErrRoleMismatch) {
		t.Fatalf("expected ErrRoleMismatch, got %v", err)
	}
	if got := manager.Calls(p2ptest.OpCreateGroup); got != 0 {
		t.Fatalf("expected no create calls, got %d", got)
	}
}
