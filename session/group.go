package session

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"pairshare/p2p"
)

// GroupCoordinator owns group create and remove. Every create is preceded by
// a completed removal of any existing group.
type GroupCoordinator struct {
	manager p2p.Manager
	state   *State
	log     *zap.Logger
}

func newGroupCoordinator(manager p2p.Manager, state *State, logger *zap.Logger) *GroupCoordinator {
	return &GroupCoordinator{manager: manager, state: state, log: logger}
}

// CreateGroup removes any existing group, then creates a new one and reports
// the result through GroupCreationStatus. It returns the new group name.
func (g *GroupCoordinator) CreateGroup(ctx context.Context) (string, error) {
	g.state.setGroupStatus(GroupCreationStatus{Kind: GroupInProgress})

	if err := g.RemoveGroupIfNeed(ctx); err != nil {
		g.state.setGroupStatus(GroupCreationStatus{Kind: GroupError, Message: err.Error()})
		return "", statusError(err, "create group")
	}

	if err := await(ctx, "create group", g.manager.CreateGroup); err != nil {
		g.state.setGroupStatus(GroupCreationStatus{Kind: GroupError, Message: err.Error()})
		return "", statusError(err, "create group")
	}

	info, err := requestGroupInfo(ctx, g.manager)
	if err != nil {
		g.state.setGroupStatus(GroupCreationStatus{Kind: GroupError, Message: err.Error()})
		return "", statusError(err, "create group")
	}
	var name string
	if info != nil {
		name = info.Name
	}
	g.state.setGroupStatus(GroupCreationStatus{Kind: GroupSuccess, GroupName: name})
	g.state.logf("group created: %s", name)
	return name, nil
}

// RemoveGroupIfNeed removes the current group if there is one and waits for
// the removal callback. Without a group it returns immediately and issues no
// removal. A failed removal is logged and still counts as completion; only
// context cancellation is returned.
func (g *GroupCoordinator) RemoveGroupIfNeed(ctx context.Context) error {
	info, err := requestGroupInfo(ctx, g.manager)
	if err != nil {
		return err
	}
	if info == nil {
		return nil
	}

	if err := await(ctx, "remove group", g.manager.RemoveGroup); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		g.log.Warn("remove existing group failed", zap.Error(err))
		g.state.logf("%s", err.Error())
	}
	return nil
}

// RemoveGroup removes the current group. No group counts as success. The
// outcome is reported as GroupIdle or GroupError.
func (g *GroupCoordinator) RemoveGroup(ctx context.Context) error {
	info, err := requestGroupInfo(ctx, g.manager)
	if err != nil {
		return err
	}
	if info == nil {
		g.state.setGroupStatus(GroupCreationStatus{Kind: GroupIdle})
		return nil
	}

	if err := await(ctx, "remove group", g.manager.RemoveGroup); err != nil {
		var actionErr *ActionError
		if errors.As(err, &actionErr) {
			g.state.setGroupStatus(GroupCreationStatus{Kind: GroupError, Message: err.Error()})
		}
		return statusError(err, "remove group")
	}
	g.state.setGroupStatus(GroupCreationStatus{Kind: GroupIdle})
	g.state.logf("group removed")
	return nil
}
