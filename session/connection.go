package session

import (
	"context"

	"go.uber.org/zap"

	"pairshare/models"
	"pairshare/p2p"
)

// ConnectionManager joins and leaves another device's group. It opens no data
// socket; group info arrives through the adapter.
type ConnectionManager struct {
	manager p2p.Manager
	adapter *Adapter
	state   *State
	log     *zap.Logger
}

func newConnectionManager(manager p2p.Manager, adapter *Adapter, state *State, logger *zap.Logger) *ConnectionManager {
	return &ConnectionManager{manager: manager, adapter: adapter, state: state, log: logger}
}

// Connect asks the link layer to join peer's group.
func (c *ConnectionManager) Connect(ctx context.Context, peer models.PeerDevice) error {
	config := p2p.Config{DeviceAddress: peer.Address}
	err := await(ctx, "connect", func(listener p2p.ActionListener) {
		c.manager.Connect(config, listener)
	})
	if err != nil {
		c.state.setReceiverState(ReceiverState{Kind: ReceiverError, Message: err.Error()})
		return statusError(err, "connect")
	}

	c.state.setReceiverState(ReceiverState{Kind: ReceiverConnecting, DeviceName: peer.Name})
	return nil
}

// Disconnect cancels any pending connect and removes the group whether or
// not one exists. Link-layer results are only logged; group info is cleared
// regardless.
func (c *ConnectionManager) Disconnect(ctx context.Context) error {
	defer c.adapter.clearGroup()

	if err := await(ctx, "cancel connect", c.manager.CancelConnect); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.log.Debug("cancel connect failed", zap.Error(err))
		c.state.logf("%s", err.Error())
	}

	if err := await(ctx, "remove group", c.manager.RemoveGroup); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.log.Debug("remove group failed", zap.Error(err))
		c.state.logf("%s", err.Error())
	} else {
		c.state.logf("disconnected from group")
	}
	return nil
}
