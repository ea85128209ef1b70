package session

import (
	"context"
	"errors"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/ftag"
)

var (
	// ErrRadioDisabled indicates discovery was requested while the radio is off.
	ErrRadioDisabled = errors.New("session: radio disabled")
	// ErrNoGroup indicates a send without a joined group.
	ErrNoGroup = errors.New("session: no group")
	// ErrRoleMismatch indicates an operation that contradicts the role or group ownership.
	ErrRoleMismatch = errors.New("session: operation not allowed for role")
	// ErrTransferActive indicates a role change while a transfer is in flight.
	ErrTransferActive = errors.New("session: transfer active")
	// ErrUnknownPeer indicates a connect to an address missing from the peer list.
	ErrUnknownPeer = errors.New("session: unknown peer")
	// ErrClosed indicates use after Close.
	ErrClosed = errors.New("session: closed")
)

// KindLinkLayer tags failures reported by the link layer.
const KindLinkLayer ftag.Kind = "LINK_LAYER"

// statusError wraps an error that is also being published as a status value.
func statusError(err error, op string) error {
	var actionErr *ActionError
	kind := ftag.Internal
	if errors.As(err, &actionErr) {
		kind = KindLinkLayer
	}
	return fault.Wrap(err,
		fctx.With(context.Background(), "op", op),
		ftag.With(kind),
	)
}
