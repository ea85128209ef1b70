package session

import (
	"context"
	"sync"

	"pairshare/models"
	"pairshare/p2p"
)

// ActionError is a link-layer action failure carrying the transport reason.
type ActionError struct {
	Op     string
	Reason p2p.Reason
}

func (e *ActionError) Error() string {
	return e.Op + " failed: " + e.Reason.String()
}

// await issues a callback-style link-layer action and blocks until its
// listener fires or ctx ends. Only the first callback resumes the caller.
func await(ctx context.Context, op string, issue func(p2p.ActionListener)) error {
	done := make(chan error, 1)
	var once sync.Once
	resume := func(err error) {
		once.Do(func() {
			done <- err
		})
	}

	issue(p2p.ActionListener{
		OnSuccess: func() {
			resume(nil)
		},
		OnFailure: func(reason p2p.Reason) {
			resume(&ActionError{Op: op, Reason: reason})
		},
	})

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// requestGroupInfo awaits Manager.RequestGroupInfo.
func requestGroupInfo(ctx context.Context, manager p2p.Manager) (*models.GroupInfo, error) {
	done := make(chan *models.GroupInfo, 1)
	var once sync.Once
	manager.RequestGroupInfo(func(info *models.GroupInfo) {
		once.Do(func() {
			done <- info
		})
	})

	select {
	case info := <-done:
		return info, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
