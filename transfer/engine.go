package transfer

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"pairshare/models"
)

const (
	DirectionSend    = "send"
	DirectionReceive = "receive"
)

// Tags for errors that end a job.
const (
	KindTimeout   ftag.Kind = "TIMEOUT"
	KindCancelled ftag.Kind = "CANCELLED"
)

// Status is the terminal state of a job.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusFailure  Status = "failed"
	StatusTimedOut Status = "timed_out"
)

// Job describes one send or receive in flight.
type Job struct {
	ID        string
	Direction string
	// Address is the remote host:port for sends, the listen address for receives.
	Address   string
	Payload   models.Payload
	StartedAt time.Time
	Deadline  time.Time
}

// Outcome is the terminal result of a Job.
type Outcome struct {
	Job
	Status     Status
	Err        error
	FinishedAt time.Time
}

// Message returns a one-line description of the outcome.
func (o Outcome) Message() string {
	switch o.Status {
	case StatusSuccess:
		if o.Payload.Type == models.PayloadFile {
			return "transferred " + o.Payload.Name
		}
		return "transferred " + strconv.Quote(o.Payload.Text)
	case StatusTimedOut:
		return "timed out"
	default:
		if o.Err != nil {
			return o.Err.Error()
		}
		return "transfer failed"
	}
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	// ListenHost restricts the receiver to one interface. Empty listens on all.
	ListenHost     string
	Port           int
	AcceptTimeout  time.Duration
	ConnectTimeout time.Duration
	ChunkSize      int
	ReceiveDir     string
	Logger         *zap.Logger
	// OnStart runs synchronously before the job goroutine starts.
	OnStart    func(Job)
	OnProgress func(Progress)
}

// Engine runs at most one receive and one send at a time.
type Engine struct {
	opts   EngineOptions
	log    *zap.Logger
	guard  *Guard
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// NewEngine creates an engine. Close releases all in-flight jobs.
func NewEngine(options EngineOptions) *Engine {
	if options.AcceptTimeout <= 0 {
		options.AcceptTimeout = DefaultAcceptTimeout
	}
	if options.ConnectTimeout <= 0 {
		options.ConnectTimeout = DefaultConnectTimeout
	}
	if options.ChunkSize <= 0 {
		options.ChunkSize = DefaultChunkSize
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		opts:   options,
		log:    logger.Named("transfer"),
		guard:  NewGuard(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// ListenAddress returns the address the receiver binds.
func (e *Engine) ListenAddress() string {
	return net.JoinHostPort(e.opts.ListenHost, strconv.Itoa(e.opts.Port))
}

// Active reports whether any job is in flight.
func (e *Engine) Active() bool {
	return e.guard.Any()
}

// Busy reports whether a job in the given direction is in flight.
func (e *Engine) Busy(direction string) bool {
	return e.guard.Held(direction)
}

// StartListener binds the receiver port and accepts one inbound payload in the
// background. It returns false without starting anything when a listener is
// already active or the engine is closed. Bind failures are reported through
// onDone.
func (e *Engine) StartListener(onDone func(Outcome)) (Job, bool) {
	if e.ctx.Err() != nil || !e.guard.TryAcquire(DirectionReceive) {
		return Job{}, false
	}

	now := time.Now()
	job := Job{
		ID:        uuid.NewString(),
		Direction: DirectionReceive,
		Address:   e.ListenAddress(),
		StartedAt: now,
		Deadline:  now.Add(e.opts.AcceptTimeout),
	}
	e.begin(job)

	listener, listenErr := Listen(e.ctx, job.Address)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		var (
			payload models.Payload
			err     = listenErr
		)
		if err == nil {
			payload, err = ReceiveOn(e.ctx, listener, ReceiveOptions{
				AcceptTimeout: e.opts.AcceptTimeout,
				ReceiveDir:    e.opts.ReceiveDir,
				ChunkSize:     e.opts.ChunkSize,
				OnProgress:    e.progressFor(job),
			})
		}
		outcome := e.finish(job, payload, err)
		e.guard.Release(DirectionReceive)
		if onDone != nil {
			onDone(outcome)
		}
	}()

	return job, true
}

// Send delivers one payload to address in the background. An address without
// a port is dialed on the engine port. It returns false without dialing when
// a send is already active or the engine is closed.
func (e *Engine) Send(address string, payload models.Payload, onDone func(Outcome)) (Job, bool) {
	if e.ctx.Err() != nil || !e.guard.TryAcquire(DirectionSend) {
		return Job{}, false
	}

	now := time.Now()
	job := Job{
		ID:        uuid.NewString(),
		Direction: DirectionSend,
		Address:   e.dialAddress(address),
		Payload:   payload,
		StartedAt: now,
		Deadline:  now.Add(e.opts.ConnectTimeout),
	}
	e.begin(job)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		sent, err := Send(e.ctx, job.Address, payload, SendOptions{
			ConnectTimeout: e.opts.ConnectTimeout,
			ChunkSize:      e.opts.ChunkSize,
			OnProgress:     e.progressFor(job),
		})
		if err != nil {
			sent = payload
		}
		outcome := e.finish(job, sent, err)
		e.guard.Release(DirectionSend)
		if onDone != nil {
			onDone(outcome)
		}
	}()

	return job, true
}

func (e *Engine) dialAddress(address string) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return net.JoinHostPort(address, strconv.Itoa(e.opts.Port))
}

// Close cancels in-flight jobs and waits for them to report.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.cancel()
	})
	e.wg.Wait()
	return nil
}

func (e *Engine) begin(job Job) {
	e.log.Debug("transfer started",
		zap.String("job_id", job.ID),
		zap.String("direction", job.Direction),
		zap.String("address", job.Address),
	)
	if e.opts.OnStart != nil {
		e.opts.OnStart(job)
	}
}

// finish builds and logs the outcome of job. Callers release the job's guard
// before passing the outcome to onDone.
func (e *Engine) finish(job Job, payload models.Payload, err error) Outcome {
	job.Payload = payload
	outcome := Outcome{Job: job, Status: StatusSuccess, FinishedAt: time.Now()}

	if err != nil {
		outcome.Status = StatusFailure
		kind := ftag.Internal
		message := "Transfer failed"
		switch {
		case errors.Is(err, ErrTimeout):
			outcome.Status = StatusTimedOut
			kind = KindTimeout
			message = "Transfer timed out"
		case errors.Is(err, context.Canceled):
			kind = KindCancelled
			message = "Transfer cancelled"
		}
		outcome.Err = fault.Wrap(err,
			fctx.With(context.Background(), "job_id", job.ID, "direction", job.Direction),
			ftag.With(kind),
			fmsg.With(message),
		)
		e.log.Warn("transfer ended",
			zap.String("job_id", job.ID),
			zap.String("direction", job.Direction),
			zap.String("status", string(outcome.Status)),
			zap.Error(err),
		)
	} else {
		e.log.Info("transfer complete",
			zap.String("job_id", job.ID),
			zap.String("direction", job.Direction),
			zap.String("payload", payload.String()),
		)
	}

	return outcome
}

func (e *Engine) progressFor(job Job) func(int64, int64) {
	if e.opts.OnProgress == nil {
		return nil
	}
	return func(bytes, total int64) {
		e.opts.OnProgress(Progress{
			JobID:     job.ID,
			Direction: job.Direction,
			Bytes:     bytes,
			Total:     total,
		})
	}
}
