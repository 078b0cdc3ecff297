package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fashionstudio/models"

	"github.com/rs/zerolog"
)

type PollState string

const (
	StateSubmitted PollState = "SUBMITTED"
	StatePolling   PollState = "POLLING"
	StateDone      PollState = "DONE"
	StateFailed    PollState = "FAILED"
	StateTimeout   PollState = "TIMEOUT"
)

const (
	DefaultVideoPollInterval = 5 * time.Second
	DefaultVideoMaxAttempts  = 120
	defaultMaxTransientError = 3
)

// PollBudget bounds every poll loop. A zero MaxAttempts is not allowed.
type PollBudget struct {
	Interval           time.Duration
	MaxAttempts        int
	MaxTransientErrors int
}

func (b PollBudget) validate() error {
	if b.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", b.Interval)
	}
	if b.MaxAttempts <= 0 {
		return fmt.Errorf("poll attempts must be positive, got %d", b.MaxAttempts)
	}
	return nil
}

// PollResult is the terminal snapshot of one poller run.
type PollResult struct {
	State     PollState
	Operation models.Operation
	Attempts  int
}

// OperationFailedError carries the upstream error text verbatim.
type OperationFailedError struct {
	OperationID string
	Message     string
}

func (e *OperationFailedError) Error() string {
	return e.Message
}

// VideoPoller drives an operation from submission to a terminal state.
type VideoPoller struct {
	Source OperationSource
	Clock  Clock
	Budget PollBudget
	Logger zerolog.Logger

	// OnTransition, when set, observes every state change.
	OnTransition func(from, to PollState, op models.Operation)
}

func NewVideoPoller(source OperationSource, clock Clock, logger zerolog.Logger) *VideoPoller {
	return &VideoPoller{
		Source: source,
		Clock:  clock,
		Budget: PollBudget{
			Interval:           DefaultVideoPollInterval,
			MaxAttempts:        DefaultVideoMaxAttempts,
			MaxTransientErrors: defaultMaxTransientError,
		},
		Logger: logger,
	}
}

func (p *VideoPoller) transition(result *PollResult, to PollState) {
	from := result.State
	result.State = to
	if p.OnTransition != nil {
		p.OnTransition(from, to, result.Operation)
	}
	p.Logger.Debug().
		Str("op", result.Operation.ID).
		Str("from", string(from)).
		Str("to", string(to)).
		Int("attempt", result.Attempts).
		Msg("video operation state")
}

// Run submits req and polls until the operation is terminal or the budget runs out.
func (p *VideoPoller) Run(ctx context.Context, session models.SessionConfig, req models.VideoRequest) (PollResult, error) {
	if err := p.Budget.validate(); err != nil {
		return PollResult{}, err
	}
	op, err := p.Source.Submit(ctx, session, req)
	if err != nil {
		return PollResult{State: StateFailed}, fmt.Errorf("submit video operation: %w", err)
	}
	return p.Poll(ctx, session, op)
}

// Poll continues an already submitted operation. The first status check
// happens only after one full interval.
func (p *VideoPoller) Poll(ctx context.Context, session models.SessionConfig, op models.Operation) (PollResult, error) {
	if err := p.Budget.validate(); err != nil {
		return PollResult{}, err
	}
	result := PollResult{State: StateSubmitted, Operation: op}
	if terminal, err := p.settle(&result); terminal {
		return result, err
	}

	p.transition(&result, StatePolling)
	transientErrors := 0
	for result.Attempts < p.Budget.MaxAttempts {
		if err := p.Clock.Sleep(ctx, p.Budget.Interval); err != nil {
			p.transition(&result, StateFailed)
			return result, err
		}
		result.Attempts++

		current, err := p.Source.Get(ctx, session, result.Operation.ID)
		if err != nil {
			if IsTransportFailure(err) && transientErrors+1 < p.Budget.MaxTransientErrors && ctx.Err() == nil {
				transientErrors++
				p.Logger.Warn().Err(err).Str("op", result.Operation.ID).Int("attempt", result.Attempts).Msg("video poll failed, retrying")
				continue
			}
			p.transition(&result, StateFailed)
			return result, fmt.Errorf("poll video operation: %w", err)
		}
		transientErrors = 0
		if current.ID == "" {
			current.ID = result.Operation.ID
		}
		result.Operation = current

		if terminal, err := p.settle(&result); terminal {
			return result, err
		}
	}

	p.transition(&result, StateTimeout)
	return result, fmt.Errorf("%w: %d attempts every %s", ErrPollTimeout, result.Attempts, p.Budget.Interval)
}

// settle moves result into DONE or FAILED when the operation is terminal.
func (p *VideoPoller) settle(result *PollResult) (bool, error) {
	op := result.Operation
	switch op.Status {
	case models.OperationError:
		p.transition(result, StateFailed)
		return true, &OperationFailedError{OperationID: op.ID, Message: op.Error}
	case models.OperationDone:
		if op.ResultURI == "" {
			p.transition(result, StateFailed)
			message := ErrMissingResult.Error()
			if op.Error != "" {
				message += ": " + op.Error
			}
			return true, &missingResultError{message: message}
		}
		p.transition(result, StateDone)
		return true, nil
	}
	return false, nil
}

type missingResultError struct {
	message string
}

func (e *missingResultError) Error() string { return e.message }
func (e *missingResultError) Is(target error) bool {
	return target == ErrMissingResult
}

// IsOperationFailure reports whether err is a provider-declared failure
// rather than a transport or budget problem.
func IsOperationFailure(err error) bool {
	var failed *OperationFailedError
	return errors.As(err, &failed) || errors.Is(err, ErrMissingResult)
}
