package services

import (
	"context"
	"errors"
	"fmt"
)

// Strategy is one way of turning a request into a result.
type Strategy[Req, Res any] struct {
	Name string
	Run  func(ctx context.Context, req Req) (Res, error)
	// Continue decides whether a failure of this strategy lets the next one run.
	// Nil means always.
	Continue func(err error) bool
}

// haltError stops FirstSuccess from trying the strategies after it.
type haltError struct {
	err error
}

func (h haltError) Error() string { return h.err.Error() }
func (h haltError) Unwrap() error { return h.err }

// Halt marks err as not worth handing to the next strategy.
func Halt(err error) error {
	if err == nil {
		return nil
	}
	return haltError{err: err}
}

// StrategyError records which strategy produced err.
type StrategyError struct {
	Strategy string
	Err      error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Strategy, e.Err)
}

func (e *StrategyError) Unwrap() error {
	return e.Err
}

// FirstSuccess runs strategies in order and returns the first result that
// did not fail. When all fail the errors are joined in order.
func FirstSuccess[Req, Res any](strategies ...Strategy[Req, Res]) func(ctx context.Context, req Req) (Res, error) {
	return func(ctx context.Context, req Req) (Res, error) {
		var zero Res
		if len(strategies) == 0 {
			return zero, ErrNoStrategies
		}
		var errs []error
		for _, strategy := range strategies {
			if err := ctx.Err(); err != nil {
				errs = append(errs, err)
				break
			}
			res, err := strategy.Run(ctx, req)
			if err == nil {
				return res, nil
			}
			errs = append(errs, &StrategyError{Strategy: strategy.Name, Err: err})
			var halt haltError
			if errors.As(err, &halt) {
				break
			}
			if strategy.Continue != nil && !strategy.Continue(err) {
				break
			}
		}
		return zero, errors.Join(errs...)
	}
}
