package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"fashionstudio/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) elapsed() time.Duration {
	var total time.Duration
	for _, d := range c.sleeps {
		total += d
	}
	return total
}

type scriptedSource struct {
	clock      *fakeClock
	submitted  models.Operation
	responses  []models.Operation
	errs       []error
	getCalls   int
	getElapsed []time.Duration
}

func (s *scriptedSource) Submit(ctx context.Context, session models.SessionConfig, req models.VideoRequest) (models.Operation, error) {
	return s.submitted, nil
}

func (s *scriptedSource) Get(ctx context.Context, session models.SessionConfig, id string) (models.Operation, error) {
	i := s.getCalls
	s.getCalls++
	s.getElapsed = append(s.getElapsed, s.clock.elapsed())
	if i < len(s.errs) && s.errs[i] != nil {
		return models.Operation{}, s.errs[i]
	}
	if i >= len(s.responses) {
		return models.Operation{ID: id, Status: models.OperationPending}, nil
	}
	return s.responses[i], nil
}

func newTestPoller(source OperationSource, clock Clock, attempts int) *VideoPoller {
	poller := NewVideoPoller(source, clock, zerolog.Nop())
	poller.Budget.MaxAttempts = attempts
	return poller
}

var testSession = models.NewSessionConfig("AIzaSyA1234567890abcdefghijklmnopqrstu", models.EN, "http://gateway.local")

func TestPollerSleepsBeforeFirstCheck(t *testing.T) {
	clock := newFakeClock()
	source := &scriptedSource{
		clock:     clock,
		submitted: models.Operation{ID: "models/veo/operations/1", Status: models.OperationPending},
		responses: []models.Operation{
			{ID: "models/veo/operations/1", Status: models.OperationPending},
			{ID: "models/veo/operations/1", Status: models.OperationDone, ResultURI: "https://upstream/v1beta/files/a:download"},
		},
	}
	poller := newTestPoller(source, clock, 10)

	var states []PollState
	poller.OnTransition = func(from, to PollState, op models.Operation) {
		states = append(states, to)
	}

	result, err := poller.Run(context.Background(), testSession, models.VideoRequest{Prompt: "runway walk"})
	require.NoError(t, err)
	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, 2, result.Attempts)
	require.Len(t, source.getElapsed, 2)
	assert.GreaterOrEqual(t, source.getElapsed[0], DefaultVideoPollInterval)
	assert.Equal(t, []time.Duration{DefaultVideoPollInterval, DefaultVideoPollInterval}, clock.sleeps)
	assert.Equal(t, []PollState{StatePolling, StateDone}, states)
}

func TestPollerDoneWithoutURIFails(t *testing.T) {
	clock := newFakeClock()
	source := &scriptedSource{
		clock:     clock,
		submitted: models.Operation{ID: "op", Status: models.OperationPending},
		responses: []models.Operation{{ID: "op", Status: models.OperationDone}},
	}
	poller := newTestPoller(source, clock, 10)

	result, err := poller.Run(context.Background(), testSession, models.VideoRequest{Prompt: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingResult)
	assert.True(t, IsOperationFailure(err))
	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, 1, source.getCalls)
}

func TestPollerPropagatesErrorVerbatim(t *testing.T) {
	clock := newFakeClock()
	source := &scriptedSource{
		clock:     clock,
		submitted: models.Operation{ID: "op", Status: models.OperationPending},
		responses: []models.Operation{{ID: "op", Status: models.OperationError, Error: "Video generation blocked by safety filters."}},
	}
	poller := newTestPoller(source, clock, 10)

	result, err := poller.Run(context.Background(), testSession, models.VideoRequest{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, "Video generation blocked by safety filters.", err.Error())
	assert.Equal(t, StateFailed, result.State)
}

func TestPollerTimesOutAfterBudget(t *testing.T) {
	clock := newFakeClock()
	source := &scriptedSource{clock: clock, submitted: models.Operation{ID: "op", Status: models.OperationPending}}
	poller := newTestPoller(source, clock, 4)

	result, err := poller.Run(context.Background(), testSession, models.VideoRequest{Prompt: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPollTimeout)
	assert.Equal(t, StateTimeout, result.State)
	assert.Equal(t, 4, source.getCalls)
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestPollerToleratesTransientErrors(t *testing.T) {
	clock := newFakeClock()
	source := &scriptedSource{
		clock:     clock,
		submitted: models.Operation{ID: "op", Status: models.OperationPending},
		errs:      []error{NewProviderError(KindTransport, providerGemini, http.StatusBadGateway, "bad gateway")},
		responses: []models.Operation{{}, {ID: "op", Status: models.OperationDone, ResultURI: "https://x/y"}},
	}
	poller := newTestPoller(source, clock, 5)

	result, err := poller.Run(context.Background(), testSession, models.VideoRequest{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, 2, source.getCalls)
}

func TestPollerStopsOnAuthError(t *testing.T) {
	clock := newFakeClock()
	source := &scriptedSource{
		clock:     clock,
		submitted: models.Operation{ID: "op", Status: models.OperationPending},
		errs:      []error{NewProviderError(KindAuth, providerGemini, http.StatusForbidden, "PERMISSION_DENIED")},
	}
	poller := newTestPoller(source, clock, 5)

	result, err := poller.Run(context.Background(), testSession, models.VideoRequest{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, KindAuth, KindOf(err))
	assert.True(t, ReopenKeyDialog(err))
}

func TestPollerRequiresBudget(t *testing.T) {
	clock := newFakeClock()
	source := &scriptedSource{clock: clock}
	poller := newTestPoller(source, clock, 0)

	_, err := poller.Run(context.Background(), testSession, models.VideoRequest{Prompt: "p"})
	assert.Error(t, err)
	assert.Equal(t, 0, source.getCalls)
}

func TestPollerHonoursCancellation(t *testing.T) {
	clock := newFakeClock()
	source := &scriptedSource{clock: clock, submitted: models.Operation{ID: "op", Status: models.OperationPending}}
	poller := newTestPoller(source, clock, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := poller.Run(ctx, testSession, models.VideoRequest{Prompt: "p"})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, source.getCalls)
}
