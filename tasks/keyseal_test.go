package tasks

import (
	"context"
	"testing"

	"fashionstudio/models"
	"fashionstudio/test"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeySealerRoundTrip(t *testing.T) {
	sealer, err := NewKeySealer("s3cret")
	require.NoError(t, err)

	sealed, err := sealer.Seal(test.TestAPIKey)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), test.TestAPIKey)

	again, err := sealer.Seal(test.TestAPIKey)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again)

	key, err := sealer.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, models.ApiKey(test.TestAPIKey), key)
}

func TestKeySealerRejectsTamperedBoxes(t *testing.T) {
	sealer, _ := NewKeySealer("s3cret")
	sealed, err := sealer.Seal(test.TestAPIKey)
	require.NoError(t, err)

	flipped := append([]byte(nil), sealed...)
	flipped[len(flipped)-1] ^= 0x01
	_, err = sealer.Open(flipped)
	assert.ErrorIs(t, err, ErrSealedKeyBad)

	other, _ := NewKeySealer("another")
	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, ErrSealedKeyBad)

	_, err = sealer.Open(sealed[:10])
	assert.ErrorIs(t, err, ErrSealedKeyBad)

	_, err = NewKeySealer("")
	assert.ErrorIs(t, err, ErrNoKeySecret)
}

func TestTaskPayloadNeverHoldsPlainKey(t *testing.T) {
	session, err := NewJobSession(testSealer, test.TestAPIKey, models.VI)
	require.NoError(t, err)
	task, err := NewSpeechGenerationTask(SpeechGenerationPayload{Session: session, Request: models.SpeechRequest{Text: "hi"}})
	require.NoError(t, err)
	assert.NotContains(t, string(task.Payload()), test.TestAPIKey)

	_, err = NewJobSession(nil, test.TestAPIKey, models.VI)
	assert.ErrorIs(t, err, ErrNoKeySecret)

	serverKey, err := NewJobSession(nil, "", models.EN)
	require.NoError(t, err)
	assert.Empty(t, serverKey.SealedKey)
}

func TestSealedKeyNeedsMatchingWorkerSecret(t *testing.T) {
	h := newHandlers(&test.StorageMock{})
	video := &videoStub{media: models.MediaResult{Data: []byte("mp4"), MIMEType: "video/mp4"}}
	h.Video = video
	payload := VideoGenerationPayload{Session: callerSession(t, models.EN), Request: models.VideoRequest{Prompt: "x"}}

	_, err := h.GenerateVideo(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, models.ApiKey(test.TestAPIKey), video.session.APIKey())

	h.Sealer, _ = NewKeySealer("rotated")
	_, err = h.GenerateVideo(context.Background(), payload)
	assert.ErrorIs(t, err, ErrSealedKeyBad)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	h.Sealer = nil
	_, err = h.GenerateVideo(context.Background(), payload)
	assert.ErrorIs(t, err, ErrNoKeySecret)
}
