package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestContextSink_CollectsPerRequest(t *testing.T) {
	ctx, c := WithCollector(context.Background())
	sink := Fanout{ContextSink{}, Discard{}}

	sink.Notify(ctx, ProfileUpdated())
	sink.Notify(ctx, PfpUploadFailed(errors.New("too large")))
	sink.Notify(context.Background(), ProfileUpdated())

	got := c.Notices()
	assert.Equal(t, []Notice{
		{Message: "Profile updated.", Level: LevelSuccess},
		{Message: "Failed to upload profile picture: too large", Level: LevelError},
	}, got)
	assert.Nil(t, CollectorFrom(context.Background()))
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := NewLogSink(zap.New(core))

	s.Notify(context.Background(), SettingsSaved())
	s.Notify(context.Background(), SettingsSaveFailed(errors.New("boom")))

	entries := logs.All()
	assert.Len(t, entries, 2)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "Authentication settings updated successfully.", entries[0].ContextMap()["message"])
}
