package logging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewFromZap(zap.New(core)), logs
}

func TestWithFieldsAreInherited(t *testing.T) {
	base, logs := observed(zapcore.DebugLevel)

	base.WithField("address", "ST1").WithFields(map[string]interface{}{"attempt": 2}).Info("refreshing")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "refreshing", entry.Message)
	ctx := entry.ContextMap()
	assert.Equal(t, "ST1", ctx["address"])
	assert.EqualValues(t, 2, ctx["attempt"])
}

func TestDerivedLoggerDoesNotLeakFields(t *testing.T) {
	base, logs := observed(zapcore.DebugLevel)

	_ = base.WithField("child", true)
	base.Info("plain")

	require.Equal(t, 1, logs.Len())
	_, ok := logs.All()[0].ContextMap()["child"]
	assert.False(t, ok)
}

func TestWithError(t *testing.T) {
	base, logs := observed(zapcore.DebugLevel)

	base.WithError(errors.New("boom")).Warn("read failed")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "boom", logs.All()[0].ContextMap()["error"])
}

func TestLevelFiltering(t *testing.T) {
	base, logs := observed(zapcore.WarnLevel)

	base.Debug("hidden")
	base.Info("hidden")
	base.Warn("shown")

	assert.Equal(t, 1, logs.Len())
}

func TestFromContext(t *testing.T) {
	l, logs := observed(zapcore.InfoLevel)
	ctx := WithLogger(context.Background(), l)

	FromContext(ctx).Info("from context")
	assert.Equal(t, 1, logs.Len())

	assert.NotNil(t, FromContext(context.Background()))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, LevelDebug, ParseLogLevel("debug"))
	assert.Equal(t, LevelInfo, ParseLogLevel("nonsense"))
	assert.Equal(t, FormatText, ParseLogFormat("text"))
	assert.Equal(t, FormatJSON, ParseLogFormat("xml"))
}
