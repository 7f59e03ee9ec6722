package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMaskSensitiveInfo(t *testing.T) {
	assert.Equal(t, "", MaskSensitiveInfo("", Token))
	assert.Equal(t, "****", MaskSensitiveInfo("short", APIKey))
	assert.Equal(t, "sk-1********wxyz", MaskSensitiveInfo("sk-1abcdefghwxyz", APIKey))
	assert.Equal(t, "*********4567", MaskSensitiveInfo("+998901234567", Phone))
	assert.Equal(t, "plain", MaskSensitiveInfo("plain", "other"))
}

func TestMaskedLoggerMasksFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewMaskedLogger(zap.New(core))

	log.With(zap.String("bot_token", "123456:ABCDEFGHIJKL")).Info("started",
		zap.String("openai_api_key", "sk-0123456789abcdef"),
		zap.String("topic", "Interstellar - kino haqida"),
		zap.Int64("user_id", 42),
	)

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		ctx := entries[0].ContextMap()
		assert.Equal(t, "1234***********IJKL", ctx["bot_token"])
		assert.Equal(t, "sk-0***********cdef", ctx["openai_api_key"])
		assert.Equal(t, "Interstellar - kino haqida", ctx["topic"])
		assert.EqualValues(t, 42, ctx["user_id"])
	}
}

func TestGetLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, GetLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, GetLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, GetLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, GetLevel("nonsense"))
	assert.Len(t, LevelNames(), 4)
}
