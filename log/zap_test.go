// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZap(t *testing.T) {
	t.Run("With debug level", func(t *testing.T) {
		buffer := new(bytes.Buffer)
		logger := NewZap(DebugLevel, buffer)
		require.Equal(t, DebugLevel, logger.LogLevel())

		logger.Debugf("task=%s ignored", "web.1")
		require.NoError(t, logger.Flush())

		entry := decodeEntry(t, buffer.Bytes())
		assert.Equal(t, "task=web.1 ignored", entry["msg"])
		assert.Equal(t, "debug", entry["level"])
	})
	t.Run("With info level drops debug entries", func(t *testing.T) {
		buffer := new(bytes.Buffer)
		logger := NewZap(InfoLevel, buffer)

		logger.Debug("hidden")
		require.NoError(t, logger.Flush())
		assert.Empty(t, buffer.String())
		assert.False(t, logger.Enabled(DebugLevel))
		assert.True(t, logger.Enabled(ErrorLevel))
	})
	t.Run("With warn level", func(t *testing.T) {
		buffer := new(bytes.Buffer)
		logger := NewZap(WarningLevel, buffer)
		require.Equal(t, WarningLevel, logger.LogLevel())

		logger.Info("hidden")
		logger.Warn("agent removed twice")
		require.NoError(t, logger.Flush())

		entry := decodeEntry(t, buffer.Bytes())
		assert.Equal(t, "agent removed twice", entry["msg"])
		assert.Equal(t, "warn", entry["level"])
	})
	t.Run("With error level", func(t *testing.T) {
		buffer := new(bytes.Buffer)
		logger := NewZap(ErrorLevel, buffer)
		require.Equal(t, ErrorLevel, logger.LogLevel())

		logger.Errorf("fetch failed: %v", errors.New("boom"))
		require.NoError(t, logger.Flush())

		entry := decodeEntry(t, buffer.Bytes())
		assert.Equal(t, "fetch failed: boom", entry["msg"])
		assert.Equal(t, "error", entry["level"])
	})
	t.Run("With panic", func(t *testing.T) {
		buffer := new(bytes.Buffer)
		logger := NewZap(DebugLevel, buffer)
		assert.Panics(t, func() { logger.Panic("test panic") })
	})
}

func TestZapWith(t *testing.T) {
	t.Run("adds structured fields", func(t *testing.T) {
		buffer := new(bytes.Buffer)
		logger := NewZap(InfoLevel, buffer)
		logger.With("service", "web", "port", 31000, "err", errors.New("x")).Info("endpoint added")
		require.NoError(t, logger.Flush())

		entry := decodeEntry(t, buffer.Bytes())
		assert.Equal(t, "endpoint added", entry["msg"])
		assert.Equal(t, "web", entry["service"])
		assert.EqualValues(t, 31000, entry["port"])
		assert.Equal(t, "x", entry["err"])
	})
	t.Run("returns the same logger when empty", func(t *testing.T) {
		logger := NewZap(InfoLevel, new(bytes.Buffer))
		assert.Equal(t, Logger(logger), logger.With())
	})
	t.Run("records an orphan value", func(t *testing.T) {
		buffer := new(bytes.Buffer)
		logger := NewZap(InfoLevel, buffer)
		logger.With("a", 1, "orphan").Info("msg")
		require.NoError(t, logger.Flush())

		entry := decodeEntry(t, buffer.Bytes())
		assert.Contains(t, entry, "a")
		assert.Contains(t, entry, "_")
	})
	t.Run("skips non-string keys", func(t *testing.T) {
		buffer := new(bytes.Buffer)
		logger := NewZap(InfoLevel, buffer)
		logger.With(42, "ignored", "k", "v").Info("msg")
		require.NoError(t, logger.Flush())

		entry := decodeEntry(t, buffer.Bytes())
		assert.Equal(t, "v", entry["k"])
	})
}

func TestZapFileOutput(t *testing.T) {
	file, err := os.CreateTemp(t.TempDir(), "log")
	require.NoError(t, err)
	defer file.Close()

	logger := NewZap(InfoLevel, file)
	require.NotNil(t, logger.bufferedWriteSyncer)
	logger.Info("buffered")
	require.NoError(t, logger.Flush())

	content, err := os.ReadFile(file.Name())
	require.NoError(t, err)
	assert.Contains(t, string(content), "buffered")
	assert.Equal(t, []any{file}, toAny(logger.LogOutput()))
}

func TestDiscardLogger(t *testing.T) {
	DiscardLogger.Info("nothing")
	DiscardLogger.Errorf("nothing %d", 1)
	assert.Equal(t, DiscardLogger, DiscardLogger.With("k", "v"))
	assert.False(t, DiscardLogger.Enabled(DebugLevel))
	assert.True(t, DiscardLogger.Enabled(PanicLevel))
	assert.NoError(t, DiscardLogger.Flush())
	assert.Panics(t, func() { DiscardLogger.Panicf("boom %s", "now") })
}

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input    string
		expected Level
		wantErr  bool
	}{
		{input: "debug", expected: DebugLevel},
		{input: "INFO", expected: InfoLevel},
		{input: "", expected: InfoLevel},
		{input: "warning", expected: WarningLevel},
		{input: " warn ", expected: WarningLevel},
		{input: "error", expected: ErrorLevel},
		{input: "verbose", expected: InvalidLevel, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			level, err := ParseLevel(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, level)
		})
	}

	assert.Equal(t, "warn", WarningLevel.String())
	assert.Equal(t, "invalid", InvalidLevel.String())
}

func decodeEntry(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(raw), &entry))
	return entry
}

func toAny[T any](in []T) []any {
	out := make([]any, 0, len(in))
	for _, v := range in {
		out = append(out, v)
	}
	return out
}
