package log

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	Infof("[ArchiveManager] 加载 %s", "archives/fonds.xml")
	Error("加载失败", errors.New("boom"))
	Infow("HTTP Request Log", "statusCode", 200)

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "[ArchiveManager] 加载 archives/fonds.xml", entries[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
	assert.EqualValues(t, 200, entries[2].ContextMap()["statusCode"])
}

func TestBuild(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger, err := Build("warn", "json", dir)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
	logger.Warn("written")
	_ = logger.Sync()

	_, err = os.Stat(filepath.Join(dir, "app.log"))
	assert.NoError(t, err)

	logger, err = Build("nonsense", "console", "")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}
