package mitt

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingWriterRotates(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "emitter.log")

	// Small max size so a few writes trigger rotation (1KB).
	writer, err := NewRotatingWriter(logFile, 1024)
	require.NoError(t, err)
	defer writer.Close()

	data := make([]byte, 500)
	for i := range data {
		data[i] = 'A'
	}

	// 1500 bytes total, should rotate once.
	for i := 0; i < 3; i++ {
		n, err := writer.Write(data)
		require.NoError(t, err)
		assert.Equal(t, len(data), n)
	}

	_, err = os.Stat(logFile + ".1")
	require.NoError(t, err, "expected backup file after rotation")

	info, err := os.Stat(logFile)
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(1024), "main file should have been rotated")
}

func TestRotatingWriterConcurrentWrites(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "concurrent.log")

	writer, err := NewRotatingWriter(logFile, 10240)
	require.NoError(t, err)
	defer writer.Close()

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(id int) {
			for j := 0; j < 100; j++ {
				msg := fmt.Sprintf("writer %d, message %d\n", id, j)
				writer.Write([]byte(msg))
			}
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	info, err := os.Stat(logFile)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
}

func TestEmitterLoggingWritesJSONLines(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "emitter.log")

	e := New(nil, &LogConfig{Enabled: true, FilePath: logFile, IncludeInfo: true})
	e.On("job", func(p any) {})
	e.Emit("job", 1)
	e.Off("job", nil)
	require.NoError(t, e.Close())

	raw, err := os.ReadFile(logFile)
	require.NoError(t, err)
	log := string(raw)

	assert.Contains(t, log, `"msg":"handler registered"`)
	assert.Contains(t, log, `"msg":"dispatching event"`)
	assert.Contains(t, log, `"msg":"handlers cleared"`)
	assert.Contains(t, log, `"event":"job"`)
}

func TestEmitterLoggingInfoGate(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "emitter.log")

	// IncludeInfo off: registration chatter is suppressed, errors are not.
	e := New(nil, &LogConfig{Enabled: true, FilePath: logFile})
	e.On("job", func(p any) {})
	e.On("job", "not a function")
	require.NoError(t, e.Close())

	raw, err := os.ReadFile(logFile)
	require.NoError(t, err)
	log := string(raw)

	assert.NotContains(t, log, `"msg":"handler registered"`)
	assert.Contains(t, log, `"level":"error"`)
}

func TestNilLogConfigDisablesLogging(t *testing.T) {
	e := New(nil, nil)
	e.On("job", func(p any) {})
	e.Emit("job", 1)
	require.NoError(t, e.Close())

	disabled := New(nil, &LogConfig{Enabled: false, FilePath: "/nonexistent/dir/x.log"})
	disabled.Emit("job", 1)
	require.NoError(t, disabled.Close())
}
