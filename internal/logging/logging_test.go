package logging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/javanstorm/vmsession/internal/logging"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		opts      logging.Options
		wantLevel zapcore.Level
	}{
		{"defaults", logging.Options{}, zapcore.InfoLevel},
		{"json debug", logging.Options{Level: "debug", Format: logging.FormatJSON}, zapcore.DebugLevel},
		{"console warn", logging.Options{Level: "warn", Format: logging.FormatConsole}, zapcore.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := logging.New(tt.opts)
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.wantLevel))
			assert.False(t, logger.Core().Enabled(tt.wantLevel-1))
		})
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := logging.New(logging.Options{Level: "loud"})
	assert.Error(t, err)

	_, err = logging.New(logging.Options{Format: "xml"})
	assert.Error(t, err)
}
