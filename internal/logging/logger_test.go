package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		enabled  []int
		disabled []int
	}{
		{
			name:     "default verbosity",
			opts:     Options{},
			enabled:  []int{DEFAULT},
			disabled: []int{VERBOSE, DEBUG, TRACE},
		},
		{
			name:     "debug verbosity",
			opts:     Options{Verbosity: DEBUG},
			enabled:  []int{DEFAULT, VERBOSE, DEBUG},
			disabled: []int{TRACE},
		},
		{
			name:    "development trace",
			opts:    Options{Verbosity: TRACE, Development: true},
			enabled: []int{DEFAULT, VERBOSE, DEBUG, TRACE},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.opts)
			require.NoError(t, err)

			for _, v := range tt.enabled {
				assert.True(t, logger.V(v).Enabled(), "V(%d) should be enabled", v)
			}
			for _, v := range tt.disabled {
				assert.False(t, logger.V(v).Enabled(), "V(%d) should be disabled", v)
			}
		})
	}
}

func TestNewTestLogger(t *testing.T) {
	logger := NewTestLogger()
	assert.True(t, logger.V(TRACE).Enabled())
}
