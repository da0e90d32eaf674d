package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	var testCases = []struct {
		description string
		config      Config
		hasError    bool
	}{
		{description: "default", config: DefaultConfig()},
		{description: "empty", config: Config{}},
		{description: "console debug", config: Config{Level: "debug", Encoding: "console"}},
		{description: "bad level", config: Config{Level: "loud"}, hasError: true},
		{description: "bad encoding", config: Config{Encoding: "xml"}, hasError: true},
	}
	for _, testCase := range testCases {
		err := testCase.config.Validate()
		assert.Equal(t, testCase.hasError, err != nil, testCase.description)
	}
}

func TestNew(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gatekeep.log")
	logger, err := New(Config{Level: "warn", OutputPaths: []string{path}})
	require.NoError(t, err)
	logger.Info("dropped")
	logger.Warn("kept")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"kept"`)
	assert.Contains(t, string(data), `"timestamp"`)
	assert.Contains(t, string(data), `"caller"`)
	assert.NotContains(t, string(data), "dropped")

	_, err = New(Config{Level: "loud"})
	assert.Error(t, err)
}
