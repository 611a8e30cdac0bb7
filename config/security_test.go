package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckConfigPath(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		valid bool
	}{
		{"relative json", "opflow.json", true},
		{"nested yaml", filepath.Join("configs", "opflow.YML"), true},
		{"absolute", filepath.Join(os.TempDir(), "opflow.yaml"), true},
		{"empty", "", false},
		{"toml", "opflow.toml", false},
		{"escapes working directory", filepath.Join("..", "opflow.json"), false},
		{"escapes after clean", filepath.Join("configs", "..", "..", "opflow.json"), false},
		{"dotted name stays inside", "..opflow.json", true},
		{"too long", strings.Repeat("a", maxPathLen) + ".json", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkConfigPath(tt.path)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestReadConfigFile(t *testing.T) {
	t.Run("directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "dir.json")
		require.NoError(t, os.Mkdir(dir, 0o755))
		_, err := readConfigFile(dir)
		assert.ErrorContains(t, err, "not a regular file")
	})

	t.Run("regular file", func(t *testing.T) {
		data, err := readConfigFile(writeFile(t, "ok.json", `{"log": {"level": "debug"}}`))
		require.NoError(t, err)
		assert.Contains(t, string(data), "debug")
	})
}

func TestCheckJSONDepth(t *testing.T) {
	nested := func(n int) string {
		return strings.Repeat("[", n) + strings.Repeat("]", n)
	}

	assert.NoError(t, checkJSONDepth([]byte(nested(maxJSONDepth))))
	assert.Error(t, checkJSONDepth([]byte(nested(maxJSONDepth+1))))
	assert.NoError(t, checkJSONDepth([]byte(`{"s": "[[[{{{"}`)), "brackets in strings do not count")
	assert.Error(t, checkJSONDepth([]byte(`{"runtime": {`)))
}

func TestCheckEnvValue(t *testing.T) {
	assert.NoError(t, checkEnvValue("OPFLOW_LOG_LEVEL", "debug"))
	assert.NoError(t, checkEnvValue("OPFLOW_LOG_LEVEL", ""))
	assert.Error(t, checkEnvValue("OPFLOW_LOG_LEVEL", "de\x00bug"))
	assert.Error(t, checkEnvValue("OPFLOW_NATS_TOKEN", strings.Repeat("x", maxEnvVarLen+1)))
}
