package kivaquery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	c, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "com.kivanewyork.query", c.KivaAppId)
	assert.Equal(t, "https://api.kivaws.org/v1", c.KivaBaseURL)
	assert.Equal(t, "8080", c.ApiPort)
	assert.Equal(t, "", c.RedisAddr)
	assert.False(t, c.S3UseSSL)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("KIVA_APP_ID=from.file\nAPI_PORT=9000\nREDIS_DB=3\nS3_USE_SSL=true\n"), 0o644))

	t.Setenv("API_PORT", "9100")

	c, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "from.file", c.KivaAppId)
	assert.Equal(t, "9100", c.ApiPort)
	assert.Equal(t, 3, c.Redis().DB)
	assert.True(t, c.S3().UseSSL)
	assert.Equal(t, "exports", c.S3().Bucket)
}
