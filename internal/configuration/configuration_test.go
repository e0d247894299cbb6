package configuration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseInitializesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.json")

	config, err := Parse(path)
	require.NoError(t, err)
	require.Equal(t, "API_KEY", config.APIKey)
	require.Equal(t, "https://api.openai.com/v1", config.APIHost)
	require.Equal(t, 120, config.RequestTimeout)
	require.Equal(t, "gemini-3-flash-preview", config.Chat.DefaultModel)
	require.Equal(t, 3030, config.Server.Port)

	// The default file was written, so a second parse reads it back.
	_, err = os.Stat(path)
	require.NoError(t, err)
	again, err := Parse(path)
	require.NoError(t, err)
	require.Equal(t, config, again)
}

func TestParseExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
		"api_key": "secret",
		"api_host": "https://openrouter.ai/api/v1",
		"request_timeout": 30,
		"chat": {"default_model": "gemini-3-pro-preview", "database_path": "` + filepath.ToSlash(filepath.Join(dir, "db", "threads.db")) + `"},
		"server": {"port": 8080}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := Parse(path)
	require.NoError(t, err)
	require.Equal(t, "secret", config.APIKey)
	require.Equal(t, 30, config.RequestTimeout)
	require.Equal(t, "gemini-3-pro-preview", config.Chat.DefaultModel)
	require.Equal(t, 8080, config.Server.Port)

	// The database directory is created eagerly.
	_, err = os.Stat(filepath.Join(dir, "db"))
	require.NoError(t, err)
}

func TestParseMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
	_, err := Parse(path)
	require.Error(t, err)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	expanded, err := ExpandPath("~/foo/bar")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "foo/bar"), expanded)

	unchanged, err := ExpandPath("/absolute/path")
	require.NoError(t, err)
	require.Equal(t, "/absolute/path", unchanged)
}
