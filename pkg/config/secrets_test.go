package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretsFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.enc")
	require.NoError(t, EncryptSecretsFile(path, "correct horse", map[string]string{EnvOpenAIAPIKey: "sk-file"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	secrets, err := DecryptSecretsFile(path, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "sk-file", secrets[EnvOpenAIAPIKey])

	_, err = DecryptSecretsFile(path, "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrong password")
}

func TestSecretsFile_FixesPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.enc")
	require.NoError(t, EncryptSecretsFile(path, "pw", map[string]string{"A": "b"}))
	require.NoError(t, os.Chmod(path, 0o644))

	_, err := DecryptSecretsFile(path, "pw")
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSecretsFile_TooSmall(t *testing.T) {
	path := writeFile(t, "secrets.enc", "short")
	_, err := DecryptSecretsFile(path, "pw")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too small")
}

func TestLoad_SecretsFileWinsOverEnv(t *testing.T) {
	t.Cleanup(func() { SetDecryptedSecrets(nil) })

	secretsPath := filepath.Join(t.TempDir(), "secrets.enc")
	require.NoError(t, EncryptSecretsFile(secretsPath, "pw", map[string]string{
		EnvRedisPassword: "from-file",
		EnvOpenAIAPIKey:  "sk-file",
	}))
	cfgPath := writeFile(t, "docflow.json", `{"secrets_file": "`+secretsPath+`"}`)

	t.Setenv(EnvSecretsPassword, "pw")
	t.Setenv(EnvRedisPassword, "from-env")
	t.Setenv(EnvNotifyToken, "tok")

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Redis.Password)
	assert.Equal(t, "tok", cfg.Errors.NotifyToken)
	assert.Equal(t, []string{EnvOpenAIAPIKey, EnvRedisPassword}, SecretNames())

	key, err := GetAPIKey(ProviderOpenAI)
	require.NoError(t, err)
	assert.Equal(t, "sk-file", key)
}

func TestLoad_SecretsFileNeedsPassword(t *testing.T) {
	t.Setenv(EnvSecretsPassword, "")
	cfgPath := writeFile(t, "docflow.json", `{"secrets_file": "/nonexistent/secrets.enc"}`)

	_, err := Load(cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvSecretsPassword)
}

func TestGetSecret_NotFound(t *testing.T) {
	t.Setenv("DOCFLOW_TEST_ABSENT", "")
	_, err := GetSecret("DOCFLOW_TEST_ABSENT")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}
