package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileKeychainSetAndGetRoundTrip(t *testing.T) {
	k := NewFileKeychain(t.TempDir())

	require.NoError(t, k.Set("openai", "default", "sk-test-secret"))

	got, err := k.Get("openai", "default")
	require.NoError(t, err)
	assert.Equal(t, "sk-test-secret", got)
}

func TestFileKeychainGetMissingEntryFails(t *testing.T) {
	k := NewFileKeychain(t.TempDir())
	_, err := k.Get("openai", "default")
	assert.Error(t, err)
}

func TestFileKeychainDeleteRemovesEntry(t *testing.T) {
	k := NewFileKeychain(t.TempDir())
	require.NoError(t, k.Set("openai", "default", "sk-test-secret"))
	require.NoError(t, k.Delete("openai", "default"))

	_, err := k.Get("openai", "default")
	assert.Error(t, err)
}

func TestFileKeychainDistinguishesAccountsWithinSameService(t *testing.T) {
	k := NewFileKeychain(t.TempDir())
	require.NoError(t, k.Set("openai", "work", "work-key"))
	require.NoError(t, k.Set("openai", "personal", "personal-key"))

	work, err := k.Get("openai", "work")
	require.NoError(t, err)
	assert.Equal(t, "work-key", work)

	personal, err := k.Get("openai", "personal")
	require.NoError(t, err)
	assert.Equal(t, "personal-key", personal)
}

func TestFileKeychainPersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	first := NewFileKeychain(dir)
	require.NoError(t, first.Set("svc", "acct", "persisted-secret"))

	second := NewFileKeychain(dir)
	got, err := second.Get("svc", "acct")
	require.NoError(t, err)
	assert.Equal(t, "persisted-secret", got)
}
