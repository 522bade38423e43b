package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVocabulary_EmptyPath(t *testing.T) {
	v, err := NewVocabulary("", nil)
	require.NoError(t, err)
	assert.Empty(t, v.Text())
	require.NoError(t, v.Reload())
	require.NoError(t, v.Watch(context.Background()))
	require.NoError(t, v.Close())
}

func TestVocabulary_LoadsAndTrims(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocabulary.md")
	require.NoError(t, os.WriteFile(path, []byte("\n- 본점: 강남점\n\n"), 0o600))

	v, err := NewVocabulary(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "- 본점: 강남점", v.Text())
}

func TestVocabulary_MissingFileThenReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocabulary.md")

	v, err := NewVocabulary(path, nil)
	require.NoError(t, err)
	assert.Empty(t, v.Text())

	require.NoError(t, os.WriteFile(path, []byte("- 알바: 단시간 근로자"), 0o600))
	require.NoError(t, v.Reload())
	assert.Equal(t, "- 알바: 단시간 근로자", v.Text())

	require.NoError(t, os.Remove(path))
	require.NoError(t, v.Reload())
	assert.Empty(t, v.Text())
}

func TestVocabulary_ReadErrorIsReported(t *testing.T) {
	dir := t.TempDir()
	// A directory at the vocabulary path cannot be read as a file.
	_, err := NewVocabulary(dir, nil)
	assert.Error(t, err)
}

func TestVocabulary_WatchPicksUpEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocabulary.md")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o600))

	v, err := NewVocabulary(path, nil)
	require.NoError(t, err)
	v.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, v.Watch(ctx))
	defer v.Close()

	// A second Watch is a no-op.
	require.NoError(t, v.Watch(ctx))

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o600))
	require.Eventually(t, func() bool { return v.Text() == "v2" }, 5*time.Second, 10*time.Millisecond)
}

func TestVocabulary_CloseStopsWatching(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocabulary.md")
	v, err := NewVocabulary(path, nil)
	require.NoError(t, err)

	require.NoError(t, v.Watch(context.Background()))
	require.NoError(t, v.Close())
	require.NoError(t, v.Close())
}

func TestStaticVocabulary(t *testing.T) {
	assert.Equal(t, "고정 용어", StaticVocabulary("  고정 용어\n").Text())

	var v *Vocabulary
	assert.Empty(t, v.Text())
}
