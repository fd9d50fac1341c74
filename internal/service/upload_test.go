package service

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foldershare/internal/domain"
	"foldershare/internal/domain/models"
)

func TestUpload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root := env.mustRoot(t, alice, "Documents")

	item, err := env.items.Upload(ctx, alice, root.ID, "report.txt", "text/plain", strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.Equal(t, models.KindFile, item.Kind)
	assert.EqualValues(t, 11, item.Size)
	assert.Equal(t, root.ID, item.RootID)
	require.NotNil(t, item.FileID)

	t.Run("kind follows mime type", func(t *testing.T) {
		img, err := env.items.Upload(ctx, alice, root.ID, "photo.png", "image/png", strings.NewReader("png"))
		require.NoError(t, err)
		assert.Equal(t, models.KindImage, img.Kind)

		clip, err := env.items.Upload(ctx, alice, root.ID, "clip.mp4", "video/mp4", strings.NewReader("mp4"))
		require.NoError(t, err)
		assert.Equal(t, models.KindMedia, clip.Kind)
	})

	t.Run("duplicate filename rejected", func(t *testing.T) {
		_, err := env.items.Upload(ctx, alice, root.ID, "report.txt", "text/plain", strings.NewReader("again"))
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("upload to a file rejected", func(t *testing.T) {
		_, err := env.items.Upload(ctx, alice, item.ID, "nested.txt", "text/plain", strings.NewReader("x"))
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestUploadExtensionAllowList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	settings := env.settings.Current()
	settings.AllowedExtensions = []string{"txt", "pdf"}
	require.NoError(t, env.settings.Update(settings))

	root := env.mustRoot(t, alice, "Documents")

	_, err := env.items.Upload(ctx, alice, root.ID, "notes.txt", "text/plain", strings.NewReader("ok"))
	assert.NoError(t, err)

	_, err = env.items.Upload(ctx, alice, root.ID, "virus.exe", "application/octet-stream", strings.NewReader("no"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUploadSizeLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	settings := env.settings.Current()
	settings.MaxUploadSize = 4
	require.NoError(t, env.settings.Update(settings))

	root := env.mustRoot(t, alice, "Documents")

	_, err := env.items.Upload(ctx, alice, root.ID, "big.txt", "text/plain", strings.NewReader("12345"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	// The oversized blob must not linger in the store.
	assert.Equal(t, 0, env.store.Len())

	_, err = env.items.Upload(ctx, alice, root.ID, "ok.txt", "text/plain", strings.NewReader("1234"))
	assert.NoError(t, err)
}

func TestDownload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root := env.mustRoot(t, alice, "Documents")
	item := env.mustUpload(t, alice, root.ID, "report.txt", "hello world")

	file, reader, err := env.items.Download(ctx, alice, item.ID)
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, "report.txt", file.Filename)
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	t.Run("folders cannot be downloaded", func(t *testing.T) {
		_, _, err := env.items.Download(ctx, alice, root.ID)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("strangers cannot download", func(t *testing.T) {
		_, _, err := env.items.Download(ctx, bob, item.ID)
		assert.Error(t, err)
	})
}
