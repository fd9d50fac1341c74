package service

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foldershare/internal/domain"
	"foldershare/internal/domain/models"
)

func TestCompress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root := env.mustRoot(t, alice, "Documents")
	sub := env.mustFolder(t, alice, root.ID, "Projects")
	env.mustUpload(t, alice, sub.ID, "a.txt", "alpha")
	env.mustUpload(t, alice, sub.ID, "b.txt", "beta")

	archive, err := env.items.Compress(ctx, alice, []string{sub.ID}, "")
	require.NoError(t, err)
	assert.Equal(t, "Projects.zip", archive.Name)
	assert.Equal(t, models.KindFile, archive.Kind)
	assert.Equal(t, "application/zip", archive.MimeType)
	require.NotNil(t, archive.ParentID)
	assert.Equal(t, root.ID, *archive.ParentID)

	t.Run("archive content round-trips", func(t *testing.T) {
		_, reader, err := env.items.Download(ctx, alice, archive.ID)
		require.NoError(t, err)
		defer reader.Close()
		data, err := io.ReadAll(reader)
		require.NoError(t, err)

		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		require.NoError(t, err)

		var names []string
		contents := map[string]string{}
		for _, entry := range zr.File {
			names = append(names, entry.Name)
			if entry.FileInfo().IsDir() {
				continue
			}
			rc, err := entry.Open()
			require.NoError(t, err)
			body, err := io.ReadAll(rc)
			rc.Close()
			require.NoError(t, err)
			contents[entry.Name] = string(body)
		}

		assert.Contains(t, names, "Projects/")
		assert.Equal(t, "alpha", contents["Projects/a.txt"])
		assert.Equal(t, "beta", contents["Projects/b.txt"])
	})

	t.Run("name collisions get numbered", func(t *testing.T) {
		second, err := env.items.Compress(ctx, alice, []string{sub.ID}, "")
		require.NoError(t, err)
		assert.Equal(t, "Projects 1.zip", second.Name)
	})

	t.Run("empty selection rejected", func(t *testing.T) {
		_, err := env.items.Compress(ctx, alice, nil, "")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("selection must share a parent", func(t *testing.T) {
		stray := env.mustRoot(t, alice, "Elsewhere")
		_, err := env.items.Compress(ctx, alice, []string{sub.ID, stray.ID}, "")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestUncompress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root := env.mustRoot(t, alice, "Documents")
	sub := env.mustFolder(t, alice, root.ID, "Projects")
	env.mustUpload(t, alice, sub.ID, "a.txt", "alpha")
	env.mustFolder(t, alice, sub.ID, "Deep")

	archive, err := env.items.Compress(ctx, alice, []string{sub.ID}, "")
	require.NoError(t, err)

	// Extracting next to the archive collides with "Projects", so the
	// extracted tree gets a numbered name.
	extracted, err := env.items.Uncompress(ctx, alice, archive.ID)
	require.NoError(t, err)
	assert.Equal(t, "Projects 1", extracted.Name)
	assert.True(t, extracted.IsFolder())

	children, err := env.items.ListChildren(ctx, alice, extracted.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)

	var file *models.Item
	for i := range children {
		if !children[i].IsFolder() {
			file = &children[i]
		}
	}
	require.NotNil(t, file)

	_, reader, err := env.items.Download(ctx, alice, file.ID)
	require.NoError(t, err)
	defer reader.Close()
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))
}

func TestUncompressMultipleTopLevel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root := env.mustRoot(t, alice, "Documents")
	a := env.mustUpload(t, alice, root.ID, "a.txt", "alpha")
	b := env.mustUpload(t, alice, root.ID, "b.txt", "beta")

	archive, err := env.items.Compress(ctx, alice, []string{a.ID, b.ID}, "bundle.zip")
	require.NoError(t, err)

	// Two top-level entries: everything lands in a synthesized folder
	// named after the archive.
	holder, err := env.items.Uncompress(ctx, alice, archive.ID)
	require.NoError(t, err)
	assert.Equal(t, "bundle", holder.Name)
	assert.True(t, holder.IsFolder())

	children, err := env.items.ListChildren(ctx, alice, holder.ID)
	require.NoError(t, err)
	assert.Len(t, children, 2)
}

func TestUncompressRejectsForbiddenExtensions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root := env.mustRoot(t, alice, "Documents")
	exe := env.mustUpload(t, alice, root.ID, "tool.exe", "MZ")

	archive, err := env.items.Compress(ctx, alice, []string{exe.ID}, "tools.zip")
	require.NoError(t, err)

	settings := env.settings.Current()
	settings.AllowedExtensions = []string{"txt", "zip"}
	require.NoError(t, env.settings.Update(settings))

	_, err = env.items.Uncompress(ctx, alice, archive.ID)
	assert.ErrorIs(t, err, domain.ErrValidation)

	// Rejection happens before anything is created.
	children, err := env.items.ListChildren(ctx, alice, root.ID)
	require.NoError(t, err)
	assert.Len(t, children, 2)
}

func TestUncompressRejectsNonArchive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root := env.mustRoot(t, alice, "Documents")
	file := env.mustUpload(t, alice, root.ID, "plain.txt", "not a zip")

	_, err := env.items.Uncompress(ctx, alice, file.ID)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
