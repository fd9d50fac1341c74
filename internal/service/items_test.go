package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foldershare/internal/domain"
)

func TestCreateRootFolder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root := env.mustRoot(t, alice, "Documents")
	assert.Equal(t, "Documents", root.Name)
	assert.Equal(t, root.ID, root.RootID)
	assert.Nil(t, root.ParentID)
	assert.Equal(t, alice.ID, root.OwnerID)

	t.Run("duplicate name rejected", func(t *testing.T) {
		_, err := env.items.CreateRootFolder(ctx, alice, "Documents")
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("same name allowed for another owner", func(t *testing.T) {
		_, err := env.items.CreateRootFolder(ctx, bob, "Documents")
		assert.NoError(t, err)
	})

	t.Run("anonymous rejected", func(t *testing.T) {
		_, err := env.items.CreateRootFolder(ctx, nobody, "Public")
		var unauthorized *domain.UnauthorizedError
		assert.ErrorAs(t, err, &unauthorized)
	})
}

func TestCreateFolder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root := env.mustRoot(t, alice, "Documents")
	sub := env.mustFolder(t, alice, root.ID, "Projects")

	assert.Equal(t, root.ID, sub.RootID)
	require.NotNil(t, sub.ParentID)
	assert.Equal(t, root.ID, *sub.ParentID)

	t.Run("other users cannot create in the folder", func(t *testing.T) {
		_, err := env.items.CreateFolder(ctx, bob, root.ID, "Intruder")
		assert.Error(t, err)
	})

	t.Run("author grant allows creation", func(t *testing.T) {
		require.NoError(t, env.items.Share(ctx, alice, root.ID, bob.ID, "author"))
		folder, err := env.items.CreateFolder(ctx, bob, root.ID, "Shared work")
		require.NoError(t, err)
		// Items created inside another user's tree belong to that tree's owner.
		assert.Equal(t, alice.ID, folder.OwnerID)
	})
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain", "report.txt", false},
		{"spaces", "Q3 report (final)", false},
		{"empty", "", true},
		{"slash", "a/b", true},
		{"dot", ".", true},
		{"dotdot", "..", true},
		{"too long", string(make([]byte, 300)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateName(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRename(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root := env.mustRoot(t, alice, "Documents")
	a := env.mustFolder(t, alice, root.ID, "Old name")
	env.mustFolder(t, alice, root.ID, "Taken")

	renamed, err := env.items.Rename(ctx, alice, a.ID, "New name")
	require.NoError(t, err)
	assert.Equal(t, "New name", renamed.Name)

	t.Run("sibling name collision", func(t *testing.T) {
		_, err := env.items.Rename(ctx, alice, a.ID, "Taken")
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("rename to own name is fine", func(t *testing.T) {
		_, err := env.items.Rename(ctx, alice, a.ID, "New name")
		assert.NoError(t, err)
	})

	t.Run("locked item rejected", func(t *testing.T) {
		require.True(t, env.locks.TryLock(a.ID))
		defer env.locks.Unlock(a.ID)

		_, err := env.items.Rename(ctx, alice, a.ID, "Blocked")
		assert.ErrorIs(t, err, domain.ErrLocked)
	})
}

func TestDescribe(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root := env.mustRoot(t, alice, "Documents")

	updated, err := env.items.Describe(ctx, alice, root.ID, "quarterly reports")
	require.NoError(t, err)
	assert.Equal(t, "quarterly reports", updated.Description)

	fetched, err := env.items.Get(ctx, alice, root.ID)
	require.NoError(t, err)
	assert.Equal(t, "quarterly reports", fetched.Description)
}

func TestResolvePath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root := env.mustRoot(t, alice, "Documents")
	sub := env.mustFolder(t, alice, root.ID, "Projects")
	file := env.mustUpload(t, alice, sub.ID, "notes.txt", "hello")

	item, err := env.items.ResolvePath(ctx, alice, "/Documents/Projects/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, file.ID, item.ID)

	t.Run("missing segment", func(t *testing.T) {
		_, err := env.items.ResolvePath(ctx, alice, "/Documents/Nope")
		assert.Error(t, err)
	})

	t.Run("other user cannot resolve", func(t *testing.T) {
		_, err := env.items.ResolvePath(ctx, bob, "/Documents/Projects")
		assert.Error(t, err)
	})
}

func TestAncestorsAndPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root := env.mustRoot(t, alice, "Documents")
	sub := env.mustFolder(t, alice, root.ID, "Projects")
	leaf := env.mustFolder(t, alice, sub.ID, "Go")

	ancestors, err := env.items.Ancestors(ctx, alice, leaf.ID)
	require.NoError(t, err)
	require.Len(t, ancestors, 3)
	assert.Equal(t, root.ID, ancestors[0].ID)
	assert.Equal(t, sub.ID, ancestors[1].ID)
	assert.Equal(t, leaf.ID, ancestors[2].ID)

	path, err := env.items.Path(ctx, leaf)
	require.NoError(t, err)
	assert.Equal(t, "/Documents/Projects/Go", path)
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root := env.mustRoot(t, alice, "Documents")
	env.mustFolder(t, alice, root.ID, "Reports")
	env.mustUpload(t, alice, root.ID, "summary.txt", "contents")

	results, err := env.items.Search(ctx, alice, "repo", "name")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Reports", results[0].Name)

	t.Run("matches are scoped to the caller", func(t *testing.T) {
		results, err := env.items.Search(ctx, bob, "repo", "name")
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestUsage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root := env.mustRoot(t, alice, "Documents")
	env.mustFolder(t, alice, root.ID, "Projects")
	env.mustUpload(t, alice, root.ID, "a.txt", "12345")

	usage, err := env.items.Usage(ctx, alice, "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, usage.Roots)
	assert.EqualValues(t, 2, usage.Folders)
	assert.EqualValues(t, 1, usage.Files)
	assert.EqualValues(t, 5, usage.Bytes)

	t.Run("only admins may ask about others", func(t *testing.T) {
		_, err := env.items.Usage(ctx, bob, alice.ID)
		assert.Error(t, err)

		other, err := env.items.Usage(ctx, admin, alice.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, other.Files)
	})
}

func TestFolderSizes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root := env.mustRoot(t, alice, "Documents")
	sub := env.mustFolder(t, alice, root.ID, "Projects")
	env.mustUpload(t, alice, sub.ID, "a.txt", "12345")
	env.mustUpload(t, alice, sub.ID, "b.txt", "123")

	fresh, err := env.items.Get(ctx, alice, sub.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 8, fresh.Size)

	rootFresh, err := env.items.Get(ctx, alice, root.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 8, rootFresh.Size)
}
