package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foldershare/internal/domain"
)

func TestDeleteFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root := env.mustRoot(t, alice, "Documents")
	file := env.mustUpload(t, alice, root.ID, "a.txt", "12345")
	require.Equal(t, 1, env.store.Len())

	require.NoError(t, env.items.Delete(ctx, alice, file.ID))

	_, err := env.items.Get(ctx, alice, file.ID)
	assert.Error(t, err)
	// The wrapped stored file and its blob are force-deleted with the item.
	assert.Equal(t, 0, env.store.Len())
	_, err = env.fileRepo.GetByID(ctx, *file.FileID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	t.Run("folder size walked back down", func(t *testing.T) {
		fresh, err := env.items.Get(ctx, alice, root.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 0, fresh.Size)
	})
}

func TestDeleteFolderTree(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root := env.mustRoot(t, alice, "Documents")
	sub := env.mustFolder(t, alice, root.ID, "Projects")
	deep := env.mustFolder(t, alice, sub.ID, "Go")
	env.mustUpload(t, alice, deep.ID, "main.txt", "package main")
	env.mustUpload(t, alice, sub.ID, "readme.txt", "hello")

	require.NoError(t, env.items.Delete(ctx, alice, sub.ID))

	for _, id := range []string{sub.ID, deep.ID} {
		_, err := env.itemRepo.GetByID(ctx, id)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	}
	assert.Equal(t, 0, env.store.Len())

	// The redundant queue task is retired once the synchronous pass wins.
	assert.Equal(t, 0, env.taskRepo.Pending())

	fresh, err := env.items.Get(ctx, alice, root.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, fresh.Size)
}

func TestDeleteClearsRootGrants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root := env.mustRoot(t, alice, "Shared")
	require.NoError(t, env.items.Share(ctx, alice, root.ID, bob.ID, "view"))

	require.NoError(t, env.items.Delete(ctx, alice, root.ID))

	grants, err := env.grantRepo.ListByRoot(ctx, root.ID)
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestDeleteLockedItem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root := env.mustRoot(t, alice, "Documents")
	file := env.mustUpload(t, alice, root.ID, "a.txt", "12345")

	require.True(t, env.locks.TryLock(file.ID))
	defer env.locks.Unlock(file.ID)

	err := env.items.Delete(ctx, alice, file.ID)
	assert.ErrorIs(t, err, domain.ErrLocked)

	// Nothing was mutated on the lock-failed exit.
	fresh, err := env.items.Get(ctx, alice, file.ID)
	require.NoError(t, err)
	assert.Equal(t, file.ID, fresh.ID)
	assert.Equal(t, 1, env.store.Len())
}

func TestDeleteSkipsLockedChild(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root := env.mustRoot(t, alice, "Documents")
	sub := env.mustFolder(t, alice, root.ID, "Projects")
	locked := env.mustUpload(t, alice, sub.ID, "busy.txt", "in use")
	doomed := env.mustUpload(t, alice, sub.ID, "done.txt", "bye")

	require.True(t, env.locks.TryLock(locked.ID))
	defer env.locks.Unlock(locked.ID)

	err := env.items.Delete(ctx, alice, sub.ID)
	assert.ErrorIs(t, err, domain.ErrLocked)

	// The unlocked child is gone; partial progress stays.
	_, err = env.itemRepo.GetByID(ctx, doomed.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// The folder survives and is visible again.
	fresh, err := env.items.Get(ctx, alice, sub.ID)
	require.NoError(t, err)
	assert.False(t, fresh.Hidden)

	// The locked child survives too.
	_, err = env.itemRepo.GetByID(ctx, locked.ID)
	assert.NoError(t, err)
}

func TestDeleteSubtreeIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	assert.NoError(t, env.items.DeleteSubtree(ctx, "no-such-item"))
}

func TestDeleteResumedByWorker(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root := env.mustRoot(t, alice, "Documents")
	sub := env.mustFolder(t, alice, root.ID, "Projects")
	locked := env.mustUpload(t, alice, sub.ID, "busy.txt", "in use")

	require.True(t, env.locks.TryLock(locked.ID))
	err := env.items.Delete(ctx, alice, sub.ID)
	require.ErrorIs(t, err, domain.ErrLocked)

	// The interrupted delete left its continuation task behind.
	require.Equal(t, 1, env.taskRepo.Pending())

	// Contention gone, the queued task finishes the job.
	env.locks.Unlock(locked.ID)
	task, err := env.taskRepo.Claim(ctx)
	require.NoError(t, err)
	require.NoError(t, env.items.DeleteSubtree(ctx, task.ItemIDs[0]))

	_, err = env.itemRepo.GetByID(ctx, sub.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = env.itemRepo.GetByID(ctx, locked.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeletePermissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root := env.mustRoot(t, alice, "Documents")
	file := env.mustUpload(t, alice, root.ID, "a.txt", "12345")

	t.Run("strangers rejected", func(t *testing.T) {
		err := env.items.Delete(ctx, bob, file.ID)
		var forbidden *domain.ForbiddenError
		assert.ErrorAs(t, err, &forbidden)
	})

	t.Run("view grant is not enough", func(t *testing.T) {
		require.NoError(t, env.items.Share(ctx, alice, root.ID, bob.ID, "view"))
		err := env.items.Delete(ctx, bob, file.ID)
		var forbidden *domain.ForbiddenError
		assert.ErrorAs(t, err, &forbidden)
	})

	t.Run("admin may delete", func(t *testing.T) {
		assert.NoError(t, env.items.Delete(ctx, admin, file.ID))
	})
}
