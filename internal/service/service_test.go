package service

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"foldershare/internal/config"
	"foldershare/internal/domain/models"
	"foldershare/internal/lock"
	"foldershare/internal/repository/memory"
	"foldershare/internal/storage"
)

// Shared test principals.
var (
	alice  = models.User{ID: "alice"}
	bob    = models.User{ID: "bob"}
	admin  = models.User{ID: "site-admin", Admin: true}
	nobody = models.User{}
)

// testEnv wires an ItemService over in-memory repositories.
type testEnv struct {
	items     *ItemService
	access    *AccessService
	itemRepo  *memory.ItemRepository
	fileRepo  *memory.FileRepository
	grantRepo *memory.GrantRepository
	taskRepo  *memory.TaskRepository
	locks     *lock.Manager
	store     *storage.MemoryStore
	settings  *config.SettingsStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	itemRepo := memory.NewItemRepository()
	fileRepo := memory.NewFileRepository()
	grantRepo := memory.NewGrantRepository()
	taskRepo := memory.NewTaskRepository()
	itemRepo.SetGrants(grantRepo)
	itemRepo.SetFiles(fileRepo)

	settings, err := config.LoadSettings(filepath.Join(t.TempDir(), "settings.yaml"))
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	locks := lock.NewManager()
	store := storage.NewMemoryStore()

	access := NewAccessService(itemRepo, grantRepo, logger)
	items := NewItemService(
		itemRepo, fileRepo, grantRepo, taskRepo,
		memory.NewTransactionManager(), access, locks, store, settings, logger,
	)

	return &testEnv{
		items:     items,
		access:    access,
		itemRepo:  itemRepo,
		fileRepo:  fileRepo,
		grantRepo: grantRepo,
		taskRepo:  taskRepo,
		locks:     locks,
		store:     store,
		settings:  settings,
	}
}

func (e *testEnv) mustRoot(t *testing.T, user models.User, name string) *models.Item {
	t.Helper()
	root, err := e.items.CreateRootFolder(context.Background(), user, name)
	require.NoError(t, err)
	return root
}

func (e *testEnv) mustFolder(t *testing.T, user models.User, parentID, name string) *models.Item {
	t.Helper()
	folder, err := e.items.CreateFolder(context.Background(), user, parentID, name)
	require.NoError(t, err)
	return folder
}

func (e *testEnv) mustUpload(t *testing.T, user models.User, parentID, name, content string) *models.Item {
	t.Helper()
	item, err := e.items.Upload(context.Background(), user, parentID, name, "text/plain", strings.NewReader(content))
	require.NoError(t, err)
	return item
}
