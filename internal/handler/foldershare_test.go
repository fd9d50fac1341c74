package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foldershare/internal/command"
	"foldershare/internal/config"
	"foldershare/internal/domain/models"
	"foldershare/internal/httputil"
	"foldershare/internal/lock"
	"foldershare/internal/repository/memory"
	"foldershare/internal/service"
	"foldershare/internal/storage"
)

var (
	alice = models.User{ID: "alice"}
	bob   = models.User{ID: "bob"}
	admin = models.User{ID: "site-admin", Admin: true}
)

// handlerEnv serves the full route table over in-memory repositories.
type handlerEnv struct {
	mux      *http.ServeMux
	items    *service.ItemService
	settings *config.SettingsStore
	store    *storage.MemoryStore
}

func newHandlerEnv(t *testing.T) *handlerEnv {
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
	store := storage.NewMemoryStore()

	access := service.NewAccessService(itemRepo, grantRepo, logger)
	items := service.NewItemService(
		itemRepo, fileRepo, grantRepo, taskRepo,
		memory.NewTransactionManager(), access, lock.NewManager(), store, settings, logger,
	)

	shareHandler := NewFolderShareHandler(items, access, command.NewRegistry(), settings, logger)
	settingsHandler := NewSettingsHandler(settings, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /foldershare", shareHandler.List)
	mux.HandleFunc("POST /foldershare", shareHandler.Create)
	mux.HandleFunc("GET /foldershare/usage", shareHandler.Usage)
	mux.HandleFunc("GET /foldershare/settings", settingsHandler.Get)
	mux.HandleFunc("PATCH /foldershare/settings", settingsHandler.Patch)
	mux.HandleFunc("GET /foldershare/{id}", shareHandler.Get)
	mux.HandleFunc("PATCH /foldershare/{id}", shareHandler.Patch)
	mux.HandleFunc("DELETE /foldershare/{id}", shareHandler.Delete)
	mux.HandleFunc("GET /foldershare/{id}/download", shareHandler.Download)

	return &handlerEnv{mux: mux, items: items, settings: settings, store: store}
}

// do performs a request as the given user and returns the recorder.
func (e *handlerEnv) do(method, target string, user models.User, headers map[string]string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case io.Reader:
		reader = b
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}

	r := httptest.NewRequest(method, target, reader)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	r = httputil.WithUser(r, user)

	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, r)
	return w
}

func decodeList(t *testing.T, w *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var out []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func decodeObject(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (e *handlerEnv) mustRoot(t *testing.T, user models.User, name string) *models.Item {
	t.Helper()
	root, err := e.items.CreateRootFolder(context.Background(), user, name)
	require.NoError(t, err)
	return root
}

func (e *handlerEnv) mustUpload(t *testing.T, user models.User, parentID, name, content string) *models.Item {
	t.Helper()
	item, err := e.items.Upload(context.Background(), user, parentID, name, "text/plain", strings.NewReader(content))
	require.NoError(t, err)
	return item
}

func TestListRoots(t *testing.T) {
	env := newHandlerEnv(t)
	env.mustRoot(t, alice, "Documents")
	env.mustRoot(t, bob, "Other")

	w := env.do(http.MethodGet, "/foldershare", alice, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	roots := decodeList(t, w)
	require.Len(t, roots, 1)
	assert.Equal(t, "Documents", roots[0]["name"])
}

func TestListVersion(t *testing.T) {
	env := newHandlerEnv(t)

	w := env.do(http.MethodGet, "/foldershare", alice, map[string]string{
		HeaderGetOperation: "version",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1.2.0", decodeObject(t, w)["version"])
}

func TestListSearch(t *testing.T) {
	env := newHandlerEnv(t)
	root := env.mustRoot(t, alice, "Documents")
	env.mustUpload(t, alice, root.ID, "report.txt", "quarterly numbers")

	w := env.do(http.MethodGet, "/foldershare?q=report", alice, map[string]string{
		HeaderGetOperation: "search",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	results := decodeList(t, w)
	require.Len(t, results, 1)
	assert.Equal(t, "report.txt", results[0]["name"])

	// Missing query parameter.
	w = env.do(http.MethodGet, "/foldershare", alice, map[string]string{
		HeaderGetOperation: "search",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetVariants(t *testing.T) {
	env := newHandlerEnv(t)
	root := env.mustRoot(t, alice, "Documents")
	file := env.mustUpload(t, alice, root.ID, "a.txt", "hello")

	t.Run("entity", func(t *testing.T) {
		w := env.do(http.MethodGet, "/foldershare/"+file.ID, alice, nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "a.txt", decodeObject(t, w)["name"])
	})

	t.Run("parent", func(t *testing.T) {
		w := env.do(http.MethodGet, "/foldershare/"+file.ID, alice, map[string]string{
			HeaderGetOperation: "parent",
		}, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Documents", decodeObject(t, w)["name"])
	})

	t.Run("parent of a root is 404", func(t *testing.T) {
		w := env.do(http.MethodGet, "/foldershare/"+root.ID, alice, map[string]string{
			HeaderGetOperation: "parent",
		}, nil)
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	})

	t.Run("children", func(t *testing.T) {
		w := env.do(http.MethodGet, "/foldershare/"+root.ID, alice, map[string]string{
			HeaderGetOperation: "children",
		}, nil)
		require.Equal(t, http.StatusOK, w.Code)
		children := decodeList(t, w)
		require.Len(t, children, 1)
		assert.Equal(t, "a.txt", children[0]["name"])
	})

	t.Run("ancestors", func(t *testing.T) {
		w := env.do(http.MethodGet, "/foldershare/"+file.ID, alice, map[string]string{
			HeaderGetOperation: "ancestors",
		}, nil)
		require.Equal(t, http.StatusOK, w.Code)
		chain := decodeList(t, w)
		require.Len(t, chain, 2)
		assert.Equal(t, "Documents", chain[0]["name"])
		assert.Equal(t, "a.txt", chain[1]["name"])
	})

	t.Run("strangers get 404, not 403", func(t *testing.T) {
		w := env.do(http.MethodGet, "/foldershare/"+file.ID, bob, nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestReturnFormats(t *testing.T) {
	env := newHandlerEnv(t)
	root := env.mustRoot(t, alice, "Documents")

	t.Run("id", func(t *testing.T) {
		w := env.do(http.MethodGet, "/foldershare/"+root.ID, alice, map[string]string{
			HeaderReturnFormat: "id",
		}, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, map[string]any{"id": root.ID}, decodeObject(t, w))
	})

	t.Run("keyvalue", func(t *testing.T) {
		w := env.do(http.MethodGet, "/foldershare/"+root.ID, alice, map[string]string{
			HeaderReturnFormat: "keyvalue",
		}, nil)
		require.Equal(t, http.StatusOK, w.Code)
		kv := decodeObject(t, w)
		assert.Equal(t, "Documents", kv["name"])
		assert.Equal(t, "folder", kv["kind"])
	})
}

func TestCreateFolders(t *testing.T) {
	env := newHandlerEnv(t)

	w := env.do(http.MethodPost, "/foldershare", alice, map[string]string{
		HeaderPostOperation: "new-rootfolder",
	}, map[string]string{"name": "Documents"})
	require.Equal(t, http.StatusCreated, w.Code)
	rootID := decodeObject(t, w)["id"].(string)

	w = env.do(http.MethodPost, "/foldershare", alice, nil,
		map[string]string{"name": "Projects", "parent_id": rootID})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Projects", decodeObject(t, w)["name"])

	t.Run("new-folder without a parent", func(t *testing.T) {
		w := env.do(http.MethodPost, "/foldershare", alice, nil,
			map[string]string{"name": "Orphan"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("anonymous cannot create root folders", func(t *testing.T) {
		w := env.do(http.MethodPost, "/foldershare", models.User{}, map[string]string{
			HeaderPostOperation: "new-rootfolder",
		}, map[string]string{"name": "Nope"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown post operation", func(t *testing.T) {
		w := env.do(http.MethodPost, "/foldershare", alice, map[string]string{
			HeaderPostOperation: "conjure",
		}, map[string]string{"name": "Nope"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func multipartUpload(t *testing.T, parentID string, files map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("parent", parentID))
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadEndpoint(t *testing.T) {
	env := newHandlerEnv(t)
	root := env.mustRoot(t, alice, "Documents")

	body, contentType := multipartUpload(t, root.ID, map[string]string{
		"a.txt": "alpha",
		"b.txt": "beta",
	})
	w := env.do(http.MethodPost, "/foldershare", alice, map[string]string{
		HeaderPostOperation: "new-file",
		"Content-Type":      contentType,
	}, body)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, decodeList(t, w), 2)
	assert.Equal(t, 2, env.store.Len())

	t.Run("missing parent field", func(t *testing.T) {
		body, contentType := multipartUpload(t, "", map[string]string{"c.txt": "gamma"})
		w := env.do(http.MethodPost, "/foldershare", alice, map[string]string{
			HeaderPostOperation: "new-file",
			"Content-Type":      contentType,
		}, body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPatchUpdate(t *testing.T) {
	env := newHandlerEnv(t)
	root := env.mustRoot(t, alice, "Documents")
	file := env.mustUpload(t, alice, root.ID, "a.txt", "hello")

	w := env.do(http.MethodPatch, "/foldershare/"+file.ID, alice, nil,
		map[string]string{"name": "renamed.txt", "description": "important"})
	require.Equal(t, http.StatusOK, w.Code)
	updated := decodeObject(t, w)
	assert.Equal(t, "renamed.txt", updated["name"])
	assert.Equal(t, "important", updated["description"])

	t.Run("empty update", func(t *testing.T) {
		w := env.do(http.MethodPatch, "/foldershare/"+file.ID, alice, nil, map[string]string{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("description edits survive a rename restriction", func(t *testing.T) {
		settings := env.settings.Current()
		settings.AllowedCommands = []string{"describe"}
		require.NoError(t, env.settings.Update(settings))

		w := env.do(http.MethodPatch, "/foldershare/"+file.ID, alice, nil,
			map[string]string{"description": "still editable"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "still editable", decodeObject(t, w)["description"])

		w = env.do(http.MethodPatch, "/foldershare/"+file.ID, alice, nil,
			map[string]string{"name": "blocked.txt"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPatchMoveWithPathHeaders(t *testing.T) {
	env := newHandlerEnv(t)
	root := env.mustRoot(t, alice, "Documents")
	env.items.CreateFolder(context.Background(), alice, root.ID, "Archive")
	file := env.mustUpload(t, alice, root.ID, "a.txt", "hello")

	w := env.do(http.MethodPatch, "/foldershare/move", alice, map[string]string{
		HeaderPatchOperation:  "move",
		HeaderSourcePath:      "/Documents/a.txt",
		HeaderDestinationPath: "/Documents/Archive",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	moved, err := env.items.Get(context.Background(), alice, file.ID)
	require.NoError(t, err)
	path, err := env.items.Path(context.Background(), moved)
	require.NoError(t, err)
	assert.Equal(t, "/Documents/Archive/a.txt", path)
}

func TestPatchCompressAndUncompress(t *testing.T) {
	env := newHandlerEnv(t)
	root := env.mustRoot(t, alice, "Documents")
	env.mustUpload(t, alice, root.ID, "a.txt", "alpha")

	w := env.do(http.MethodPatch, "/foldershare/"+root.ID, alice, map[string]string{
		HeaderPatchOperation: "compress",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	archive := decodeObject(t, w)
	assert.Equal(t, "Documents.zip", archive["name"])

	w = env.do(http.MethodPatch, "/foldershare/"+archive["id"].(string), alice, map[string]string{
		HeaderPatchOperation: "uncompress",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Documents 1", decodeObject(t, w)["name"])
}

func TestPatchShareAndUnshare(t *testing.T) {
	env := newHandlerEnv(t)
	root := env.mustRoot(t, alice, "Documents")

	w := env.do(http.MethodPatch, "/foldershare/"+root.ID, alice, map[string]string{
		HeaderPatchOperation: "share",
	}, map[string]string{"user_id": "bob", "access": "view"})
	require.Equal(t, http.StatusOK, w.Code)
	grants := decodeList(t, w)
	require.Len(t, grants, 1)
	assert.Equal(t, "bob", grants[0]["user_id"])

	// Bob can now see the shared root.
	w = env.do(http.MethodGet, "/foldershare", bob, map[string]string{
		HeaderGetOperation: "shared",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeList(t, w), 1)

	w = env.do(http.MethodPatch, "/foldershare/"+root.ID, alice, map[string]string{
		HeaderPatchOperation: "unshare",
	}, map[string]string{"user_id": "bob"})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(http.MethodGet, "/foldershare/"+root.ID, bob, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteConfirmation(t *testing.T) {
	env := newHandlerEnv(t)
	root := env.mustRoot(t, alice, "Documents")
	file := env.mustUpload(t, alice, root.ID, "a.txt", "hello")

	t.Run("folders need delete-folder-tree", func(t *testing.T) {
		w := env.do(http.MethodDelete, "/foldershare/"+root.ID, alice, nil, nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeObject(t, w)["detail"], "delete-folder-tree")
	})

	t.Run("plain delete removes files", func(t *testing.T) {
		w := env.do(http.MethodDelete, "/foldershare/"+file.ID, alice, nil, nil)
		require.Equal(t, http.StatusNoContent, w.Code)

		w = env.do(http.MethodGet, "/foldershare/"+file.ID, alice, nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("delete-folder-tree removes the folder", func(t *testing.T) {
		w := env.do(http.MethodDelete, "/foldershare/"+root.ID, alice, map[string]string{
			HeaderDeleteOperation: "delete-folder-tree",
		}, nil)
		require.Equal(t, http.StatusNoContent, w.Code)

		w = env.do(http.MethodGet, "/foldershare", alice, nil, nil)
		assert.Len(t, decodeList(t, w), 0)
	})
}

func TestDownloadEndpoint(t *testing.T) {
	env := newHandlerEnv(t)
	root := env.mustRoot(t, alice, "Documents")
	file := env.mustUpload(t, alice, root.ID, "a.txt", "hello")

	w := env.do(http.MethodGet, "/foldershare/"+file.ID+"/download", alice, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `"a.txt"`)
	assert.Equal(t, "hello", w.Body.String())
}

func TestUsageEndpoint(t *testing.T) {
	env := newHandlerEnv(t)
	root := env.mustRoot(t, alice, "Documents")
	env.mustUpload(t, alice, root.ID, "a.txt", "hello")

	w := env.do(http.MethodGet, "/foldershare/usage", alice, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	usage := decodeObject(t, w)
	assert.Equal(t, float64(1), usage["folders"])
	assert.Equal(t, float64(1), usage["files"])

	t.Run("only admins may ask about others", func(t *testing.T) {
		w := env.do(http.MethodGet, "/foldershare/usage?user=alice", bob, nil, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = env.do(http.MethodGet, "/foldershare/usage?user=alice", admin, nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestSettingsEndpoint(t *testing.T) {
	env := newHandlerEnv(t)

	t.Run("non-admins are rejected", func(t *testing.T) {
		w := env.do(http.MethodGet, "/foldershare/settings", alice, nil, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("admin reads and updates", func(t *testing.T) {
		w := env.do(http.MethodGet, "/foldershare/settings", admin, nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "filesystem", decodeObject(t, w)["file_scheme"])

		w = env.do(http.MethodPatch, "/foldershare/settings", admin, nil,
			map[string]any{"allowed_extensions": []string{"txt"}})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"txt"}, env.settings.Current().AllowedExtensions)
	})

	t.Run("invalid file scheme rejected", func(t *testing.T) {
		w := env.do(http.MethodPatch, "/foldershare/settings", admin, nil,
			map[string]any{"file_scheme": "carrier-pigeon"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
