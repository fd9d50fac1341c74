package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"foldershare/internal/command"
	"foldershare/internal/config"
	"foldershare/internal/domain"
	"foldershare/internal/domain/models"
	"foldershare/internal/httputil"
	"foldershare/internal/service"
)

// Custom headers selecting the operation variant for each HTTP method,
// mirroring the command vocabulary so one route serves many operations.
const (
	HeaderGetOperation    = "X-FolderShare-Get-Operation"
	HeaderPostOperation   = "X-FolderShare-Post-Operation"
	HeaderPatchOperation  = "X-FolderShare-Patch-Operation"
	HeaderDeleteOperation = "X-FolderShare-Delete-Operation"
	HeaderSearchScope     = "X-FolderShare-Search-Scope"
	HeaderReturnFormat    = "X-FolderShare-Return-Format"
	HeaderSourcePath      = "X-FolderShare-Source-Path"
	HeaderDestinationPath = "X-FolderShare-Destination-Path"
)

const apiVersion = "1.2.0"

// FolderShareHandler serves the item resource.
type FolderShareHandler struct {
	items    *service.ItemService
	access   *service.AccessService
	commands *command.Registry
	settings *config.SettingsStore
	logger   *slog.Logger
}

func NewFolderShareHandler(
	items *service.ItemService,
	access *service.AccessService,
	commands *command.Registry,
	settings *config.SettingsStore,
	logger *slog.Logger,
) *FolderShareHandler {
	return &FolderShareHandler{
		items:    items,
		access:   access,
		commands: commands,
		settings: settings,
		logger:   logger,
	}
}

// validate runs a named command's constraint pipeline for the request.
func (h *FolderShareHandler) validate(r *http.Request, name string, req command.Request) error {
	def, err := h.commands.Get(name)
	if err != nil {
		return err
	}
	req.User = httputil.GetUser(r)
	return command.NewExecutor(def, h.settings, h.access, req).Validate(r.Context())
}

// resolveID turns the {id} path value, or the X-FolderShare-Source-Path
// header when present, into an item ID.
func (h *FolderShareHandler) resolveID(r *http.Request) (string, error) {
	if sourcePath := r.Header.Get(HeaderSourcePath); sourcePath != "" {
		item, err := h.items.ResolvePath(r.Context(), httputil.GetUser(r), sourcePath)
		if err != nil {
			return "", err
		}
		return item.ID, nil
	}
	return r.PathValue("id"), nil
}

// resolveDestination turns a destination path header or body ID into an
// item ID; empty means the root list.
func (h *FolderShareHandler) resolveDestination(r *http.Request, bodyID string) (string, error) {
	destPath := r.Header.Get(HeaderDestinationPath)
	if destPath == "" || destPath == "/" {
		return bodyID, nil
	}
	item, err := h.items.ResolvePath(r.Context(), httputil.GetUser(r), destPath)
	if err != nil {
		return "", err
	}
	return item.ID, nil
}

// List handles GET /foldershare: the caller's root list by default, or
// shared roots, search results, usage, or the API version, selected by
// the get-operation header.
func (h *FolderShareHandler) List(w http.ResponseWriter, r *http.Request) {
	user := httputil.GetUser(r)

	switch op := r.Header.Get(HeaderGetOperation); op {
	case "", "entity":
		roots, err := h.items.ListRoots(r.Context(), user)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		httputil.RespondJSON(w, http.StatusOK, formatItems(r, roots))

	case "shared":
		roots, err := h.items.ListSharedRoots(r.Context(), user)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		httputil.RespondJSON(w, http.StatusOK, formatItems(r, roots))

	case "search":
		query := r.URL.Query().Get("q")
		if query == "" {
			respondError(w, h.logger, &domain.ValidationError{
				Summary: "search requires a q query parameter",
			})
			return
		}
		scope := r.Header.Get(HeaderSearchScope)
		results, err := h.items.Search(r.Context(), user, query, scope)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		httputil.RespondJSON(w, http.StatusOK, formatItems(r, results))

	case "usage":
		h.Usage(w, r)

	case "version":
		httputil.RespondJSON(w, http.StatusOK, map[string]string{"version": apiVersion})

	default:
		respondError(w, h.logger, &domain.ValidationError{
			Summary: fmt.Sprintf("unknown get operation %q", op),
		})
	}
}

// Get handles GET /foldershare/{id}, with header-selected variants for
// the entity itself, its parent, root, ancestor chain, or subtree.
func (h *FolderShareHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := httputil.GetUser(r)
	id, err := h.resolveID(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	switch op := r.Header.Get(HeaderGetOperation); op {
	case "", "entity":
		item, err := h.items.Get(r.Context(), user, id)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		httputil.RespondJSON(w, http.StatusOK, formatItem(r, item))

	case "parent":
		item, err := h.items.Get(r.Context(), user, id)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		if item.ParentID == nil {
			respondError(w, h.logger, &domain.NotFoundError{
				Message: fmt.Sprintf("%q is a top-level item and has no parent", item.Name),
			})
			return
		}
		parent, err := h.items.Get(r.Context(), user, *item.ParentID)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		httputil.RespondJSON(w, http.StatusOK, formatItem(r, parent))

	case "root":
		item, err := h.items.Get(r.Context(), user, id)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		root, err := h.items.Get(r.Context(), user, item.RootID)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		httputil.RespondJSON(w, http.StatusOK, formatItem(r, root))

	case "ancestors":
		ancestors, err := h.items.Ancestors(r.Context(), user, id)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		httputil.RespondJSON(w, http.StatusOK, formatItems(r, ancestors))

	case "descendants", "children":
		var (
			items []models.Item
			err   error
		)
		if op == "children" {
			items, err = h.items.ListChildren(r.Context(), user, id)
		} else {
			items, err = h.items.Descendants(r.Context(), user, id)
		}
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		httputil.RespondJSON(w, http.StatusOK, formatItems(r, items))

	default:
		respondError(w, h.logger, &domain.ValidationError{
			Summary: fmt.Sprintf("unknown get operation %q", op),
		})
	}
}

type createRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ParentID    string `json:"parent_id"`
}

// Create handles POST /foldershare: new root folders and subfolders as
// JSON, uploads as multipart form data.
func (h *FolderShareHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := httputil.GetUser(r)

	switch op := r.Header.Get(HeaderPostOperation); op {
	case "new-rootfolder":
		var req createRequest
		if err := httputil.ParseJSON(w, r, &req); err != nil {
			httputil.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := h.validate(r, "new-rootfolder", command.Request{}); err != nil {
			respondError(w, h.logger, err)
			return
		}
		folder, err := h.items.CreateRootFolder(r.Context(), user, req.Name)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		httputil.RespondJSON(w, http.StatusCreated, formatItem(r, folder))

	case "", "new-folder":
		var req createRequest
		if err := httputil.ParseJSON(w, r, &req); err != nil {
			httputil.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.ParentID == "" {
			respondError(w, h.logger, &domain.ValidationError{
				Summary: "new-folder requires parent_id; use new-rootfolder for top-level folders",
			})
			return
		}
		if err := h.validate(r, "new-folder", command.Request{ParentID: req.ParentID}); err != nil {
			respondError(w, h.logger, err)
			return
		}
		folder, err := h.items.CreateFolder(r.Context(), user, req.ParentID, req.Name)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		httputil.RespondJSON(w, http.StatusCreated, formatItem(r, folder))

	case "new-file", "new-media":
		h.upload(w, r)

	default:
		respondError(w, h.logger, &domain.ValidationError{
			Summary: fmt.Sprintf("unknown post operation %q", op),
		})
	}
}

// upload receives one or more files as multipart form data. The parent
// folder comes from the "parent" form field.
func (h *FolderShareHandler) upload(w http.ResponseWriter, r *http.Request) {
	user := httputil.GetUser(r)
	settings := h.settings.Current()

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	parentID := r.FormValue("parent")
	if parentID == "" {
		respondError(w, h.logger, &domain.ValidationError{
			Summary: "uploads require a parent form field naming the destination folder",
		})
		return
	}
	if err := h.validate(r, "upload", command.Request{ParentID: parentID}); err != nil {
		respondError(w, h.logger, err)
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		respondError(w, h.logger, &domain.ValidationError{
			Summary: "no files were supplied in the files form field",
		})
		return
	}
	if settings.MaxUploadCount > 0 && len(files) > settings.MaxUploadCount {
		respondError(w, h.logger, &domain.ValidationError{
			Summary: fmt.Sprintf("at most %d files may be uploaded per request", settings.MaxUploadCount),
		})
		return
	}

	created := make([]*models.Item, 0, len(files))
	for _, header := range files {
		item, err := h.uploadOne(r, user, parentID, header)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		created = append(created, item)
	}

	httputil.RespondJSON(w, http.StatusCreated, formatItemPtrs(r, created))
}

func (h *FolderShareHandler) uploadOne(r *http.Request, user models.User, parentID string, header *multipart.FileHeader) (*models.Item, error) {
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open uploaded file: %w", err)
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return h.items.Upload(r.Context(), user, parentID, header.Filename, mimeType, file)
}

type patchRequest struct {
	Name          string  `json:"name"`
	Description   *string `json:"description"`
	DestinationID string  `json:"destination_id"`
	UserID        string  `json:"user_id"`
	Access        string  `json:"access"`
	OwnerID       string  `json:"owner_id"`
}

// Patch handles PATCH /foldershare/{id}: update (rename/describe),
// move, copy, share, unshare, and chown, selected by header.
func (h *FolderShareHandler) Patch(w http.ResponseWriter, r *http.Request) {
	user := httputil.GetUser(r)
	id, err := h.resolveID(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	// Some operations carry everything in headers; an empty body is fine.
	var req patchRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch op := r.Header.Get(HeaderPatchOperation); op {
	case "", "update":
		h.update(w, r, user, id, req)

	case "move":
		destID, err := h.resolveDestination(r, req.DestinationID)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		if err := h.validate(r, "move", command.Request{SelectionIDs: []string{id}, DestinationID: destID}); err != nil {
			respondError(w, h.logger, err)
			return
		}
		moved, err := h.items.Move(r.Context(), user, id, destID)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		httputil.RespondJSON(w, http.StatusOK, formatItem(r, moved))

	case "copy":
		destID, err := h.resolveDestination(r, req.DestinationID)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		if err := h.validate(r, "copy", command.Request{SelectionIDs: []string{id}, DestinationID: destID}); err != nil {
			respondError(w, h.logger, err)
			return
		}
		copied, err := h.items.Copy(r.Context(), user, id, destID, req.Name)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		httputil.RespondJSON(w, http.StatusCreated, formatItem(r, copied))

	case "duplicate":
		if err := h.validate(r, "duplicate", command.Request{SelectionIDs: []string{id}}); err != nil {
			respondError(w, h.logger, err)
			return
		}
		dup, err := h.items.Duplicate(r.Context(), user, id)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		httputil.RespondJSON(w, http.StatusCreated, formatItem(r, dup))

	case "share":
		if err := h.validate(r, "share", command.Request{SelectionIDs: []string{id}}); err != nil {
			respondError(w, h.logger, err)
			return
		}
		if err := h.items.Share(r.Context(), user, id, req.UserID, req.Access); err != nil {
			respondError(w, h.logger, err)
			return
		}
		grants, err := h.items.ListGrants(r.Context(), user, id)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		httputil.RespondJSON(w, http.StatusOK, grants)

	case "unshare":
		if err := h.validate(r, "unshare", command.Request{SelectionIDs: []string{id}}); err != nil {
			respondError(w, h.logger, err)
			return
		}
		if err := h.items.Unshare(r.Context(), user, id, req.UserID); err != nil {
			respondError(w, h.logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case "chown":
		if err := h.validate(r, "chown", command.Request{SelectionIDs: []string{id}}); err != nil {
			respondError(w, h.logger, err)
			return
		}
		changed, err := h.items.ChangeOwner(r.Context(), user, id, req.OwnerID)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		httputil.RespondJSON(w, http.StatusOK, formatItem(r, changed))

	case "compress":
		if err := h.validate(r, "compress", command.Request{SelectionIDs: []string{id}}); err != nil {
			respondError(w, h.logger, err)
			return
		}
		archive, err := h.items.Compress(r.Context(), user, []string{id}, req.Name)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		httputil.RespondJSON(w, http.StatusCreated, formatItem(r, archive))

	case "uncompress":
		if err := h.validate(r, "uncompress", command.Request{SelectionIDs: []string{id}}); err != nil {
			respondError(w, h.logger, err)
			return
		}
		extracted, err := h.items.Uncompress(r.Context(), user, id)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		httputil.RespondJSON(w, http.StatusCreated, formatItem(r, extracted))

	default:
		respondError(w, h.logger, &domain.ValidationError{
			Summary: fmt.Sprintf("unknown patch operation %q", op),
		})
	}
}

func (h *FolderShareHandler) update(w http.ResponseWriter, r *http.Request, user models.User, id string, req patchRequest) {
	if req.Name == "" && req.Description == nil {
		respondError(w, h.logger, &domain.ValidationError{
			Summary: "update requires a name or description field",
		})
		return
	}

	// Each field rides its own command, so a site that restricts
	// renaming can still allow description edits.
	var item *models.Item
	var err error
	if req.Name != "" {
		if err := h.validate(r, "rename", command.Request{SelectionIDs: []string{id}}); err != nil {
			respondError(w, h.logger, err)
			return
		}
		item, err = h.items.Rename(r.Context(), user, id, req.Name)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
	}
	if req.Description != nil {
		if err := h.validate(r, "describe", command.Request{SelectionIDs: []string{id}}); err != nil {
			respondError(w, h.logger, err)
			return
		}
		item, err = h.items.Describe(r.Context(), user, id, *req.Description)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
	}

	httputil.RespondJSON(w, http.StatusOK, formatItem(r, item))
}

// Delete handles DELETE /foldershare/{id}. Deleting a folder requires
// the explicit delete-folder-tree operation, confirming the recursion.
func (h *FolderShareHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := httputil.GetUser(r)
	id, err := h.resolveID(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	if err := h.validate(r, "delete", command.Request{SelectionIDs: []string{id}}); err != nil {
		respondError(w, h.logger, err)
		return
	}

	item, err := h.items.Get(r.Context(), user, id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	switch op := r.Header.Get(HeaderDeleteOperation); op {
	case "", "delete":
		if item.IsFolder() {
			respondError(w, h.logger, &domain.ValidationError{
				Summary: fmt.Sprintf("%q is a folder; use delete-folder-tree to delete it and everything inside", item.Name),
			})
			return
		}
	case "delete-file":
		if item.IsFolder() {
			respondError(w, h.logger, &domain.ValidationError{
				Summary: fmt.Sprintf("%q is a folder, not a file", item.Name),
			})
			return
		}
	case "delete-folder-tree":
		// Folders and files alike.
	default:
		respondError(w, h.logger, &domain.ValidationError{
			Summary: fmt.Sprintf("unknown delete operation %q", op),
		})
		return
	}

	if err := h.items.Delete(r.Context(), user, id); err != nil {
		respondError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Download handles GET /foldershare/{id}/download, streaming the stored
// bytes with a content-disposition filename.
func (h *FolderShareHandler) Download(w http.ResponseWriter, r *http.Request) {
	user := httputil.GetUser(r)
	id, err := h.resolveID(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	file, content, err := h.items.Download(r.Context(), user, id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	defer content.Close()

	w.Header().Set("Content-Type", file.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	if file.Size > 0 {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", file.Size))
	}
	if _, err := io.Copy(w, content); err != nil {
		// Headers are gone; all we can do is log.
		h.logger.Error("stream download", "file_id", file.ID, "error", err)
	}
}

// Usage handles GET /foldershare/usage. Administrators may ask about
// another user with the user query parameter.
func (h *FolderShareHandler) Usage(w http.ResponseWriter, r *http.Request) {
	user := httputil.GetUser(r)

	usage, err := h.items.Usage(r.Context(), user, r.URL.Query().Get("user"))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, usage)
}

// formatItem applies the X-FolderShare-Return-Format header: full
// entities (default), bare IDs, or a flat key/value map.
func formatItem(r *http.Request, item *models.Item) interface{} {
	switch r.Header.Get(HeaderReturnFormat) {
	case "id":
		return map[string]string{"id": item.ID}
	case "keyvalue":
		return itemKeyValue(item)
	default:
		return item
	}
}

func formatItems(r *http.Request, items []models.Item) interface{} {
	format := r.Header.Get(HeaderReturnFormat)
	if format == "" || format == "full" {
		return items
	}

	out := make([]interface{}, 0, len(items))
	for i := range items {
		out = append(out, formatItem(r, &items[i]))
	}
	return out
}

func formatItemPtrs(r *http.Request, items []*models.Item) interface{} {
	format := r.Header.Get(HeaderReturnFormat)
	if format == "" || format == "full" {
		return items
	}

	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		out = append(out, formatItem(r, item))
	}
	return out
}

func itemKeyValue(item *models.Item) map[string]interface{} {
	data, err := json.Marshal(item)
	if err != nil {
		return map[string]interface{}{"id": item.ID}
	}
	var kv map[string]interface{}
	if err := json.Unmarshal(data, &kv); err != nil {
		return map[string]interface{}{"id": item.ID}
	}
	return kv
}
