package service

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"foldershare/internal/domain"
	"foldershare/internal/domain/models"
)

// Compress packs the selected sibling items into a new ZIP file item in
// their shared parent (or at the top level for root selections).
func (s *ItemService) Compress(ctx context.Context, user models.User, itemIDs []string, archiveName string) (*models.Item, error) {
	if user.Anonymous() {
		return nil, &domain.UnauthorizedError{Message: "authentication required"}
	}
	if len(itemIDs) == 0 {
		return nil, &domain.ValidationError{
			Summary: "select at least one item to compress",
			Detail:  "compress was invoked with an empty selection; the client should not offer it",
		}
	}

	items := make([]*models.Item, 0, len(itemIDs))
	var parentID *string
	for i, id := range itemIDs {
		item, err := s.access.Load(ctx, user, id, OpView)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			parentID = item.ParentID
		} else if !sameParent(parentID, item.ParentID) {
			return nil, &domain.ValidationError{
				Summary: "items to compress must share the same folder",
				Detail:  "compress received a selection spanning folders; the client should prevent this",
			}
		}
		items = append(items, item)
	}

	if archiveName == "" {
		if len(items) == 1 {
			archiveName = items[0].Name + ".zip"
		} else {
			archiveName = "Archive.zip"
		}
	}
	if err := validateName(archiveName); err != nil {
		return nil, err
	}

	// Build the archive in a temp file, then store it like an upload.
	tmp, err := os.CreateTemp("", "foldershare-zip-*")
	if err != nil {
		return nil, fmt.Errorf("create temp archive: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	zw := zip.NewWriter(tmp)
	for _, item := range items {
		if err := s.addToArchive(ctx, zw, item, item.Name); err != nil {
			zw.Close()
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish archive: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind archive: %w", err)
	}

	owner := user.ID
	if parentID != nil {
		parent, err := s.itemRepo.GetByID(ctx, *parentID)
		if err != nil {
			return nil, err
		}
		owner = parent.OwnerID
	}

	name, err := s.uniqueChildName(ctx, parentID, owner, archiveName)
	if err != nil {
		return nil, err
	}

	file, err := s.storeFile(ctx, owner, name, "application/zip", tmp, 0)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	archive := &models.Item{
		ID:        uuid.NewString(),
		OwnerID:   owner,
		ParentID:  parentID,
		Name:      name,
		Kind:      models.KindFile,
		MimeType:  "application/zip",
		Size:      file.Size,
		FileID:    &file.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if parentID != nil {
		archive.RootID = items[0].RootID
	} else {
		archive.RootID = archive.ID
	}

	if err := s.itemRepo.Create(ctx, archive); err != nil {
		_ = s.store.Delete(ctx, file.Key)
		_ = s.fileRepo.Delete(ctx, file.ID)
		return nil, err
	}
	if err := s.adjustAncestorSizes(ctx, parentID, archive.Size); err != nil {
		return nil, err
	}

	s.logActivity(user, "compress", "archive_id", archive.ID, "items", len(items))
	return archive, nil
}

// addToArchive writes one item (and, for folders, its subtree) into zw
// under entryPath.
func (s *ItemService) addToArchive(ctx context.Context, zw *zip.Writer, item *models.Item, entryPath string) error {
	if item.IsFolder() {
		if _, err := zw.Create(entryPath + "/"); err != nil {
			return fmt.Errorf("archive folder %q: %w", entryPath, err)
		}
		children, err := s.itemRepo.ListChildren(ctx, item.ID)
		if err != nil {
			return err
		}
		for i := range children {
			child := children[i]
			if err := s.addToArchive(ctx, zw, &child, path.Join(entryPath, child.Name)); err != nil {
				return err
			}
		}
		return nil
	}

	if !item.HasStoredFile() {
		return nil
	}

	file, err := s.fileRepo.GetByID(ctx, *item.FileID)
	if err != nil {
		return err
	}
	content, err := s.store.Get(ctx, file.Key)
	if err != nil {
		return err
	}
	defer content.Close()

	header := &zip.FileHeader{
		Name:     entryPath,
		Method:   zip.Deflate,
		Modified: item.UpdatedAt,
	}
	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("archive entry %q: %w", entryPath, err)
	}
	if _, err := io.Copy(w, content); err != nil {
		return fmt.Errorf("archive entry %q: %w", entryPath, err)
	}
	return nil
}

// archiveEntry records one ZIP entry during the temp-extraction pass:
// its original archive path, the numbered temp file its bytes went to,
// and metadata needed to rebuild the tree in original order.
type archiveEntry struct {
	originalPath string
	tempName     string
	isDir        bool
	topLevel     bool
	modified     time.Time
}

// Uncompress extracts a ZIP file item into its parent folder.
//
// Extraction is two-phase. Bytes are first streamed into a temp
// directory under purely numeric names, sidestepping host filesystem
// charset and length limits and any "massaged name" extraction surprise;
// each entry's original path and mtime are recorded alongside. Items are
// then created in original-name order, relying on parent directory
// entries preceding their children (missing intermediate directories
// are synthesized, some archivers omit them). When the archive holds
// more than one top-level entry, everything lands inside a new subfolder
// named after the archive, the way desktop archive managers do it.
//
// Any failure removes the temp directory and the stored blob created
// for the failing entry; items created before the failure survive.
func (s *ItemService) Uncompress(ctx context.Context, user models.User, archiveID string) (*models.Item, error) {
	item, err := s.access.Load(ctx, user, archiveID, OpView)
	if err != nil {
		return nil, err
	}
	if !item.HasStoredFile() {
		return nil, &domain.ValidationError{
			Summary: fmt.Sprintf("%q is not an archive", item.Name),
		}
	}

	var destParent *models.Item
	if item.ParentID != nil {
		destParent, err = s.access.Load(ctx, user, *item.ParentID, OpAuthor)
		if err != nil {
			return nil, err
		}
	} else if user.Anonymous() {
		return nil, &domain.UnauthorizedError{Message: "authentication required"}
	}

	file, err := s.fileRepo.GetByID(ctx, *item.FileID)
	if err != nil {
		return nil, err
	}

	tempDir, err := os.MkdirTemp("", "foldershare-unzip-*")
	if err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	entries, err := s.extractToTemp(ctx, file, tempDir)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, &domain.ValidationError{
			Summary: fmt.Sprintf("%q is empty", item.Name),
		}
	}

	owner := user.ID
	var destParentID *string
	rootID := ""
	if destParent != nil {
		owner = destParent.OwnerID
		destParentID = &destParent.ID
		rootID = destParent.RootID
	}

	// Multiple top-level entries get a synthesized holder folder named
	// after the archive minus its extension.
	topLevel := 0
	for _, entry := range entries {
		if entry.topLevel {
			topLevel++
		}
	}

	created := destParentID
	createdRoot := rootID
	var holder *models.Item
	if topLevel > 1 {
		holderName := strings.TrimSuffix(item.Name, filepath.Ext(item.Name))
		holder, err = s.createExtractedFolder(ctx, owner, destParentID, rootID, holderName, time.Now())
		if err != nil {
			return nil, err
		}
		created = &holder.ID
		createdRoot = holder.RootID
	}

	folders := map[string]string{} // archive dir path -> created item ID
	var first *models.Item

	for _, entry := range entries {
		parentID, parentRoot, err := s.extractionParent(ctx, entry.originalPath, folders, created, createdRoot, owner)
		if err != nil {
			return nil, err
		}

		name := path.Base(strings.TrimSuffix(entry.originalPath, "/"))
		if entry.isDir {
			folder, err := s.createExtractedFolder(ctx, owner, parentID, parentRoot, name, entry.modified)
			if err != nil {
				return nil, err
			}
			folders[strings.TrimSuffix(entry.originalPath, "/")] = folder.ID
			if first == nil {
				first = folder
			}
			continue
		}

		extracted, err := s.createExtractedFile(ctx, owner, parentID, parentRoot, name, entry, tempDir)
		if err != nil {
			return nil, err
		}
		if first == nil {
			first = extracted
		}
	}

	s.logActivity(user, "uncompress", "archive_id", item.ID, "entries", len(entries))

	if holder != nil {
		return holder, nil
	}
	return first, nil
}

// extractToTemp streams every archive entry into a numbered temp file
// and records the metadata needed to rebuild the tree. The extension
// allow-list is enforced up front so a forbidden entry rejects the whole
// archive before anything is created.
func (s *ItemService) extractToTemp(ctx context.Context, file *models.StoredFile, tempDir string) ([]archiveEntry, error) {
	// zip needs random access; spool the blob to a temp file first.
	blob, err := s.store.Get(ctx, file.Key)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	spool, err := os.CreateTemp(tempDir, "archive-*")
	if err != nil {
		return nil, fmt.Errorf("spool archive: %w", err)
	}
	defer spool.Close()

	size, err := io.Copy(spool, blob)
	if err != nil {
		return nil, fmt.Errorf("spool archive: %w", err)
	}

	reader, err := zip.NewReader(spool, size)
	if err != nil {
		return nil, &domain.ValidationError{
			Summary: fmt.Sprintf("%q is not a valid ZIP archive", file.Filename),
		}
	}

	settings := s.settings.Current()
	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		if !settings.ExtensionAllowed(entry.Name) {
			return nil, &domain.ValidationError{
				Summary: fmt.Sprintf("the archive contains a file type that is not allowed (%q)", entry.Name),
			}
		}
	}

	var entries []archiveEntry
	for i, entry := range reader.File {
		clean := path.Clean(strings.ReplaceAll(entry.Name, `\`, "/"))
		if clean == "." || strings.HasPrefix(clean, "..") || path.IsAbs(clean) {
			return nil, &domain.ValidationError{
				Summary: fmt.Sprintf("the archive contains an unsafe path (%q)", entry.Name),
			}
		}

		record := archiveEntry{
			originalPath: clean,
			isDir:        entry.FileInfo().IsDir(),
			topLevel:     !strings.Contains(clean, "/"),
			modified:     entry.Modified,
		}

		if !record.isDir {
			// Purely numeric temp names; the original name only ever
			// lives in the database.
			record.tempName = strconv.Itoa(i)
			if err := extractEntry(entry, filepath.Join(tempDir, record.tempName)); err != nil {
				return nil, err
			}
		}

		entries = append(entries, record)
	}

	return entries, nil
}

func extractEntry(entry *zip.File, destPath string) error {
	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open archive entry %q: %w", entry.Name, err)
	}
	defer src.Close()

	dest, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create temp entry: %w", err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, src); err != nil {
		return fmt.Errorf("extract entry %q: %w", entry.Name, err)
	}
	return nil
}

// extractionParent resolves the created-folder ID an entry belongs
// under, synthesizing intermediate folders that the archive never
// listed explicitly.
func (s *ItemService) extractionParent(
	ctx context.Context,
	originalPath string,
	folders map[string]string,
	baseParent *string,
	baseRoot string,
	owner string,
) (*string, string, error) {
	dir := path.Dir(strings.TrimSuffix(originalPath, "/"))
	if dir == "." {
		return baseParent, baseRoot, nil
	}

	if id, ok := folders[dir]; ok {
		folder, err := s.itemRepo.GetByID(ctx, id)
		if err != nil {
			return nil, "", err
		}
		return &folder.ID, folder.RootID, nil
	}

	parentID, parentRoot, err := s.extractionParent(ctx, dir, folders, baseParent, baseRoot, owner)
	if err != nil {
		return nil, "", err
	}

	folder, err := s.createExtractedFolder(ctx, owner, parentID, parentRoot, path.Base(dir), time.Now())
	if err != nil {
		return nil, "", err
	}
	folders[dir] = folder.ID
	return &folder.ID, folder.RootID, nil
}

// createExtractedFolder makes one folder item during extraction, picking
// a unique name on collision.
func (s *ItemService) createExtractedFolder(ctx context.Context, owner string, parentID *string, rootID, name string, modified time.Time) (*models.Item, error) {
	name, err := s.uniqueChildName(ctx, parentID, owner, name)
	if err != nil {
		return nil, err
	}

	folder := &models.Item{
		ID:        uuid.NewString(),
		OwnerID:   owner,
		ParentID:  parentID,
		Name:      name,
		Kind:      models.KindFolder,
		CreatedAt: modified,
		UpdatedAt: modified,
	}
	if rootID == "" {
		folder.RootID = folder.ID
	} else {
		folder.RootID = rootID
	}

	if err := s.itemRepo.Create(ctx, folder); err != nil {
		return nil, err
	}
	return folder, nil
}

// createExtractedFile turns one numbered temp file back into an item.
func (s *ItemService) createExtractedFile(ctx context.Context, owner string, parentID *string, rootID, name string, entry archiveEntry, tempDir string) (*models.Item, error) {
	name, err := s.uniqueChildName(ctx, parentID, owner, name)
	if err != nil {
		return nil, err
	}

	temp, err := os.Open(filepath.Join(tempDir, entry.tempName))
	if err != nil {
		return nil, fmt.Errorf("open temp entry: %w", err)
	}
	defer temp.Close()

	mimeType := mimeFromName(name)
	file, err := s.storeFile(ctx, owner, name, mimeType, temp, 0)
	if err != nil {
		return nil, err
	}

	extracted := &models.Item{
		ID:        uuid.NewString(),
		OwnerID:   owner,
		ParentID:  parentID,
		Name:      name,
		Kind:      models.KindFromMime(mimeType),
		MimeType:  mimeType,
		Size:      file.Size,
		FileID:    &file.ID,
		CreatedAt: entry.modified,
		UpdatedAt: entry.modified,
	}
	if rootID == "" {
		extracted.RootID = extracted.ID
	} else {
		extracted.RootID = rootID
	}

	if err := s.itemRepo.Create(ctx, extracted); err != nil {
		// The stored blob would otherwise be orphaned.
		_ = s.store.Delete(ctx, file.Key)
		_ = s.fileRepo.Delete(ctx, file.ID)
		return nil, err
	}
	if err := s.adjustAncestorSizes(ctx, parentID, extracted.Size); err != nil {
		return nil, err
	}

	return extracted, nil
}

// uniqueChildName returns name, or "name 1", "name 2", … until the name
// is free within the parent.
func (s *ItemService) uniqueChildName(ctx context.Context, parentID *string, owner, name string) (string, error) {
	candidate := name
	for i := 1; ; i++ {
		_, err := s.itemRepo.ChildByName(ctx, parentID, owner, candidate)
		if errors.Is(err, domain.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}

		ext := filepath.Ext(name)
		base := strings.TrimSuffix(name, ext)
		candidate = fmt.Sprintf("%s %d%s", base, i, ext)
	}
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// mimeFromName guesses a MIME type from a filename extension. Only the
// handful of types that influence the item kind matter; everything else
// falls back to octet-stream.
func mimeFromName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".mp3":
		return "audio/mpeg"
	case ".mp4":
		return "video/mp4"
	case ".pdf":
		return "application/pdf"
	case ".txt", ".md":
		return "text/plain"
	case ".zip":
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}
