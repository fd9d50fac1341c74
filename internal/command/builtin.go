package command

import (
	"fmt"
	"sort"

	"foldershare/internal/domain"
	"foldershare/internal/domain/models"
	"foldershare/internal/service"
)

// Registry holds the available command definitions.
type Registry struct {
	defs map[string]Definition
}

// NewRegistry returns a registry preloaded with the builtin commands.
func NewRegistry() *Registry {
	r := &Registry{defs: make(map[string]Definition)}
	for _, def := range builtins() {
		r.defs[def.Name] = def
	}
	return r
}

// Get looks a command up by name.
func (r *Registry) Get(name string) (Definition, error) {
	def, ok := r.defs[name]
	if !ok {
		return Definition{}, &domain.ValidationError{
			Summary: fmt.Sprintf("unknown command %q", name),
		}
	}
	return def, nil
}

// Names returns the registered command names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func builtins() []Definition {
	folderParent := &ParentConstraints{
		Kinds:  []string{models.KindFolder},
		Access: service.OpAuthor,
	}
	anyParent := &ParentConstraints{
		Kinds:  []string{KindAny, KindRootList},
		Access: service.OpView,
	}
	folderDest := &DestinationConstraints{
		Kinds:  []string{models.KindFolder, KindRootList},
		Access: service.OpAuthor,
	}

	return []Definition{
		{
			Name:           "new-rootfolder",
			Label:          "New top-level folder",
			Category:       "folder",
			UserConstraint: UserAuthenticated,
			Parent: &ParentConstraints{
				Kinds: []string{KindRootList},
			},
		},
		{
			Name:           "new-folder",
			Label:          "New folder",
			Category:       "folder",
			UserConstraint: UserAny,
			Parent:         folderParent,
		},
		{
			Name:           "upload",
			Label:          "Upload files",
			Category:       "import",
			UserConstraint: UserAny,
			Parent:         folderParent,
		},
		{
			Name:           "rename",
			Label:          "Rename",
			Category:       "edit",
			UserConstraint: UserAny,
			Parent:         anyParent,
			Selection: &SelectionConstraints{
				Count:           SelectionOne,
				Access:          service.OpAuthor,
				DefaultToParent: true,
			},
		},
		{
			Name:           "describe",
			Label:          "Edit description",
			Category:       "edit",
			UserConstraint: UserAny,
			Parent:         anyParent,
			Selection: &SelectionConstraints{
				Count:           SelectionOne,
				Access:          service.OpAuthor,
				DefaultToParent: true,
			},
		},
		{
			Name:           "delete",
			Label:          "Delete",
			Category:       "delete",
			UserConstraint: UserAny,
			Parent:         anyParent,
			Selection: &SelectionConstraints{
				Count:           SelectionMany,
				Access:          service.OpAuthor,
				DefaultToParent: true,
			},
		},
		{
			Name:           "copy",
			Label:          "Copy",
			Category:       "copy-move",
			UserConstraint: UserAny,
			Parent:         anyParent,
			Selection: &SelectionConstraints{
				Count:  SelectionMany,
				Access: service.OpView,
			},
			Destination: folderDest,
		},
		{
			Name:           "move",
			Label:          "Move",
			Category:       "copy-move",
			UserConstraint: UserAny,
			Parent:         anyParent,
			Selection: &SelectionConstraints{
				Count:  SelectionMany,
				Access: service.OpAuthor,
			},
			Destination: folderDest,
		},
		{
			Name:           "duplicate",
			Label:          "Duplicate",
			Category:       "copy-move",
			UserConstraint: UserAny,
			Parent:         anyParent,
			Selection: &SelectionConstraints{
				Count:  SelectionMany,
				Access: service.OpAuthor,
			},
		},
		{
			Name:           "share",
			Label:          "Share",
			Category:       "settings",
			UserConstraint: UserAuthenticated,
			Parent:         anyParent,
			Selection: &SelectionConstraints{
				Count:           SelectionOne,
				Ownership:       OwnershipOwn,
				Access:          service.OpView,
				DefaultToParent: true,
			},
		},
		{
			Name:           "unshare",
			Label:          "Stop sharing",
			Category:       "settings",
			UserConstraint: UserAuthenticated,
			Parent:         anyParent,
			Selection: &SelectionConstraints{
				Count:           SelectionOne,
				Ownership:       OwnershipOwn,
				Access:          service.OpView,
				DefaultToParent: true,
			},
		},
		{
			Name:           "chown",
			Label:          "Change owner",
			Category:       "settings",
			UserConstraint: UserAdmin,
			Parent:         anyParent,
			Selection: &SelectionConstraints{
				Count:           SelectionMany,
				Access:          service.OpChown,
				DefaultToParent: true,
			},
		},
		{
			Name:           "compress",
			Label:          "Compress",
			Category:       "archive",
			UserConstraint: UserAuthenticated,
			Parent:         anyParent,
			Selection: &SelectionConstraints{
				Count:  SelectionMany,
				Access: service.OpAuthor,
			},
		},
		{
			Name:           "uncompress",
			Label:          "Uncompress",
			Category:       "archive",
			UserConstraint: UserAuthenticated,
			Parent:         anyParent,
			Selection: &SelectionConstraints{
				Count:          SelectionOne,
				Kinds:          []string{models.KindFile},
				Access:         service.OpAuthor,
				FileExtensions: []string{"zip"},
			},
		},
		{
			Name:           "download",
			Label:          "Download",
			Category:       "export",
			UserConstraint: UserAny,
			Parent:         anyParent,
			Selection: &SelectionConstraints{
				Count:           SelectionOne,
				Access:          service.OpView,
				DefaultToParent: true,
			},
		},
	}
}
