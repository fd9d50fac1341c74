// Package command implements the data-driven validation pipeline behind
// every user-visible operation. A command is static metadata describing
// who may run it and what it may target; a generic executor interprets
// that metadata in five gated stages, so individual commands carry no
// validation logic of their own.
package command

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"foldershare/internal/config"
	"foldershare/internal/domain"
	"foldershare/internal/domain/models"
	"foldershare/internal/service"
)

// User constraints.
const (
	UserAny           = "any"
	UserAuthenticated = "authenticated"
	UserAdmin         = "administrator"
)

// Selection counts.
const (
	SelectionNone = "none"
	SelectionOne  = "one"
	SelectionMany = "many"
)

// Target kinds. KindRootList marks commands that operate on the
// top-level list rather than on an item.
const (
	KindAny      = "any"
	KindRootList = "rootlist"
)

// Ownership constraints.
const (
	OwnershipAny = "any"
	OwnershipOwn = "own"
)

// ParentConstraints restrict the folder (or root list) a command runs in.
type ParentConstraints struct {
	Kinds     []string
	Ownership string
	Access    string
}

// SelectionConstraints restrict the items a command operates on.
// DefaultToParent lets an empty selection fall back to the parent
// itself, the way "delete" behaves when invoked on an open folder.
type SelectionConstraints struct {
	Count           string
	Kinds           []string
	Ownership       string
	Access          string
	FileExtensions  []string
	DefaultToParent bool
}

// DestinationConstraints restrict the target of copy/move-like commands.
type DestinationConstraints struct {
	Kinds     []string
	Ownership string
	Access    string
}

// Definition is one command's static metadata.
type Definition struct {
	Name     string
	Label    string
	Category string

	UserConstraint string
	Parent         *ParentConstraints
	Selection      *SelectionConstraints
	Destination    *DestinationConstraints
}

// Request carries the concrete arguments a command was invoked with.
// ParentID and DestinationID are empty for the root list.
type Request struct {
	User          models.User
	ParentID      string
	SelectionIDs  []string
	DestinationID string
}

// Executor validates one invocation of one command. Each stage latches
// a flag once it passes, so calling Validate repeatedly (form rebuilds,
// confirmation round-trips) never repeats work.
type Executor struct {
	def      Definition
	settings *config.SettingsStore
	access   *service.AccessService
	req      Request

	commandOK     bool
	userOK        bool
	parentOK      bool
	selectionOK   bool
	destinationOK bool

	parent      *models.Item
	selection   []*models.Item
	destination *models.Item
}

func NewExecutor(def Definition, settings *config.SettingsStore, access *service.AccessService, req Request) *Executor {
	return &Executor{def: def, settings: settings, access: access, req: req}
}

// Parent returns the validated parent item, nil at the root list.
func (e *Executor) Parent() *models.Item { return e.parent }

// Selection returns the validated selection, after any parent
// defaulting has been applied.
func (e *Executor) Selection() []*models.Item { return e.selection }

// Destination returns the validated destination item, nil for the
// root list.
func (e *Executor) Destination() *models.Item { return e.destination }

// Validate runs every stage in order, stopping at the first violation.
func (e *Executor) Validate(ctx context.Context) error {
	if err := e.validateCommandAllowed(); err != nil {
		return err
	}
	if err := e.validateUser(); err != nil {
		return err
	}
	if err := e.validateParent(ctx); err != nil {
		return err
	}
	if err := e.validateSelection(ctx); err != nil {
		return err
	}
	return e.validateDestination(ctx)
}

func (e *Executor) validateCommandAllowed() error {
	if e.commandOK {
		return nil
	}
	cur := e.settings.Current()
	if !cur.CommandAllowed(e.def.Name) {
		return &domain.ValidationError{
			Summary: fmt.Sprintf("the %q command is not available on this site", e.def.Label),
			Detail:  "a disabled command was invoked; the client menu is probably out of date",
		}
	}
	e.commandOK = true
	return nil
}

func (e *Executor) validateUser() error {
	if e.userOK {
		return nil
	}
	switch e.def.UserConstraint {
	case UserAny, "":
	case UserAuthenticated:
		if e.req.User.Anonymous() {
			return &domain.UnauthorizedError{
				Message: fmt.Sprintf("sign in to use %q", e.def.Label),
			}
		}
	case UserAdmin:
		if !e.req.User.Admin {
			return &domain.ForbiddenError{
				Message: fmt.Sprintf("the %q command requires administrator access", e.def.Label),
			}
		}
	default:
		return fmt.Errorf("command %q: unknown user constraint %q", e.def.Name, e.def.UserConstraint)
	}
	e.userOK = true
	return nil
}

func (e *Executor) validateParent(ctx context.Context) error {
	if e.parentOK {
		return nil
	}
	pc := e.def.Parent
	if pc == nil {
		e.parentOK = true
		return nil
	}

	if e.req.ParentID == "" {
		if !kindsAllow(pc.Kinds, KindRootList) {
			return &domain.ValidationError{
				Summary: fmt.Sprintf("%q cannot be used at the top level", e.def.Label),
				Detail:  "the command was invoked on the root list but does not support it; probably a client bug",
			}
		}
		e.parentOK = true
		return nil
	}

	op := accessOp(pc.Access)
	parent, err := e.access.Load(ctx, e.req.User, e.req.ParentID, op)
	if err != nil {
		return err
	}
	if !kindsAllow(pc.Kinds, parent.Kind) {
		return &domain.ValidationError{
			Summary: fmt.Sprintf("%q cannot be used inside %q", e.def.Label, parent.Name),
			Detail:  "the parent item has the wrong kind for this command; probably a client bug",
		}
	}
	if err := e.checkOwnership(pc.Ownership, parent); err != nil {
		return err
	}

	e.parent = parent
	e.parentOK = true
	return nil
}

func (e *Executor) validateSelection(ctx context.Context) error {
	if e.selectionOK {
		return nil
	}
	sc := e.def.Selection
	if sc == nil || sc.Count == SelectionNone {
		if len(e.req.SelectionIDs) != 0 {
			return &domain.ValidationError{
				Summary: fmt.Sprintf("%q does not operate on selected items", e.def.Label),
				Detail:  "a selection was supplied to a selection-less command; probably a client bug",
			}
		}
		e.selectionOK = true
		return nil
	}

	ids := e.req.SelectionIDs
	if len(ids) == 0 {
		if !sc.DefaultToParent || e.parent == nil {
			return &domain.ValidationError{
				Summary: fmt.Sprintf("select an item to %s", strings.ToLower(e.def.Label)),
				Detail:  "the command requires a selection and none was supplied",
			}
		}
		// Fall back to the parent itself; re-check it against the
		// selection constraints below like anything else.
		ids = []string{e.parent.ID}
	}

	if sc.Count == SelectionOne && len(ids) > 1 {
		return &domain.ValidationError{
			Summary: fmt.Sprintf("%q operates on a single item; %d were selected", e.def.Label, len(ids)),
			Detail:  "a multi-item selection reached a single-item command; probably a client bug",
		}
	}

	op := accessOp(sc.Access)
	selection := make([]*models.Item, 0, len(ids))
	for _, id := range ids {
		item, err := e.access.Load(ctx, e.req.User, id, op)
		if err != nil {
			return err
		}
		if !kindsAllow(sc.Kinds, item.Kind) {
			return &domain.ValidationError{
				Summary: fmt.Sprintf("%q cannot be applied to %q", e.def.Label, item.Name),
				Detail:  "a selected item has the wrong kind for this command; probably a client bug",
			}
		}
		if err := e.checkOwnership(sc.Ownership, item); err != nil {
			return err
		}
		if len(sc.FileExtensions) != 0 {
			if err := checkExtension(e.def.Label, item, sc.FileExtensions); err != nil {
				return err
			}
		}
		selection = append(selection, item)
	}

	e.selection = selection
	e.selectionOK = true
	return nil
}

func (e *Executor) validateDestination(ctx context.Context) error {
	if e.destinationOK {
		return nil
	}
	dc := e.def.Destination
	if dc == nil {
		e.destinationOK = true
		return nil
	}

	if e.req.DestinationID == "" {
		if !kindsAllow(dc.Kinds, KindRootList) {
			return &domain.ValidationError{
				Summary: fmt.Sprintf("%q requires a destination folder", e.def.Label),
				Detail:  "the command was invoked without a destination; probably a client bug",
			}
		}
		if e.req.User.Anonymous() {
			return &domain.UnauthorizedError{Message: "sign in to place items at the top level"}
		}
		e.destinationOK = true
		return nil
	}

	op := accessOp(dc.Access)
	dest, err := e.access.Load(ctx, e.req.User, e.req.DestinationID, op)
	if err != nil {
		return err
	}
	if !kindsAllow(dc.Kinds, dest.Kind) {
		return &domain.ValidationError{
			Summary: fmt.Sprintf("%q is not a folder and cannot receive items", dest.Name),
			Detail:  "the destination has the wrong kind for this command; probably a client bug",
		}
	}
	if err := e.checkOwnership(dc.Ownership, dest); err != nil {
		return err
	}

	e.destination = dest
	e.destinationOK = true
	return nil
}

func (e *Executor) checkOwnership(constraint string, item *models.Item) error {
	switch constraint {
	case OwnershipAny, "":
		return nil
	case OwnershipOwn:
		if e.req.User.Admin || item.OwnerID == e.req.User.ID {
			return nil
		}
		return &domain.ForbiddenError{
			Message: fmt.Sprintf("only the owner of %q may do this", item.Name),
		}
	default:
		return fmt.Errorf("command %q: unknown ownership constraint %q", e.def.Name, constraint)
	}
}

func checkExtension(label string, item *models.Item, allowed []string) error {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(item.Name)), ".")
	for _, a := range allowed {
		if ext == a {
			return nil
		}
	}
	return &domain.ValidationError{
		Summary: fmt.Sprintf("%q cannot be applied to %q; it requires a .%s file",
			label, item.Name, strings.Join(allowed, "/.")),
	}
}

func kindsAllow(kinds []string, kind string) bool {
	if len(kinds) == 0 {
		return kind != KindRootList
	}
	for _, k := range kinds {
		if k == kind || (k == KindAny && kind != KindRootList) {
			return true
		}
	}
	return false
}

func accessOp(constraint string) string {
	switch constraint {
	case service.OpAuthor:
		return service.OpAuthor
	case service.OpChown:
		return service.OpChown
	default:
		return service.OpView
	}
}
