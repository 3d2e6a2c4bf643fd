package console

import (
	"context"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/relayadmin/internal/auth"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/resource"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/users"
	"go.uber.org/zap"
)

const (
	MessageUsernameRequired = "Username is required"
	MessagePasswordMismatch = "Passwords don't match"
)

// UsersAPI is the account API the users view runs against.
type UsersAPI interface {
	resource.Source[users.User]
	CreateOrUpdate(ctx context.Context, mutation users.Mutation) (users.User, error)
	Delete(ctx context.Context, username string) error
	SetFlags(ctx context.Context, username string, flags users.Flags) error
}

// ViewConfig holds the settings shared by the resource views.
type ViewConfig struct {
	PageSize    int
	SearchDelay time.Duration
	Reload      *ReloadController
	Logger      *zap.Logger

	after afterFunc
}

func (c ViewConfig) withDefaults() ViewConfig {
	if c.Reload == nil {
		c.Reload = NewReloadController()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

func (c ViewConfig) tableConfig(sorting resource.Sorting) TableConfig {
	return TableConfig{
		PageSize:       c.PageSize,
		SearchDelay:    c.SearchDelay,
		InitialSorting: sorting,
		Reload:         c.Reload,
		Logger:         c.Logger,
		after:          c.after,
	}
}

// UserDraft is the editable form of an account. An empty password on an
// existing account keeps the stored one.
type UserDraft struct {
	Username       string
	Password       string
	PasswordRepeat string
	Admin          bool
	Active         bool
}

// HasPasswordMismatch reports whether the two password fields differ.
func (d UserDraft) HasPasswordMismatch() bool {
	return d.Password != d.PasswordRepeat
}

// HasInvalidPassword reports whether the password violates the policy. A
// blank password is only acceptable when updating.
func (d UserDraft) HasInvalidPassword(updating bool) bool {
	if updating && d.Password == "" {
		return false
	}
	return !auth.ValidPassword(d.Password)
}

func seedUserDraft(target *users.User) UserDraft {
	if target == nil {
		return UserDraft{Active: true}
	}
	return UserDraft{Username: target.Username, Admin: target.Admin, Active: target.Active}
}

func validateUserDraft(target *users.User, draft UserDraft) []string {
	var messages []string
	if strings.TrimSpace(draft.Username) == "" {
		messages = append(messages, MessageUsernameRequired)
	}
	if draft.HasInvalidPassword(target != nil) {
		messages = append(messages, auth.PasswordPolicyMessage)
	}
	if draft.HasPasswordMismatch() {
		messages = append(messages, MessagePasswordMismatch)
	}
	return messages
}

// UsersView is the accounts page: table, edit and delete modals and the
// admin/active inline toggles.
type UsersView struct {
	Table  *Table[users.User]
	Edit   *EditModal[users.User, UserDraft]
	Delete *DeleteModal
	Flags  *InlineEditor[users.Flags]
	Reload *ReloadController
}

func NewUsersView(api UsersAPI, cfg ViewConfig) *UsersView {
	cfg = cfg.withDefaults()
	provider := resource.NewProvider(users.Schema(), resource.Source[users.User](api))
	return &UsersView{
		Table: NewTable(provider, cfg.tableConfig(users.DefaultSorting())),
		Edit: NewEditModal(EditModalConfig[users.User, UserDraft]{
			Seed:     seedUserDraft,
			Validate: validateUserDraft,
			Submit: func(ctx context.Context, target *users.User, draft UserDraft) error {
				mutation := users.Mutation{
					Username: strings.TrimSpace(draft.Username),
					Password: draft.Password,
					Admin:    draft.Admin,
					Active:   draft.Active,
				}
				if target != nil {
					prior := target.Username
					mutation.PriorUsername = &prior
				}
				_, err := api.CreateOrUpdate(ctx, mutation)
				return err
			},
			Reload: cfg.Reload,
			Logger: cfg.Logger,
		}),
		Delete: NewDeleteModal(api.Delete, cfg.Reload, cfg.Logger),
		Flags:  NewInlineEditor("flags", api.SetFlags, cfg.Reload, cfg.Logger),
		Reload: cfg.Reload,
	}
}

// ToggleAdmin flips the admin flag of row.
func (v *UsersView) ToggleAdmin(ctx context.Context, row users.User) {
	v.Flags.Change(ctx, row.Username, users.Flags{Admin: !row.Admin, Active: row.Active})
}

// ToggleActive flips the active flag of row.
func (v *UsersView) ToggleActive(ctx context.Context, row users.User) {
	v.Flags.Change(ctx, row.Username, users.Flags{Admin: row.Admin, Active: !row.Active})
}
