package console

import (
	"context"

	"github.com/MarcoPoloResearchLab/relayadmin/internal/auth"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/users"
	"go.uber.org/zap"
)

const MessageCurrentPasswordRequired = "Current password is required"

// AccountAPI is the self-service account API.
type AccountAPI interface {
	ChangePassword(ctx context.Context, change users.PasswordChange) error
}

// PasswordDraft is the change-password form.
type PasswordDraft struct {
	Current string
	New     string
	Repeat  string
}

func validatePasswordDraft(_ *auth.Principal, draft PasswordDraft) []string {
	var messages []string
	if draft.Current == "" {
		messages = append(messages, MessageCurrentPasswordRequired)
	}
	if !auth.ValidPassword(draft.New) {
		messages = append(messages, auth.PasswordPolicyMessage)
	}
	if draft.New != draft.Repeat {
		messages = append(messages, MessagePasswordMismatch)
	}
	return messages
}

// AccountSettings holds the change-own-password modal. Nothing is listed, so
// a successful change does not reload anything.
type AccountSettings struct {
	Password *EditModal[auth.Principal, PasswordDraft]
}

func NewAccountSettings(api AccountAPI, logger *zap.Logger) *AccountSettings {
	return &AccountSettings{
		Password: NewEditModal(EditModalConfig[auth.Principal, PasswordDraft]{
			Validate: validatePasswordDraft,
			Submit: func(ctx context.Context, _ *auth.Principal, draft PasswordDraft) error {
				return api.ChangePassword(ctx, users.PasswordChange{
					CurrentPassword: draft.Current,
					NewPassword:     draft.New,
				})
			},
			Logger: logger,
		}),
	}
}
