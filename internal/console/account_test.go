package console

import (
	"context"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/relayadmin/internal/auth"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAccountAPI struct {
	changes []users.PasswordChange
	err     error
}

func (f *fakeAccountAPI) ChangePassword(_ context.Context, change users.PasswordChange) error {
	f.changes = append(f.changes, change)
	return f.err
}

func TestAccountPasswordModal(t *testing.T) {
	api := &fakeAccountAPI{}
	settings := NewAccountSettings(api, nil)
	modal := settings.Password

	require.NoError(t, modal.Open(nil))
	assert.Equal(t, []string{MessageCurrentPasswordRequired, auth.PasswordPolicyMessage}, modal.Errors())

	next := strings.Repeat("n", 16)
	require.NoError(t, modal.Update(func(draft *PasswordDraft) {
		draft.Current = "old-password-123"
		draft.New = next
		draft.Repeat = "different-password"
	}))
	assert.Equal(t, []string{MessagePasswordMismatch}, modal.Errors())

	require.NoError(t, modal.Update(func(draft *PasswordDraft) { draft.Repeat = next }))
	require.NoError(t, modal.Submit(context.Background()))

	assert.Equal(t, []users.PasswordChange{{CurrentPassword: "old-password-123", NewPassword: next}}, api.changes)
	assert.Equal(t, ModalClosed, modal.State().Phase)
}

func TestAccountPasswordModalShowsServerError(t *testing.T) {
	api := &fakeAccountAPI{err: errBackend}
	modal := NewAccountSettings(api, nil).Password

	next := strings.Repeat("n", 16)
	require.NoError(t, modal.Open(nil))
	require.NoError(t, modal.Update(func(draft *PasswordDraft) {
		*draft = PasswordDraft{Current: "x", New: next, Repeat: next}
	}))
	assert.Error(t, modal.Submit(context.Background()))

	state := modal.State()
	assert.Equal(t, ModalOpen, state.Phase)
	assert.Equal(t, errBackend.Error(), state.Message)
}
