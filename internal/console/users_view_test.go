package console

import (
	"context"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/relayadmin/internal/auth"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestUsersView(t *testing.T, api *fakeUsersAPI) (*UsersView, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	view := NewUsersView(api, ViewConfig{PageSize: 20, Logger: zap.New(core)})
	t.Cleanup(view.Table.Close)
	return view, logs
}

func TestUsersViewStartsWithNewestFirst(t *testing.T) {
	api := newFakeUsersAPI(makeUsers(3))
	view, _ := newTestUsersView(t, api)
	view.Table.Start()
	view.Table.Wait()

	assert.Equal(t, users.DefaultSorting(), api.lastQuery().Sort)
	assert.Len(t, view.Table.Snapshot().Rows, 3)
}

func TestUserModalValidatesAndSubmits(t *testing.T) {
	api := newFakeUsersAPI(nil)
	view, _ := newTestUsersView(t, api)
	ctx := context.Background()

	require.NoError(t, view.Edit.Open(nil))
	state := view.Edit.State()
	assert.Equal(t, ModalOpen, state.Phase)
	assert.True(t, state.Draft.Active, "new accounts start active")
	assert.Contains(t, state.Errors, MessageUsernameRequired)

	require.NoError(t, view.Edit.Update(func(draft *UserDraft) {
		draft.Username = "  dave "
		draft.Password = "short"
		draft.PasswordRepeat = "short"
	}))
	assert.Equal(t, []string{auth.PasswordPolicyMessage}, view.Edit.Errors())
	assert.False(t, view.Edit.CanSubmit())
	assert.ErrorIs(t, view.Edit.Submit(ctx), ErrModalInvalid)

	password := strings.Repeat("p", 20)
	require.NoError(t, view.Edit.Update(func(draft *UserDraft) {
		draft.Password = password
		draft.PasswordRepeat = password + "x"
	}))
	assert.Equal(t, []string{MessagePasswordMismatch}, view.Edit.Errors())

	require.NoError(t, view.Edit.Update(func(draft *UserDraft) {
		draft.PasswordRepeat = password
	}))
	assert.Empty(t, view.Edit.Errors())
	require.True(t, view.Edit.CanSubmit())
	require.NoError(t, view.Edit.Submit(ctx))

	assert.Equal(t, ModalClosed, view.Edit.State().Phase)
	assert.Equal(t, uint64(1), view.Reload.Token())
	require.Len(t, api.mutations, 1)
	assert.Equal(t, users.Mutation{Username: "dave", Password: password, Active: true}, api.mutations[0])
}

func TestUserModalEditKeepsBlankPassword(t *testing.T) {
	api := newFakeUsersAPI(nil)
	view, _ := newTestUsersView(t, api)
	alice := users.User{Username: "alice", Admin: true, Active: true}

	require.NoError(t, view.Edit.Open(&alice))
	state := view.Edit.State()
	assert.Equal(t, "alice", state.Draft.Username)
	assert.True(t, state.Draft.Admin)
	assert.Empty(t, state.Errors)

	require.NoError(t, view.Edit.Update(func(draft *UserDraft) { draft.Username = "alicia" }))
	require.NoError(t, view.Edit.Submit(context.Background()))

	require.Len(t, api.mutations, 1)
	mutation := api.mutations[0]
	require.NotNil(t, mutation.PriorUsername)
	assert.Equal(t, "alice", *mutation.PriorUsername)
	assert.Equal(t, "alicia", mutation.Username)
	assert.Empty(t, mutation.Password)
}

func TestUserModalFailureStaysOpenWithMessage(t *testing.T) {
	api := newFakeUsersAPI(nil)
	api.mutationErr = errBackend
	view, logs := newTestUsersView(t, api)

	require.NoError(t, view.Edit.Open(nil))
	password := strings.Repeat("p", 20)
	require.NoError(t, view.Edit.Update(func(draft *UserDraft) {
		draft.Username = "dave"
		draft.Password = password
		draft.PasswordRepeat = password
	}))
	assert.ErrorIs(t, view.Edit.Submit(context.Background()), errBackend)

	state := view.Edit.State()
	assert.Equal(t, ModalOpen, state.Phase)
	assert.Equal(t, errBackend.Error(), state.Message)
	assert.Equal(t, "dave", state.Draft.Username)
	assert.Zero(t, view.Reload.Token())
	assert.Equal(t, 1, logs.FilterMessage("submission failed").Len())

	view.Edit.Cancel()
	assert.Equal(t, ModalClosed, view.Edit.State().Phase)
	assert.ErrorIs(t, view.Edit.Update(func(*UserDraft) {}), ErrModalClosed)
	assert.ErrorIs(t, view.Edit.Submit(context.Background()), ErrModalClosed)
}

func TestUserToggleMutatesOnceAndReloadsEitherWay(t *testing.T) {
	api := newFakeUsersAPI(nil)
	view, logs := newTestUsersView(t, api)
	ctx := context.Background()
	bob := users.User{Username: "bob", Active: true}

	view.ToggleAdmin(ctx, bob)
	require.Len(t, api.flagCalls, 1)
	assert.Equal(t, flagsCall{Username: "bob", Flags: users.Flags{Admin: true, Active: true}}, api.flagCalls[0])
	assert.Equal(t, uint64(1), view.Reload.Token())

	api.flagsErr = errBackend
	view.ToggleActive(ctx, bob)
	require.Len(t, api.flagCalls, 2)
	assert.Equal(t, users.Flags{Admin: false, Active: false}, api.flagCalls[1].Flags)
	assert.Equal(t, uint64(2), view.Reload.Token())

	entries := logs.FilterMessage("inline edit failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.ErrorLevel, entries[0].Level)
	assert.Equal(t, "bob", entries[0].ContextMap()["identity"])
}

func TestUserDeleteConfirmation(t *testing.T) {
	api := newFakeUsersAPI(nil)
	view, logs := newTestUsersView(t, api)
	ctx := context.Background()

	assert.ErrorIs(t, view.Delete.Confirm(ctx), ErrModalClosed)

	view.Delete.Request("alice")
	pending, open := view.Delete.Pending()
	assert.True(t, open)
	assert.Equal(t, "alice", pending)

	require.NoError(t, view.Delete.Confirm(ctx))
	assert.Equal(t, []string{"alice"}, api.deletes)
	assert.Equal(t, uint64(1), view.Reload.Token())
	_, open = view.Delete.Pending()
	assert.False(t, open)

	api.deleteErr = errBackend
	view.Delete.Request("carol")
	assert.ErrorIs(t, view.Delete.Confirm(ctx), errBackend)
	_, open = view.Delete.Pending()
	assert.False(t, open, "the confirmation closes even when the delete fails")
	assert.Equal(t, uint64(1), view.Reload.Token())
	assert.Equal(t, 1, logs.FilterMessage("delete failed").Len())

	view.Delete.Request("erin")
	view.Delete.Cancel()
	_, open = view.Delete.Pending()
	assert.False(t, open)
	assert.Equal(t, []string{"alice", "carol"}, api.deletes)
}

func TestUserDraftPasswordChecks(t *testing.T) {
	draft := UserDraft{Password: "", PasswordRepeat: ""}
	assert.False(t, draft.HasInvalidPassword(true))
	assert.True(t, draft.HasInvalidPassword(false))
	assert.False(t, draft.HasPasswordMismatch())

	draft.Password = strings.Repeat("x", 73)
	draft.PasswordRepeat = draft.Password
	assert.True(t, draft.HasInvalidPassword(true))
}

func TestModalPhaseString(t *testing.T) {
	assert.Equal(t, "closed", ModalClosed.String())
	assert.Equal(t, "open", ModalOpen.String())
	assert.Equal(t, "submitting", ModalSubmitting.String())
}
