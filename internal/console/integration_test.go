package console

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/relayadmin/internal/aliases"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/apiclient"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/auth"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/database"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/server"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	rootPassword   = "root-password-123"
	viewerPassword = "viewer-password-123"
)

func startRelayAdmin(t *testing.T) string {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "relayadmin.db"), logger)
	require.NoError(t, err)
	hasher, err := auth.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	userService, err := users.NewService(users.ServiceConfig{Database: db, Hasher: hasher, Logger: logger})
	require.NoError(t, err)
	aliasService, err := aliases.NewService(aliases.ServiceConfig{Database: db, Logger: logger})
	require.NoError(t, err)
	_, err = userService.Bootstrap(context.Background(), "root", rootPassword)
	require.NoError(t, err)

	secret := []byte("integration-signing-secret")
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{SigningSecret: secret})
	require.NoError(t, err)
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{SigningSecret: secret, CookieName: "relayadmin_session"})
	require.NoError(t, err)

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Users:            userService,
		Aliases:          aliasService,
		SessionIssuer:    issuer,
		SessionValidator: validator,
		Logger:           logger,
	})
	require.NoError(t, err)

	httpServer := httptest.NewServer(handler)
	t.Cleanup(httpServer.Close)
	return httpServer.URL
}

func openConsole(t *testing.T, baseURL, username, password string) *Console {
	t.Helper()
	client, err := apiclient.New(apiclient.Config{BaseURL: baseURL})
	require.NoError(t, err)
	console, err := Open(context.Background(), client, username, password, ViewConfig{PageSize: 10})
	require.NoError(t, err)
	console.Start()
	t.Cleanup(func() { _ = console.Close(context.Background()) })
	return console
}

func TestConsoleAgainstServer(t *testing.T) {
	baseURL := startRelayAdmin(t)
	ctx := context.Background()

	client, err := apiclient.New(apiclient.Config{BaseURL: baseURL})
	require.NoError(t, err)
	_, err = Open(ctx, client, "root", "wrong-password-000", ViewConfig{})
	require.Error(t, err)
	assert.True(t, apiclient.IsUnauthorized(err))

	admin := openConsole(t, baseURL, "ROOT", rootPassword)
	assert.Equal(t, auth.Principal{Username: "root", Admin: true}, admin.Principal())
	require.NotNil(t, admin.Users)

	admin.Users.Table.Wait()
	snapshot := admin.Users.Table.Snapshot()
	require.Len(t, snapshot.Rows, 1)
	assert.Equal(t, "root", snapshot.Rows[0].Username)
	assert.Equal(t, 1, snapshot.Count)

	require.NoError(t, admin.Users.Edit.Open(nil))
	require.NoError(t, admin.Users.Edit.Update(func(draft *UserDraft) {
		draft.Username = "Viewer"
		draft.Password = viewerPassword
		draft.PasswordRepeat = viewerPassword
	}))
	require.NoError(t, admin.Users.Edit.Submit(ctx))
	require.Eventually(t, func() bool { return admin.Users.Table.Snapshot().Count == 2 }, waitFor, tick)
	admin.Users.Table.Wait()
	assert.Equal(t, "viewer", admin.Users.Table.Snapshot().Rows[0].Username, "newest account sorts first")

	require.NoError(t, admin.Aliases.Edit.Open(nil))
	require.NoError(t, admin.Aliases.Edit.Update(func(draft *AliasDraft) {
		draft.Address = "Postmaster@Example.org"
		draft.Target = "root@example.org"
		draft.Comment = "rfc 2142"
	}))
	require.NoError(t, admin.Aliases.Edit.Submit(ctx))
	require.Eventually(t, func() bool { return admin.Aliases.Table.Snapshot().Count == 1 }, waitFor, tick)
	admin.Aliases.Table.Wait()
	alias := admin.Aliases.Table.Snapshot().Rows[0]
	assert.Equal(t, "postmaster@example.org", alias.Address)
	assert.True(t, alias.Active)

	admin.Users.Delete.Request("root")
	assert.Error(t, admin.Users.Delete.Confirm(ctx), "admins cannot delete themselves")

	viewer := openConsole(t, baseURL, "viewer", viewerPassword)
	assert.Nil(t, viewer.Users)
	viewer.Aliases.Table.Wait()
	assert.Equal(t, 1, viewer.Aliases.Table.Snapshot().Count)

	require.NoError(t, viewer.Aliases.Edit.Open(&alias))
	require.NoError(t, viewer.Aliases.Edit.Update(func(draft *AliasDraft) { draft.Comment = "changed" }))
	require.Error(t, viewer.Aliases.Edit.Submit(ctx))
	assert.Equal(t, "unauthorized", viewer.Aliases.Edit.State().Message)

	viewer.Aliases.Table.SearchInput("nothing-matches")
	require.Eventually(t, func() bool {
		snapshot := viewer.Aliases.Table.Snapshot()
		return snapshot.Search == "nothing-matches" && snapshot.CountKnown && snapshot.Count == 0
	}, waitFor, tick)

	require.NoError(t, viewer.Account.Password.Open(nil))
	next := "viewer-password-456"
	require.NoError(t, viewer.Account.Password.Update(func(draft *PasswordDraft) {
		*draft = PasswordDraft{Current: viewerPassword, New: next, Repeat: next}
	}))
	require.NoError(t, viewer.Account.Password.Submit(ctx))

	again, err := apiclient.New(apiclient.Config{BaseURL: baseURL})
	require.NoError(t, err)
	principal, err := again.Login(ctx, "viewer", next)
	require.NoError(t, err)
	assert.False(t, principal.Admin)
}
