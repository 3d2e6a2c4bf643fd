package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/MarcoPoloResearchLab/relayadmin/internal/aliases"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/resource"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/users"
)

// Users is the remote account API.
type Users struct {
	client *Client
}

// List fetches one page of accounts.
func (u *Users) List(ctx context.Context, query resource.Query) ([]users.User, error) {
	var page resource.Page[users.User]
	if err := u.client.do(ctx, http.MethodGet, "/api/users", listParams(query), nil, &page); err != nil {
		return nil, err
	}
	return page.Rows, nil
}

// Count returns the number of accounts matching search.
func (u *Users) Count(ctx context.Context, search string) (int, error) {
	var payload countResponsePayload
	if err := u.client.do(ctx, http.MethodGet, "/api/users/count", searchParams(search), nil, &payload); err != nil {
		return 0, err
	}
	return payload.Count, nil
}

func (u *Users) CreateOrUpdate(ctx context.Context, mutation users.Mutation) (users.User, error) {
	var user users.User
	err := u.client.do(ctx, http.MethodPost, "/api/users", nil, mutation, &user)
	return user, err
}

func (u *Users) Delete(ctx context.Context, username string) error {
	return u.client.do(ctx, http.MethodDelete, "/api/users/"+url.PathEscape(username), nil, nil, nil)
}

func (u *Users) SetFlags(ctx context.Context, username string, flags users.Flags) error {
	return u.client.do(ctx, http.MethodPut, "/api/users/"+url.PathEscape(username)+"/flags", nil, flags, nil)
}

// ChangePassword changes the password of the signed-in account.
func (u *Users) ChangePassword(ctx context.Context, change users.PasswordChange) error {
	return u.client.do(ctx, http.MethodPost, "/api/account/password", nil, change, nil)
}

// Aliases is the remote alias API.
type Aliases struct {
	client *Client
}

// List fetches one page of aliases.
func (a *Aliases) List(ctx context.Context, query resource.Query) ([]aliases.Alias, error) {
	var page resource.Page[aliases.Alias]
	if err := a.client.do(ctx, http.MethodGet, "/api/aliases", listParams(query), nil, &page); err != nil {
		return nil, err
	}
	return page.Rows, nil
}

// Count returns the number of aliases matching search.
func (a *Aliases) Count(ctx context.Context, search string) (int, error) {
	var payload countResponsePayload
	if err := a.client.do(ctx, http.MethodGet, "/api/aliases/count", searchParams(search), nil, &payload); err != nil {
		return 0, err
	}
	return payload.Count, nil
}

func (a *Aliases) CreateOrUpdate(ctx context.Context, mutation aliases.Mutation) (aliases.Alias, error) {
	var alias aliases.Alias
	err := a.client.do(ctx, http.MethodPost, "/api/aliases", nil, mutation, &alias)
	return alias, err
}

func (a *Aliases) Delete(ctx context.Context, address string) error {
	return a.client.do(ctx, http.MethodDelete, "/api/aliases/"+url.PathEscape(address), nil, nil, nil)
}

func (a *Aliases) SetActive(ctx context.Context, address string, flag aliases.ActiveFlag) error {
	return a.client.do(ctx, http.MethodPut, "/api/aliases/"+url.PathEscape(address)+"/active", nil, flag, nil)
}
