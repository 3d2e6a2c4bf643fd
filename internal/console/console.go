package console

import (
	"context"

	"github.com/MarcoPoloResearchLab/relayadmin/internal/apiclient"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/auth"
	"go.uber.org/zap"
)

// Console is one signed-in operator session: the API client and the views
// built on it.
type Console struct {
	client    *apiclient.Client
	logger    *zap.Logger
	principal auth.Principal

	Users   *UsersView
	Aliases *AliasesView
	Account *AccountSettings
}

// Open signs in through client and builds the views. The users view is only
// built for administrators.
func Open(ctx context.Context, client *apiclient.Client, username, password string, cfg ViewConfig) (*Console, error) {
	principal, err := client.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	console := &Console{
		client:    client,
		logger:    cfg.Logger,
		principal: principal,
		Aliases:   NewAliasesView(client.Aliases(), cfg),
		Account:   NewAccountSettings(client.Users(), cfg.Logger),
	}
	if principal.Admin {
		console.Users = NewUsersView(client.Users(), cfg)
	}
	return console, nil
}

// Principal returns the signed-in operator.
func (c *Console) Principal() auth.Principal {
	return c.principal
}

// Start loads every table.
func (c *Console) Start() {
	if c.Users != nil {
		c.Users.Table.Start()
	}
	c.Aliases.Table.Start()
}

// Close stops the tables and ends the session.
func (c *Console) Close(ctx context.Context) error {
	if c.Users != nil {
		c.Users.Table.Close()
	}
	c.Aliases.Table.Close()
	if err := c.client.Logout(ctx); err != nil {
		c.logger.Warn("logout failed", zap.Error(err))
		return err
	}
	return nil
}
