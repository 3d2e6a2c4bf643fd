package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/relayadmin/internal/aliases"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/auth"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/resource"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errMissingUserService    = errors.New("user service dependency required")
	errMissingAliasService   = errors.New("alias service dependency required")
	errMissingSessionIssuer  = errors.New("session issuer dependency required")
	errMissingSessionChecker = errors.New("session validator dependency required")
)

// UserService is the account store as seen by the HTTP layer.
type UserService interface {
	List(ctx context.Context, query resource.Query) ([]users.User, error)
	Count(ctx context.Context, search string) (int, error)
	CreateOrUpdate(ctx context.Context, mutation users.Mutation) (users.User, error)
	Delete(ctx context.Context, username string) error
	SetFlags(ctx context.Context, username string, flags users.Flags) error
	ChangePassword(ctx context.Context, change users.PasswordChange) error
	Authenticate(ctx context.Context, username, password string) (auth.Principal, error)
	Principal(ctx context.Context, username string) (auth.Principal, error)
}

// AliasService is the alias store as seen by the HTTP layer.
type AliasService interface {
	List(ctx context.Context, query resource.Query) ([]aliases.Alias, error)
	Count(ctx context.Context, search string) (int, error)
	CreateOrUpdate(ctx context.Context, mutation aliases.Mutation) (aliases.Alias, error)
	Delete(ctx context.Context, address string) error
	SetActive(ctx context.Context, address string, flag aliases.ActiveFlag) error
}

type SessionIssuer interface {
	IssueSessionToken(username string) (string, time.Time, error)
}

type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
	CookieName() string
}

type Dependencies struct {
	Users            UserService
	Aliases          AliasService
	SessionIssuer    SessionIssuer
	SessionValidator SessionValidator
	AllowedOrigins   []string
	SecureCookie     bool
	Logger           *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Users == nil {
		return nil, errMissingUserService
	}
	if deps.Aliases == nil {
		return nil, errMissingAliasService
	}
	if deps.SessionIssuer == nil {
		return nil, errMissingSessionIssuer
	}
	if deps.SessionValidator == nil {
		return nil, errMissingSessionChecker
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	if len(deps.AllowedOrigins) > 0 {
		router.Use(corsMiddleware(deps.AllowedOrigins))
	}

	handler := &httpHandler{
		users:        deps.Users,
		aliases:      deps.Aliases,
		issuer:       deps.SessionIssuer,
		validator:    deps.SessionValidator,
		secureCookie: deps.SecureCookie,
		logger:       logger,
	}

	router.POST("/auth/login", handler.handleLogin)
	router.POST("/auth/logout", handler.handleLogout)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/auth/me", handler.handleMe)

	api := protected.Group("/api")
	api.GET("/users", listHandler(handler, "users.list", deps.Users.List))
	api.GET("/users/count", countHandler(handler, "users.count", deps.Users.Count))
	api.POST("/users", handler.handleUserCreateOrUpdate)
	api.DELETE("/users/:username", handler.handleUserDelete)
	api.PUT("/users/:username/flags", handler.handleUserFlags)
	api.POST("/account/password", handler.handleChangePassword)

	api.GET("/aliases", listHandler(handler, "aliases.list", deps.Aliases.List))
	api.GET("/aliases/count", countHandler(handler, "aliases.count", deps.Aliases.Count))
	api.POST("/aliases", handler.handleAliasCreateOrUpdate)
	api.DELETE("/aliases/:address", handler.handleAliasDelete)
	api.PUT("/aliases/:address/active", handler.handleAliasActive)

	return router, nil
}

type httpHandler struct {
	users        UserService
	aliases      AliasService
	issuer       SessionIssuer
	validator    SessionValidator
	secureCookie bool
	logger       *zap.Logger
}
