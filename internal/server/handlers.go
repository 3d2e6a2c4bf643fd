package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/relayadmin/internal/aliases"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/auth"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/resource"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 500
)

var errInvalidSort = errors.New("invalid sort")

type loginRequestPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type countResponsePayload struct {
	Count int `json:"count"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Username) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	principal, err := h.users.Authenticate(c.Request.Context(), request.Username, request.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.logger.Info("login rejected", zap.String("username", request.Username))
		}
		h.respondError(c, "auth.login", err)
		return
	}

	token, expiresAt, err := h.issuer.IssueSessionToken(principal.Username)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.validator.CookieName(),
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
	c.JSON(http.StatusOK, principal)
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.validator.CookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleMe(c *gin.Context) {
	principal, err := auth.RequirePrincipal(c.Request.Context())
	if err != nil {
		h.respondError(c, "auth.me", err)
		return
	}
	c.JSON(http.StatusOK, principal)
}

// listHandler serves one page of a resource as {rows, range}.
func listHandler[T any](h *httpHandler, operation string, list func(context.Context, resource.Query) ([]T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		query, err := parseQuery(c)
		if err != nil {
			reason := "invalid_range"
			if errors.Is(err, errInvalidSort) {
				reason = "invalid_sort"
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": operation + "." + reason})
			return
		}
		rows, err := list(c.Request.Context(), query)
		if err != nil {
			h.respondError(c, operation, err)
			return
		}
		c.JSON(http.StatusOK, resource.NewPage(rows, query.Range))
	}
}

func countHandler(h *httpHandler, operation string, count func(context.Context, string) (int, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		total, err := count(c.Request.Context(), strings.TrimSpace(c.Query("search")))
		if err != nil {
			h.respondError(c, operation, err)
			return
		}
		c.JSON(http.StatusOK, countResponsePayload{Count: total})
	}
}

func (h *httpHandler) handleUserCreateOrUpdate(c *gin.Context) {
	var mutation users.Mutation
	if err := c.ShouldBindJSON(&mutation); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	user, err := h.users.CreateOrUpdate(c.Request.Context(), mutation)
	if err != nil {
		h.respondError(c, "users.create_or_update", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *httpHandler) handleUserDelete(c *gin.Context) {
	if err := h.users.Delete(c.Request.Context(), c.Param("username")); err != nil {
		h.respondError(c, "users.delete", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleUserFlags(c *gin.Context) {
	var flags users.Flags
	if err := c.ShouldBindJSON(&flags); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.users.SetFlags(c.Request.Context(), c.Param("username"), flags); err != nil {
		h.respondError(c, "users.set_flags", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleChangePassword(c *gin.Context) {
	var change users.PasswordChange
	if err := c.ShouldBindJSON(&change); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.users.ChangePassword(c.Request.Context(), change); err != nil {
		h.respondError(c, "users.change_password", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleAliasCreateOrUpdate(c *gin.Context) {
	var mutation aliases.Mutation
	if err := c.ShouldBindJSON(&mutation); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	alias, err := h.aliases.CreateOrUpdate(c.Request.Context(), mutation)
	if err != nil {
		h.respondError(c, "aliases.create_or_update", err)
		return
	}
	c.JSON(http.StatusOK, alias)
}

func (h *httpHandler) handleAliasDelete(c *gin.Context) {
	if err := h.aliases.Delete(c.Request.Context(), c.Param("address")); err != nil {
		h.respondError(c, "aliases.delete", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleAliasActive(c *gin.Context) {
	var flag aliases.ActiveFlag
	if err := c.ShouldBindJSON(&flag); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.aliases.SetActive(c.Request.Context(), c.Param("address"), flag); err != nil {
		h.respondError(c, "aliases.set_active", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// respondError maps service failures onto status codes. Authorization
// failures are reported generically; everything else exposes only the code.
func (h *httpHandler) respondError(c *gin.Context, operation string, err error) {
	if errors.Is(err, auth.ErrUnauthenticated) || errors.Is(err, auth.ErrInvalidCredentials) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if errors.Is(err, auth.ErrForbidden) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "unauthorized"})
		return
	}

	code, ok := resource.ErrorCode(err)
	if !ok {
		code = operation + ".failed"
	}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, resource.ErrInvalidInput), errors.Is(err, resource.ErrInvalidRange):
		status = http.StatusBadRequest
	case errors.Is(err, resource.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, resource.ErrConflict):
		status = http.StatusConflict
	default:
		h.logger.Error("request failed", zap.String("operation", operation), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": code})
}

func parseQuery(c *gin.Context) (resource.Query, error) {
	start, err := intParam(c, "start", 0)
	if err != nil {
		return resource.Query{}, err
	}
	end, err := intParam(c, "end", start+defaultPageSize)
	if err != nil {
		return resource.Query{}, err
	}
	window := resource.Range{Start: start, End: end}
	if err := window.Validate(); err != nil {
		return resource.Query{}, err
	}
	if window.Len() > maxPageSize {
		return resource.Query{}, fmt.Errorf("%w: window exceeds %d rows", resource.ErrInvalidRange, maxPageSize)
	}
	sorting, err := resource.ParseSorting(c.Query("sort"))
	if err != nil {
		return resource.Query{}, fmt.Errorf("%w: %v", errInvalidSort, err)
	}
	return resource.Query{Sort: sorting, Range: window, Search: strings.TrimSpace(c.Query("search"))}, nil
}

func intParam(c *gin.Context, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not a number", resource.ErrInvalidRange, name)
	}
	return value, nil
}
