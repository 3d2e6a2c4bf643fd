package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/relayadmin/internal/auth"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/resource"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	operationList           = "users.list"
	operationCount          = "users.count"
	operationCreateOrUpdate = "users.create_or_update"
	operationDelete         = "users.delete"
	operationSetFlags       = "users.set_flags"
	operationChangePassword = "users.change_password"
	operationAuthenticate   = "users.authenticate"
	operationBootstrap      = "users.bootstrap"

	reasonInvalidRange       = "invalid_range"
	reasonInvalidUsername    = "invalid_username"
	reasonInvalidPassword    = "invalid_password"
	reasonInvalidCredentials = "invalid_credentials"
	reasonDuplicateUsername  = "duplicate_username"
	reasonNotFound           = "not_found"
	reasonSelfLockout        = "self_lockout"
	reasonQueryFailed        = "query_failed"
	reasonStoreFailed        = "store_failed"
	reasonHashFailed         = "hash_failed"
)

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database *gorm.DB
	Hasher   *auth.PasswordHasher
	Logger   *zap.Logger
	Clock    func() time.Time
}

// Service manages console accounts. Every operation except Authenticate,
// Principal and Bootstrap expects a principal in the context.
type Service struct {
	db     *gorm.DB
	source *resource.GormSource[User]
	hasher *auth.PasswordHasher
	logger *zap.Logger
	now    func() time.Time
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	if cfg.Hasher == nil {
		return nil, fmt.Errorf("users: password hasher required")
	}
	source, err := resource.NewGormSource(cfg.Database, Schema())
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:     cfg.Database,
		source: source,
		hasher: cfg.Hasher,
		logger: logger,
		now:    clock,
	}, nil
}

// List returns one page of accounts. Requires an admin.
func (s *Service) List(ctx context.Context, query resource.Query) ([]User, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	rows, err := s.source.List(ctx, query)
	if err != nil {
		if errors.Is(err, resource.ErrInvalidRange) {
			return nil, resource.NewServiceError(operationList, reasonInvalidRange, err)
		}
		return nil, resource.NewServiceError(operationList, reasonQueryFailed, err)
	}
	return rows, nil
}

// Count returns the number of accounts matching search. Requires an admin.
func (s *Service) Count(ctx context.Context, search string) (int, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return 0, err
	}
	count, err := s.source.Count(ctx, search)
	if err != nil {
		return 0, resource.NewServiceError(operationCount, reasonQueryFailed, err)
	}
	return count, nil
}

// CreateOrUpdate inserts a new account, or updates the one named by
// PriorUsername. An empty password on update keeps the stored hash.
func (s *Service) CreateOrUpdate(ctx context.Context, mutation Mutation) (User, error) {
	principal, err := auth.RequireAdmin(ctx)
	if err != nil {
		return User{}, err
	}
	username, err := validateUsername(operationCreateOrUpdate, mutation.Username)
	if err != nil {
		return User{}, err
	}

	if !mutation.IsUpdate() {
		hash, err := s.hashPassword(operationCreateOrUpdate, mutation.Password)
		if err != nil {
			return User{}, err
		}
		user := User{
			Username:     username,
			PasswordHash: hash,
			Admin:        mutation.Admin,
			Active:       mutation.Active,
			CreatedAt:    s.now().UTC(),
		}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			return User{}, s.storeError(operationCreateOrUpdate, err)
		}
		s.logger.Info("user created", zap.String("username", username), zap.String("by", principal.Username))
		return user, nil
	}

	prior := normalizeUsername(*mutation.PriorUsername)
	if prior == principal.Username && (!mutation.Admin || !mutation.Active) {
		return User{}, resource.NewServiceError(operationCreateOrUpdate, reasonSelfLockout, resource.ErrInvalidInput)
	}
	updates := map[string]any{
		"username": username,
		"admin":    mutation.Admin,
		"active":   mutation.Active,
	}
	if mutation.Password != "" {
		hash, err := s.hashPassword(operationCreateOrUpdate, mutation.Password)
		if err != nil {
			return User{}, err
		}
		updates["password_hash"] = hash
	}

	var user User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&User{}).Where("username = ?", prior).Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return resource.ErrNotFound
		}
		return tx.Where("username = ?", username).Take(&user).Error
	})
	if err != nil {
		return User{}, s.storeError(operationCreateOrUpdate, err)
	}
	s.logger.Info("user updated",
		zap.String("prior_username", prior),
		zap.String("username", username),
		zap.String("by", principal.Username))
	return user, nil
}

// Delete removes the account named username. Admins cannot delete themselves.
func (s *Service) Delete(ctx context.Context, username string) error {
	principal, err := auth.RequireAdmin(ctx)
	if err != nil {
		return err
	}
	target := normalizeUsername(username)
	if target == "" {
		return resource.NewServiceError(operationDelete, reasonInvalidUsername, resource.ErrInvalidInput)
	}
	if target == principal.Username {
		return resource.NewServiceError(operationDelete, reasonSelfLockout, resource.ErrInvalidInput)
	}
	result := s.db.WithContext(ctx).Where("username = ?", target).Delete(&User{})
	if result.Error != nil {
		return s.storeError(operationDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return resource.NewServiceError(operationDelete, reasonNotFound, resource.ErrNotFound)
	}
	s.logger.Info("user deleted", zap.String("username", target), zap.String("by", principal.Username))
	return nil
}

// SetFlags updates the admin and active flags of username.
func (s *Service) SetFlags(ctx context.Context, username string, flags Flags) error {
	principal, err := auth.RequireAdmin(ctx)
	if err != nil {
		return err
	}
	target := normalizeUsername(username)
	if target == "" {
		return resource.NewServiceError(operationSetFlags, reasonInvalidUsername, resource.ErrInvalidInput)
	}
	if target == principal.Username && (!flags.Admin || !flags.Active) {
		return resource.NewServiceError(operationSetFlags, reasonSelfLockout, resource.ErrInvalidInput)
	}
	result := s.db.WithContext(ctx).
		Model(&User{}).
		Where("username = ?", target).
		Updates(map[string]any{"admin": flags.Admin, "active": flags.Active})
	if result.Error != nil {
		return s.storeError(operationSetFlags, result.Error)
	}
	if result.RowsAffected == 0 {
		return resource.NewServiceError(operationSetFlags, reasonNotFound, resource.ErrNotFound)
	}
	return nil
}

// ChangePassword replaces the password of the calling principal after
// re-verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, change PasswordChange) error {
	principal, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return err
	}
	var user User
	if err := s.db.WithContext(ctx).Where("username = ?", principal.Username).Take(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return auth.ErrUnauthenticated
		}
		return s.storeError(operationChangePassword, err)
	}
	if err := s.hasher.Verify(user.PasswordHash, change.CurrentPassword); err != nil {
		return resource.NewServiceError(operationChangePassword, reasonInvalidCredentials, resource.ErrInvalidInput)
	}
	hash, err := s.hashPassword(operationChangePassword, change.NewPassword)
	if err != nil {
		return err
	}
	result := s.db.WithContext(ctx).
		Model(&User{}).
		Where("username = ?", principal.Username).
		Update("password_hash", hash)
	if result.Error != nil {
		return s.storeError(operationChangePassword, result.Error)
	}
	s.logger.Info("password changed", zap.String("username", principal.Username))
	return nil
}

// Authenticate verifies a login attempt. Unknown and inactive accounts are
// indistinguishable from a wrong password.
func (s *Service) Authenticate(ctx context.Context, username, password string) (auth.Principal, error) {
	invalid := resource.NewServiceError(operationAuthenticate, reasonInvalidCredentials, auth.ErrInvalidCredentials)
	name := normalizeUsername(username)

	var user User
	err := s.db.WithContext(ctx).Where("username = ?", name).Take(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return auth.Principal{}, s.storeError(operationAuthenticate, err)
	}
	if verifyErr := s.hasher.Verify(user.PasswordHash, password); verifyErr != nil {
		return auth.Principal{}, invalid
	}
	if !user.Active {
		return auth.Principal{}, invalid
	}
	return auth.Principal{Username: user.Username, Admin: user.Admin}, nil
}

// Principal reloads the principal for a session subject. Missing or
// deactivated accounts are unauthenticated.
func (s *Service) Principal(ctx context.Context, username string) (auth.Principal, error) {
	var user User
	err := s.db.WithContext(ctx).Where("username = ?", normalizeUsername(username)).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return auth.Principal{}, auth.ErrUnauthenticated
	}
	if err != nil {
		return auth.Principal{}, err
	}
	if !user.Active {
		return auth.Principal{}, auth.ErrUnauthenticated
	}
	return auth.Principal{Username: user.Username, Admin: user.Admin}, nil
}

// Bootstrap creates an active administrator, or promotes and resets the
// password of an existing account with that name.
func (s *Service) Bootstrap(ctx context.Context, username, password string) (User, error) {
	name, err := validateUsername(operationBootstrap, username)
	if err != nil {
		return User{}, err
	}
	hash, err := s.hashPassword(operationBootstrap, password)
	if err != nil {
		return User{}, err
	}

	var user User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lookupErr := tx.Where("username = ?", name).Take(&user).Error
		if errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			user = User{
				Username:     name,
				PasswordHash: hash,
				Admin:        true,
				Active:       true,
				CreatedAt:    s.now().UTC(),
			}
			return tx.Create(&user).Error
		}
		if lookupErr != nil {
			return lookupErr
		}
		user.PasswordHash = hash
		user.Admin = true
		user.Active = true
		return tx.Model(&User{}).
			Where("username = ?", name).
			Updates(map[string]any{"password_hash": hash, "admin": true, "active": true}).
			Error
	})
	if err != nil {
		return User{}, s.storeError(operationBootstrap, err)
	}
	s.logger.Info("administrator bootstrapped", zap.String("username", name))
	return user, nil
}

func (s *Service) hashPassword(operation, password string) (string, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			return "", resource.NewServiceError(operation, reasonInvalidPassword, fmt.Errorf("%w: %w", resource.ErrInvalidInput, err))
		}
		return "", resource.NewServiceError(operation, reasonHashFailed, err)
	}
	return hash, nil
}

func (s *Service) storeError(operation string, err error) error {
	switch {
	case errors.Is(err, resource.ErrNotFound):
		return resource.NewServiceError(operation, reasonNotFound, resource.ErrNotFound)
	case resource.IsUniqueViolation(err):
		return resource.NewServiceError(operation, reasonDuplicateUsername, fmt.Errorf("%w: %v", resource.ErrConflict, err))
	default:
		s.logger.Error("user store failure", zap.String("operation", operation), zap.Error(err))
		return resource.NewServiceError(operation, reasonStoreFailed, err)
	}
}

func validateUsername(operation, raw string) (string, error) {
	username := normalizeUsername(raw)
	if username == "" || len(username) > maxUsernameLength || strings.ContainsAny(username, " \t\r\n/") {
		return "", resource.NewServiceError(operation, reasonInvalidUsername, resource.ErrInvalidInput)
	}
	return username, nil
}

func normalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
