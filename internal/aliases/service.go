package aliases

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
	operationList           = "aliases.list"
	operationCount          = "aliases.count"
	operationCreateOrUpdate = "aliases.create_or_update"
	operationDelete         = "aliases.delete"
	operationSetActive      = "aliases.set_active"

	reasonInvalidRange     = "invalid_range"
	reasonInvalidAddress   = "invalid_address"
	reasonInvalidTarget    = "invalid_target"
	reasonInvalidComment   = "invalid_comment"
	reasonDuplicateAddress = "duplicate_address"
	reasonNotFound         = "not_found"
	reasonQueryFailed      = "query_failed"
	reasonStoreFailed      = "store_failed"
)

// ServiceConfig describes the dependencies required for alias management.
type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
	Clock    func() time.Time
}

// Service manages aliases. Reads need any signed-in principal, writes need an
// admin.
type Service struct {
	db     *gorm.DB
	source *resource.GormSource[Alias]
	logger *zap.Logger
	now    func() time.Time
}

// NewService constructs the alias service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("aliases: database connection required")
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
	return &Service{db: cfg.Database, source: source, logger: logger, now: clock}, nil
}

// List returns one page of aliases.
func (s *Service) List(ctx context.Context, query resource.Query) ([]Alias, error) {
	if _, err := auth.RequirePrincipal(ctx); err != nil {
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

// Count returns the number of aliases whose address or comment matches search.
func (s *Service) Count(ctx context.Context, search string) (int, error) {
	if _, err := auth.RequirePrincipal(ctx); err != nil {
		return 0, err
	}
	count, err := s.source.Count(ctx, search)
	if err != nil {
		return 0, resource.NewServiceError(operationCount, reasonQueryFailed, err)
	}
	return count, nil
}

// CreateOrUpdate inserts an alias, or rewrites the one at PriorAddress. The
// relay's counters and the creation time are preserved on update.
func (s *Service) CreateOrUpdate(ctx context.Context, mutation Mutation) (Alias, error) {
	principal, err := auth.RequireAdmin(ctx)
	if err != nil {
		return Alias{}, err
	}
	address, err := validateAddress(reasonInvalidAddress, mutation.Address)
	if err != nil {
		return Alias{}, err
	}
	target, err := validateAddress(reasonInvalidTarget, mutation.Target)
	if err != nil {
		return Alias{}, err
	}
	comment := strings.TrimSpace(mutation.Comment)
	if len(comment) > maxCommentLength {
		return Alias{}, resource.NewServiceError(operationCreateOrUpdate, reasonInvalidComment, resource.ErrInvalidInput)
	}

	if !mutation.IsUpdate() {
		alias := Alias{
			Address:   address,
			Target:    target,
			Comment:   comment,
			CreatedAt: s.now().UTC(),
			Active:    mutation.Active,
		}
		if err := s.db.WithContext(ctx).Create(&alias).Error; err != nil {
			return Alias{}, s.storeError(operationCreateOrUpdate, err)
		}
		s.logger.Info("alias created", zap.String("address", address), zap.String("by", principal.Username))
		return alias, nil
	}

	prior := normalizeAddress(*mutation.PriorAddress)
	var alias Alias
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Alias{}).
			Where("address = ?", prior).
			Updates(map[string]any{
				"address": address,
				"target":  target,
				"comment": comment,
				"active":  mutation.Active,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return resource.ErrNotFound
		}
		return tx.Where("address = ?", address).Take(&alias).Error
	})
	if err != nil {
		return Alias{}, s.storeError(operationCreateOrUpdate, err)
	}
	s.logger.Info("alias updated",
		zap.String("prior_address", prior),
		zap.String("address", address),
		zap.String("by", principal.Username))
	return alias, nil
}

// Delete removes the alias at address.
func (s *Service) Delete(ctx context.Context, address string) error {
	principal, err := auth.RequireAdmin(ctx)
	if err != nil {
		return err
	}
	target := normalizeAddress(address)
	if target == "" {
		return resource.NewServiceError(operationDelete, reasonInvalidAddress, resource.ErrInvalidInput)
	}
	result := s.db.WithContext(ctx).Where("address = ?", target).Delete(&Alias{})
	if result.Error != nil {
		return s.storeError(operationDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return resource.NewServiceError(operationDelete, reasonNotFound, resource.ErrNotFound)
	}
	s.logger.Info("alias deleted", zap.String("address", target), zap.String("by", principal.Username))
	return nil
}

// SetActive toggles whether the relay accepts mail for address.
func (s *Service) SetActive(ctx context.Context, address string, flag ActiveFlag) error {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return err
	}
	target := normalizeAddress(address)
	if target == "" {
		return resource.NewServiceError(operationSetActive, reasonInvalidAddress, resource.ErrInvalidInput)
	}
	result := s.db.WithContext(ctx).
		Model(&Alias{}).
		Where("address = ?", target).
		Update("active", flag.Active)
	if result.Error != nil {
		return s.storeError(operationSetActive, result.Error)
	}
	if result.RowsAffected == 0 {
		return resource.NewServiceError(operationSetActive, reasonNotFound, resource.ErrNotFound)
	}
	return nil
}

func (s *Service) storeError(operation string, err error) error {
	switch {
	case errors.Is(err, resource.ErrNotFound):
		return resource.NewServiceError(operation, reasonNotFound, resource.ErrNotFound)
	case resource.IsUniqueViolation(err):
		return resource.NewServiceError(operation, reasonDuplicateAddress, fmt.Errorf("%w: %v", resource.ErrConflict, err))
	default:
		s.logger.Error("alias store failure", zap.String("operation", operation), zap.Error(err))
		return resource.NewServiceError(operation, reasonStoreFailed, err)
	}
}

// validateAddress accepts local@domain with no whitespace or path separators.
func validateAddress(reason, raw string) (string, error) {
	address := normalizeAddress(raw)
	local, domain, found := strings.Cut(address, "@")
	if !found || local == "" || domain == "" || strings.Contains(domain, "@") ||
		len(address) > maxAddressLength || strings.ContainsAny(address, " \t\r\n/") {
		return "", resource.NewServiceError(operationCreateOrUpdate, reason, resource.ErrInvalidInput)
	}
	return address, nil
}
