// Package access gates bot commands by user role.
package access

import (
	"context"
	"errors"
	"fmt"

	"carservice/internal/domain"
	"carservice/internal/model"

	"github.com/rs/zerolog"
)

// RoleRepository reads and writes user roles.
type RoleRepository interface {
	GetUserRole(ctx context.Context, telegramID int64) (model.Role, error)
	SetUserRole(ctx context.Context, telegramID int64, role model.Role) error
}

type Service struct {
	roles  RoleRepository
	logger zerolog.Logger
}

func NewService(roles RoleRepository, logger *zerolog.Logger) *Service {
	return &Service{
		roles:  roles,
		logger: logger.With().Str("component", "access").Logger(),
	}
}

// Role returns the user's role. Unknown users are plain users.
func (s *Service) Role(ctx context.Context, userID int64) (model.Role, error) {
	role, err := s.roles.GetUserRole(ctx, userID)
	if domain.IsNotFound(err) {
		return model.RoleUser, nil
	}
	return role, err
}

// Middleware rejects blocked users.
func (s *Service) Middleware(ctx context.Context, userID int64) error {
	role, err := s.Role(ctx, userID)
	if err != nil {
		return fmt.Errorf("checking access: %w", err)
	}
	if role == model.RoleBlocked {
		return &AccessDeniedError{Reason: "⛔ Доступ заблокирован."}
	}
	return nil
}

// RequireMaster allows masters and admins.
func (s *Service) RequireMaster(ctx context.Context, userID int64) error {
	return s.require(ctx, userID, "Эта функция доступна только мастерам.", model.RoleMaster, model.RoleAdmin)
}

func (s *Service) RequireAdmin(ctx context.Context, userID int64) error {
	return s.require(ctx, userID, "Эта команда доступна только администратору.", model.RoleAdmin)
}

func (s *Service) require(ctx context.Context, userID int64, reason string, allowed ...model.Role) error {
	role, err := s.Role(ctx, userID)
	if err != nil {
		return fmt.Errorf("checking role: %w", err)
	}
	for _, r := range allowed {
		if role == r {
			return nil
		}
	}
	return &AccessDeniedError{Reason: reason}
}

// SetRole changes the target's role on behalf of an admin.
func (s *Service) SetRole(ctx context.Context, actorID, targetID int64, role model.Role) error {
	if err := s.RequireAdmin(ctx, actorID); err != nil {
		return err
	}
	if actorID == targetID {
		return domain.Validation("user", "cannot change own role")
	}
	if err := s.roles.SetUserRole(ctx, targetID, role); err != nil {
		return err
	}
	s.logger.Info().
		Int64("user_id", targetID).
		Int64("changed_by", actorID).
		Str("role", string(role)).
		Msg("user role changed")
	return nil
}

func (s *Service) BlockUser(ctx context.Context, actorID, targetID int64) error {
	return s.SetRole(ctx, actorID, targetID, model.RoleBlocked)
}

func (s *Service) UnblockUser(ctx context.Context, actorID, targetID int64) error {
	return s.SetRole(ctx, actorID, targetID, model.RoleUser)
}

// AccessDeniedError carries a user-facing reason.
type AccessDeniedError struct {
	Reason string
}

func (e *AccessDeniedError) Error() string {
	return e.Reason
}

func IsAccessDenied(err error) bool {
	var ad *AccessDeniedError
	return errors.As(err, &ad)
}
