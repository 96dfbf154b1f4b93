package service

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"grocery-api/internal/domain"
	"grocery-api/internal/events"
	"grocery-api/internal/repository"
)

// UserService coordina reglas de negocio del perfil de usuario.
type UserService struct {
	logger    *zap.Logger
	users     repository.UserRepository
	otps      repository.OTPRepository
	publisher events.Publisher
	now       func() time.Time
}

func NewUserService(logger *zap.Logger, users repository.UserRepository, otps repository.OTPRepository, publisher events.Publisher) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &UserService{
		logger:    logger,
		users:     users,
		otps:      otps,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *UserService) GetProfile(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, internal("load user", err)
	}
	return user, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID string, upd domain.ProfileUpdate) (domain.User, error) {
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		upd.Name = &name
	}
	if upd.Email != nil {
		email := normalizeEmail(*upd.Email)
		if email != "" {
			if _, err := mail.ParseAddress(email); err != nil {
				return domain.User{}, ErrInvalidEmail
			}
		}
		upd.Email = &email
	}
	if upd.Avatar != nil {
		avatar := strings.TrimSpace(*upd.Avatar)
		upd.Avatar = &avatar
	}

	user, err := s.users.UpdateProfile(ctx, userID, upd, s.now())
	if err != nil {
		if isNotFound(err) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, internal("update profile", err)
	}
	return user, nil
}

// AddDeviceToken es idempotente: un token repetido no se duplica.
func (s *UserService) AddDeviceToken(ctx context.Context, userID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidDeviceToken
	}
	if err := s.users.AddDeviceToken(ctx, userID, token, s.now()); err != nil {
		if isNotFound(err) {
			return ErrUserNotFound
		}
		return internal("add device token", err)
	}
	return nil
}

func (s *UserService) RemoveDeviceToken(ctx context.Context, userID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidDeviceToken
	}
	if err := s.users.RemoveDeviceToken(ctx, userID, token, s.now()); err != nil {
		if isNotFound(err) {
			return ErrUserNotFound
		}
		return internal("remove device token", err)
	}
	return nil
}

// DeleteAccount borra el usuario con su carrito y medios de pago, y descarta su OTP.
func (s *UserService) DeleteAccount(ctx context.Context, userID string) error {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		if isNotFound(err) {
			return ErrUserNotFound
		}
		return internal("delete user", err)
	}
	if s.otps != nil {
		if err := s.otps.Delete(ctx, user.MobileNumber); err != nil {
			s.logger.Warn("delete otp record failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	emit(ctx, s.logger, s.publisher, s.now(), events.TypeAccountDeleted, userID, map[string]string{"userId": userID})
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
