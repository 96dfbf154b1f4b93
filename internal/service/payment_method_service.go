package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"grocery-api/internal/apperr"
	"grocery-api/internal/domain"
	"grocery-api/internal/repository"
)

var lastFourPattern = regexp.MustCompile(`^[0-9]{4}$`)

// AddPaymentMethodInput son los datos de una tarjeta ya tokenizada en el cliente.
type AddPaymentMethodInput struct {
	GatewayToken string
	Brand        string
	LastFour     string
	ExpMonth     int
	ExpYear      int
	MakeDefault  bool
}

// PaymentMethodService mantiene la invariante de un unico default activo por usuario.
// Toda escritura corre dentro de WithUserLock.
type PaymentMethodService struct {
	logger  *zap.Logger
	methods repository.PaymentMethodRepository
	now     func() time.Time
}

func NewPaymentMethodService(logger *zap.Logger, methods repository.PaymentMethodRepository) *PaymentMethodService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentMethodService{
		logger:  logger,
		methods: methods,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *PaymentMethodService) AddPaymentMethod(ctx context.Context, userID string, in AddPaymentMethodInput) (domain.PaymentMethod, error) {
	in.GatewayToken = strings.TrimSpace(in.GatewayToken)
	in.Brand = strings.TrimSpace(in.Brand)
	in.LastFour = strings.TrimSpace(in.LastFour)
	if fields := validatePaymentMethod(in); len(fields) > 0 {
		return domain.PaymentMethod{}, ErrInvalidPaymentMethod.WithDetails(fields)
	}

	now := s.now()
	if domain.CardExpired(in.ExpMonth, in.ExpYear, now) {
		return domain.PaymentMethod{}, ErrCardExpired
	}

	pm := domain.PaymentMethod{
		ID:           uuid.NewString(),
		UserID:       userID,
		GatewayToken: in.GatewayToken,
		Brand:        in.Brand,
		LastFour:     in.LastFour,
		ExpMonth:     in.ExpMonth,
		ExpYear:      in.ExpYear,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.methods.WithUserLock(ctx, userID, func(store repository.PaymentMethodStore) error {
		if _, err := store.FindActiveByToken(ctx, userID, in.GatewayToken); err == nil {
			return ErrDuplicateCard
		} else if !isNotFound(err) {
			return internal("check duplicate card", err)
		}

		active, err := store.ListActive(ctx, userID)
		if err != nil {
			return internal("list payment methods", err)
		}
		// La primera tarjeta activa siempre queda como default.
		pm.IsDefault = in.MakeDefault || !hasDefault(active)
		if pm.IsDefault && len(active) > 0 {
			if err := store.ClearDefaults(ctx, userID, now); err != nil {
				return internal("clear defaults", err)
			}
		}

		if err := store.Insert(ctx, pm); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrDuplicateCard
			}
			return internal("insert payment method", err)
		}
		return nil
	})
	if err != nil {
		return domain.PaymentMethod{}, err
	}

	s.logger.Info("payment method added",
		zap.String("user_id", userID),
		zap.String("payment_method_id", pm.ID),
		zap.Bool("default", pm.IsDefault),
	)
	return pm, nil
}

func (s *PaymentMethodService) ListPaymentMethods(ctx context.Context, userID string) ([]domain.PaymentMethod, error) {
	methods, err := s.methods.ListActive(ctx, userID)
	if err != nil {
		return nil, internal("list payment methods", err)
	}
	return methods, nil
}

func (s *PaymentMethodService) GetPaymentMethod(ctx context.Context, userID, id string) (domain.PaymentMethod, error) {
	if !validMethodID(id) {
		return domain.PaymentMethod{}, ErrPaymentMethodNotFound
	}
	pm, err := s.methods.Get(ctx, userID, id)
	if err != nil {
		if isNotFound(err) {
			return domain.PaymentMethod{}, ErrPaymentMethodNotFound
		}
		return domain.PaymentMethod{}, internal("load payment method", err)
	}
	return pm, nil
}

// SetDefaultPaymentMethod desmarca todos y marca el elegido en la misma transaccion.
func (s *PaymentMethodService) SetDefaultPaymentMethod(ctx context.Context, userID, id string) (domain.PaymentMethod, error) {
	if !validMethodID(id) {
		return domain.PaymentMethod{}, ErrPaymentMethodNotFound
	}
	var result domain.PaymentMethod
	err := s.methods.WithUserLock(ctx, userID, func(store repository.PaymentMethodStore) error {
		pm, err := store.Get(ctx, userID, id)
		if err != nil {
			if isNotFound(err) {
				return ErrPaymentMethodNotFound
			}
			return internal("load payment method", err)
		}
		now := s.now()
		if pm.IsExpired(now) {
			return ErrCardExpired
		}
		if pm.IsDefault {
			result = pm
			return nil
		}

		if err := store.ClearDefaults(ctx, userID, now); err != nil {
			return internal("clear defaults", err)
		}
		if err := store.SetDefault(ctx, userID, id, now); err != nil {
			return internal("set default", err)
		}
		pm.IsDefault = true
		pm.UpdatedAt = now
		result = pm
		return nil
	})
	if err != nil {
		return domain.PaymentMethod{}, err
	}
	return result, nil
}

// DeletePaymentMethod desactiva la tarjeta; si era la default promueve otra.
// Devuelve la tarjeta promovida, o nil si no hubo promocion.
func (s *PaymentMethodService) DeletePaymentMethod(ctx context.Context, userID, id string) (*domain.PaymentMethod, error) {
	if !validMethodID(id) {
		return nil, ErrPaymentMethodNotFound
	}
	var promoted *domain.PaymentMethod
	err := s.methods.WithUserLock(ctx, userID, func(store repository.PaymentMethodStore) error {
		pm, err := store.Get(ctx, userID, id)
		if err != nil {
			if isNotFound(err) {
				return ErrPaymentMethodNotFound
			}
			return internal("load payment method", err)
		}

		now := s.now()
		if err := store.Deactivate(ctx, userID, id, now); err != nil {
			return internal("deactivate payment method", err)
		}
		if !pm.IsDefault {
			return nil
		}

		remaining, err := store.ListActive(ctx, userID)
		if err != nil {
			return internal("list payment methods", err)
		}
		next, ok := pickPromotion(remaining, now)
		if !ok {
			return nil
		}
		if err := store.SetDefault(ctx, userID, next.ID, now); err != nil {
			return internal("promote default", err)
		}
		next.IsDefault = true
		promoted = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	if promoted != nil {
		s.logger.Info("default payment method promoted",
			zap.String("user_id", userID),
			zap.String("payment_method_id", promoted.ID),
		)
	}
	return promoted, nil
}

// ResolveForCheckout devuelve la tarjeta pedida o la default, sin marcarla como usada.
func (s *PaymentMethodService) ResolveForCheckout(ctx context.Context, userID, id string) (domain.PaymentMethod, error) {
	var pm domain.PaymentMethod
	if strings.TrimSpace(id) != "" {
		found, err := s.GetPaymentMethod(ctx, userID, id)
		if err != nil {
			return domain.PaymentMethod{}, err
		}
		pm = found
	} else {
		methods, err := s.ListPaymentMethods(ctx, userID)
		if err != nil {
			return domain.PaymentMethod{}, err
		}
		found := false
		for _, m := range methods {
			if m.IsDefault {
				pm, found = m, true
				break
			}
		}
		if !found {
			return domain.PaymentMethod{}, ErrNoDefaultPayment
		}
	}

	now := s.now()
	if pm.IsExpired(now) {
		return domain.PaymentMethod{}, ErrCardExpired
	}
	return pm, nil
}

// MarkUsed registra el uso de la tarjeta en un pedido ya confirmado.
func (s *PaymentMethodService) MarkUsed(ctx context.Context, userID, id string) error {
	if err := s.methods.TouchLastUsed(ctx, userID, id, s.now()); err != nil {
		if isNotFound(err) {
			return ErrPaymentMethodNotFound
		}
		return internal("touch payment method", err)
	}
	return nil
}

// validMethodID descarta ids que no pueden existir: la columna es UUID.
func validMethodID(id string) bool {
	_, err := uuid.Parse(strings.TrimSpace(id))
	return err == nil
}

// pickPromotion elige la tarjeta usada mas recientemente (desempate: la mas nueva).
// Las vencidas solo se eligen si no queda ninguna vigente.
func pickPromotion(methods []domain.PaymentMethod, now time.Time) (domain.PaymentMethod, bool) {
	var (
		best  domain.PaymentMethod
		found bool
	)
	for _, m := range methods {
		if !found || morePromotable(m, best, now) {
			best, found = m, true
		}
	}
	return best, found
}

func morePromotable(a, b domain.PaymentMethod, now time.Time) bool {
	aValid, bValid := !a.IsExpired(now), !b.IsExpired(now)
	if aValid != bValid {
		return aValid
	}
	switch {
	case a.LastUsedAt != nil && b.LastUsedAt == nil:
		return true
	case a.LastUsedAt == nil && b.LastUsedAt != nil:
		return false
	case a.LastUsedAt != nil && b.LastUsedAt != nil && !a.LastUsedAt.Equal(*b.LastUsedAt):
		return a.LastUsedAt.After(*b.LastUsedAt)
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func hasDefault(methods []domain.PaymentMethod) bool {
	for _, m := range methods {
		if m.IsDefault {
			return true
		}
	}
	return false
}

func validatePaymentMethod(in AddPaymentMethodInput) []apperr.FieldError {
	var fields []apperr.FieldError
	if in.GatewayToken == "" {
		fields = append(fields, apperr.FieldError{Field: "gatewayToken", Code: "required", Message: "gateway token is required"})
	}
	if in.Brand == "" {
		fields = append(fields, apperr.FieldError{Field: "brand", Code: "required", Message: "card brand is required"})
	}
	if !lastFourPattern.MatchString(in.LastFour) {
		fields = append(fields, apperr.FieldError{Field: "lastFour", Code: "len", Message: "last four must be exactly 4 digits"})
	}
	if in.ExpMonth < 1 || in.ExpMonth > 12 {
		fields = append(fields, apperr.FieldError{Field: "expMonth", Code: "range", Message: "expiry month must be between 1 and 12"})
	}
	if in.ExpYear < 1000 || in.ExpYear > 9999 {
		fields = append(fields, apperr.FieldError{Field: "expYear", Code: "len", Message: "expiry year must have 4 digits"})
	}
	return fields
}
