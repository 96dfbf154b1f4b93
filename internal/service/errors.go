package service

import (
	"errors"

	"grocery-api/internal/apperr"
	"grocery-api/internal/repository"
)

var (
	ErrInvalidMobile       = apperr.New(apperr.KindValidation, "mobile number must be 10 digits starting with 6-9")
	ErrInvalidOTPFormat    = apperr.New(apperr.KindValidation, "otp must be 6 digits")
	ErrOTPNotFound         = apperr.New(apperr.KindNotFound, "otp not found")
	ErrOTPExpired          = apperr.New(apperr.KindExpired, "otp expired")
	ErrOTPMismatch         = apperr.New(apperr.KindUnauthorized, "otp mismatch")
	ErrOTPCooldown         = apperr.New(apperr.KindRateLimited, "otp resend cooldown active")
	ErrOTPRateLimited      = apperr.New(apperr.KindRateLimited, "too many otp requests")
	ErrOTPAttemptsExceeded = apperr.New(apperr.KindRateLimited, "too many otp attempts")

	ErrJWTInvalid = apperr.New(apperr.KindUnauthorized, "jwt invalid")
	ErrJWTExpired = apperr.New(apperr.KindUnauthorized, "jwt expired")

	ErrUserNotFound       = apperr.New(apperr.KindNotFound, "user not found")
	ErrInvalidEmail       = apperr.New(apperr.KindValidation, "invalid email")
	ErrInvalidDeviceToken = apperr.New(apperr.KindValidation, "device token is required")

	ErrInvalidCartItem    = apperr.New(apperr.KindValidation, "invalid cart item")
	ErrInvalidQuantity    = apperr.New(apperr.KindValidation, "quantity must be at least 1")
	ErrInvalidDeliveryTip = apperr.New(apperr.KindValidation, "delivery tip must not be negative")
	ErrProductNotFound    = apperr.New(apperr.KindNotFound, "product variant not found")
	ErrOutOfStock         = apperr.New(apperr.KindConflict, "product variant out of stock")
	ErrCartItemNotFound   = apperr.New(apperr.KindNotFound, "cart item not found")
	ErrCartEmpty          = apperr.New(apperr.KindValidation, "cart is empty")
	ErrCartHasIssues      = apperr.New(apperr.KindConflict, "cart has items that changed since they were added")
	ErrCartChanged        = apperr.New(apperr.KindConflict, "cart changed during checkout")

	ErrCouponCodeRequired  = apperr.New(apperr.KindValidation, "coupon code is required")
	ErrCouponNotFound      = apperr.New(apperr.KindNotFound, "coupon not found")
	ErrCouponInactive      = apperr.New(apperr.KindValidation, "coupon is not active")
	ErrCouponNotStarted    = apperr.New(apperr.KindValidation, "coupon is not active yet")
	ErrCouponExpired       = apperr.New(apperr.KindExpired, "coupon expired")
	ErrCouponNotApplicable = apperr.New(apperr.KindValidation, "coupon does not apply to any item in the cart")
	ErrCouponMinCartValue  = apperr.New(apperr.KindValidation, "cart value is below the coupon minimum")
	ErrCouponUsageExceeded = apperr.New(apperr.KindConflict, "coupon usage limit reached")
	ErrCouponNoLongerValid = apperr.New(apperr.KindConflict, "applied coupon is no longer valid")

	ErrInvalidPaymentMethod  = apperr.New(apperr.KindValidation, "invalid payment method")
	ErrCardExpired           = apperr.New(apperr.KindExpired, "card expired")
	ErrDuplicateCard         = apperr.New(apperr.KindConflict, "card already added")
	ErrPaymentMethodNotFound = apperr.New(apperr.KindNotFound, "payment method not found")
	ErrNoDefaultPayment      = apperr.New(apperr.KindNotFound, "no default payment method")
)

// internal envuelve errores inesperados de infraestructura.
func internal(message string, err error) error {
	return apperr.Wrap(apperr.KindInternal, message, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
