package http

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"grocery-api/internal/apperr"
	"grocery-api/internal/service"
)

var errInvalidRequest = apperr.New(apperr.KindValidation, "invalid request")

var registerOnce sync.Once

// RegisterValidators agrega los tags "mobile" y "otp" al validador de gin y
// hace que los errores usen el nombre JSON del campo.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("mobile", func(fl validator.FieldLevel) bool {
			return service.ValidMobile(strings.TrimSpace(fl.Field().String()))
		})
		_ = v.RegisterValidation("otp", func(fl validator.FieldLevel) bool {
			return service.ValidOTPCode(strings.TrimSpace(fl.Field().String()))
		})
	})
}

// bindBody decodifica y valida el body; en error ya respondio 400 con cada campo invalido.
func bindBody[T any](c *gin.Context) (T, bool) {
	var req T
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(errInvalidRequest.Kind.Status(), envelope{
			Message: errInvalidRequest.Message,
			Errors:  fieldErrors(err),
		})
		return req, false
	}
	return req, true
}

func fieldErrors(err error) []apperr.FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []apperr.FieldError{{Code: "malformed_body", Message: "request body is not valid JSON"}}
	}
	out := make([]apperr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, apperr.FieldError{
			Field:   fe.Field(),
			Code:    fe.Tag(),
			Message: fieldMessage(fe),
		})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "mobile":
		return "mobile number must be 10 digits starting with 6-9"
	case "otp":
		return "otp must be 6 digits"
	case "min":
		return fe.Field() + " must be at least " + fe.Param()
	case "max":
		return fe.Field() + " must be at most " + fe.Param()
	case "len":
		return fe.Field() + " must have length " + fe.Param()
	case "numeric":
		return fe.Field() + " must contain only digits"
	default:
		return fe.Field() + " is invalid"
	}
}
