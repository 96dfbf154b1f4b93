package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

// OTPLength es la cantidad de digitos de cada codigo emitido.
const OTPLength = 6

var (
	mobilePattern = regexp.MustCompile(`^[6-9][0-9]{9}$`)
	otpPattern    = regexp.MustCompile(`^[0-9]{6}$`)
)

// ValidMobile acepta exactamente 10 digitos con el primero entre 6 y 9.
func ValidMobile(mobile string) bool {
	return mobilePattern.MatchString(mobile)
}

func ValidOTPCode(code string) bool {
	return otpPattern.MatchString(code)
}

func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func hashOTPCode(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func otpMatches(code, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}
