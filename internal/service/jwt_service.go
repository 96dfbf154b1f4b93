package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"grocery-api/internal/domain"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
	jwtIssuer        = "grocery-api"

	defaultAccessTTL  = time.Hour
	defaultRefreshTTL = 30 * 24 * time.Hour
)

// JWTService firma el par access/refresh de una sesion movil.
// Solo el jti de los refresh tokens se persiste, en RefreshTokenStore.
type JWTService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	store      RefreshTokenStore
	parser     *jwt.Parser
	now        func() time.Time
}

// TokenPair es lo que recibe la app tras verificar el OTP o rotar la sesion.
type TokenPair struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type Claims struct {
	UserID    string `json:"uid"`
	Mobile    string `json:"mobile"`
	Verified  bool   `json:"verified"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

func (c Claims) sessionUser() domain.User {
	return domain.User{ID: c.UserID, MobileNumber: c.Mobile, IsVerified: c.Verified}
}

func NewJWTService(secret string, accessTTL, refreshTTL time.Duration) *JWTService {
	return NewJWTServiceWithStore(secret, accessTTL, refreshTTL, nil)
}

func NewJWTServiceWithStore(secret string, accessTTL, refreshTTL time.Duration, store RefreshTokenStore) *JWTService {
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	if store == nil {
		store = NewMemoryRefreshTokenStore()
	}
	s := &JWTService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		store:      store,
		now:        func() time.Time { return time.Now().UTC() },
	}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(jwtIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	return s
}

// GeneratePair abre una sesion nueva para el usuario.
func (s *JWTService) GeneratePair(user domain.User) (TokenPair, error) {
	if len(s.secret) == 0 || user.ID == "" {
		return TokenPair{}, ErrJWTInvalid
	}
	issuedAt := s.now()

	access, err := s.signed(s.claimsFor(user, tokenTypeAccess, issuedAt, s.accessTTL))
	if err != nil {
		return TokenPair{}, err
	}
	refreshClaims := s.claimsFor(user, tokenTypeRefresh, issuedAt, s.refreshTTL)
	refresh, err := s.signed(refreshClaims)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.Store(refreshClaims.ID, user.ID, s.refreshTTL); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL / time.Second),
	}, nil
}

// RefreshPair consume el refresh token: su jti deja de ser valido antes de emitir el par nuevo.
func (s *JWTService) RefreshPair(refreshToken string) (TokenPair, error) {
	claims, err := s.parseRefresh(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if live, err := s.store.Exists(claims.ID); err != nil || !live {
		return TokenPair{}, ErrJWTInvalid
	}
	if err := s.store.Revoke(claims.ID); err != nil {
		return TokenPair{}, ErrJWTInvalid
	}
	return s.GeneratePair(claims.sessionUser())
}

// RevokeRefresh cierra la sesion; revocar un jti ya revocado no es error.
func (s *JWTService) RevokeRefresh(refreshToken string) error {
	claims, err := s.parseRefresh(refreshToken)
	if err != nil {
		return err
	}
	return s.store.Revoke(claims.ID)
}

func (s *JWTService) ParseAccessToken(accessToken string) (Claims, error) {
	return s.parseTyped(accessToken, tokenTypeAccess)
}

func (s *JWTService) parseRefresh(refreshToken string) (Claims, error) {
	claims, err := s.parseTyped(refreshToken, tokenTypeRefresh)
	if err != nil {
		return Claims{}, err
	}
	if claims.ID == "" {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

// parseTyped rechaza un token valido usado en el lugar del otro tipo.
func (s *JWTService) parseTyped(raw, tokenType string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if len(s.secret) == 0 || raw == "" {
		return Claims{}, ErrJWTInvalid
	}

	var claims Claims
	_, err := s.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Claims{}, ErrJWTExpired
	case err != nil:
		return Claims{}, ErrJWTInvalid
	}

	if claims.TokenType != tokenType || claims.UserID == "" || claims.Subject != claims.UserID {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

func (s *JWTService) claimsFor(user domain.User, tokenType string, issuedAt time.Time, ttl time.Duration) Claims {
	return Claims{
		UserID:    user.ID,
		Mobile:    user.MobileNumber,
		Verified:  user.IsVerified,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    jwtIssuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
}

func (s *JWTService) signed(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
