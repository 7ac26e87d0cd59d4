package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yungbote/kierachat-backend/internal/pkg/ctxutil"
	pkgerrors "github.com/yungbote/kierachat-backend/internal/pkg/errors"
	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
)

const (
	tokenIssuer      = "kierachat"
	tokenKindAccess  = "access"
	tokenKindAnon    = "anonymous"
	anonymousSubject = "anon:"
)

type JWTClaims struct {
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

type AnonymousToken struct {
	Token       string    `json:"token"`
	AnonymousID string    `json:"anonymousId"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// AuthService verifies user access tokens minted by the account provider and
// issues the signed anonymous tokens that stand in for an account.
type AuthService interface {
	IssueAnonymous() (*AnonymousToken, error)
	VerifyAnonymous(token string) (string, error)
	IssueAccessToken(userID uuid.UUID) (string, time.Time, error)
	VerifyAccessToken(token string) (uuid.UUID, error)
	// Identify resolves request credentials. A bad access token is an error;
	// a bad anonymous token only matters when it is the sole credential.
	Identify(accessToken string, anonymousToken string) (ctxutil.Identity, error)
	GetAccessTTL() time.Duration
}

type authService struct {
	log          *logger.Logger
	jwtSecretKey []byte
	accessTTL    time.Duration
	anonTTL      time.Duration
	now          func() time.Time
}

func NewAuthService(log *logger.Logger, jwtSecretKey string, accessTTL time.Duration, anonTTL time.Duration) AuthService {
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	if anonTTL <= 0 {
		anonTTL = 30 * 24 * time.Hour
	}
	return &authService{
		log:          log.With("service", "AuthService"),
		jwtSecretKey: []byte(jwtSecretKey),
		accessTTL:    accessTTL,
		anonTTL:      anonTTL,
		now:          time.Now,
	}
}

func (as *authService) sign(kind string, subject string, ttl time.Duration) (string, time.Time, error) {
	if len(as.jwtSecretKey) == 0 {
		return "", time.Time{}, fmt.Errorf("jwt secret not configured")
	}
	now := as.now()
	exp := now.Add(ttl)
	claims := JWTClaims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(as.jwtSecretKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (as *authService) parse(tokenString string, kind string) (*JWTClaims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, fmt.Errorf("empty token: %w", pkgerrors.ErrUnauthorized)
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return as.jwtSecretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(as.now),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %v: %w", err, pkgerrors.ErrUnauthorized)
	}
	claims, ok := parsed.Claims.(*JWTClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid or expired token: %w", pkgerrors.ErrUnauthorized)
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("token kind %q, want %q: %w", claims.Kind, kind, pkgerrors.ErrUnauthorized)
	}
	return claims, nil
}

func (as *authService) IssueAnonymous() (*AnonymousToken, error) {
	id := uuid.NewString()
	token, exp, err := as.sign(tokenKindAnon, anonymousSubject+id, as.anonTTL)
	if err != nil {
		return nil, err
	}
	as.log.Debug("Issued anonymous token", "anonymous_id", id)
	return &AnonymousToken{Token: token, AnonymousID: id, ExpiresAt: exp}, nil
}

func (as *authService) VerifyAnonymous(token string) (string, error) {
	claims, err := as.parse(token, tokenKindAnon)
	if err != nil {
		return "", err
	}
	id := strings.TrimPrefix(claims.Subject, anonymousSubject)
	if id == claims.Subject || id == "" {
		return "", fmt.Errorf("anonymous token subject %q: %w", claims.Subject, pkgerrors.ErrUnauthorized)
	}
	return id, nil
}

func (as *authService) IssueAccessToken(userID uuid.UUID) (string, time.Time, error) {
	if userID == uuid.Nil {
		return "", time.Time{}, fmt.Errorf("missing user id: %w", pkgerrors.ErrInvalidArgument)
	}
	return as.sign(tokenKindAccess, userID.String(), as.accessTTL)
}

func (as *authService) VerifyAccessToken(token string) (uuid.UUID, error) {
	claims, err := as.parse(token, tokenKindAccess)
	if err != nil {
		return uuid.Nil, err
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil || userID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("invalid user id in token: %w", pkgerrors.ErrUnauthorized)
	}
	return userID, nil
}

func (as *authService) Identify(accessToken string, anonymousToken string) (ctxutil.Identity, error) {
	who := ctxutil.Identity{}
	if strings.TrimSpace(accessToken) != "" {
		userID, err := as.VerifyAccessToken(accessToken)
		if err != nil {
			return ctxutil.Identity{}, err
		}
		who.UserID = userID
	}
	if strings.TrimSpace(anonymousToken) != "" {
		anonID, err := as.VerifyAnonymous(anonymousToken)
		switch {
		case err == nil:
			who.AnonymousID = anonID
		case !who.Authenticated():
			return ctxutil.Identity{}, err
		default:
			as.log.Debug("Ignoring invalid anonymous token for signed-in user", "error", err)
		}
	}
	return who, nil
}

func (as *authService) GetAccessTTL() time.Duration {
	return as.accessTTL
}
