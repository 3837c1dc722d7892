package docserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/beariot/beariot/internal/config"
)

// collectionUser holds proxy login accounts.
const collectionUser = "User"

// defaultAdminPassword is the bootstrap credential; deployments are
// expected to change it after first login.
const (
	defaultAdminUser     = "admin"
	defaultAdminPassword = "Default@1234"
)

// Auth issues and validates the proxy's JWT tokens.
type Auth struct {
	storage Storage
	cfg     config.AuthConfig
	logger  *zap.Logger
}

// NewAuth creates the auth service.
func NewAuth(storage Storage, cfg config.AuthConfig, logger *zap.Logger) *Auth {
	return &Auth{storage: storage, cfg: cfg, logger: logger}
}

// Bootstrap creates the default admin account when the User collection is
// empty, so a fresh deployment is immediately usable.
func (a *Auth) Bootstrap(ctx context.Context) error {
	users, err := a.storage.Read(ctx, collectionUser, map[string]interface{}{})
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(defaultAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = a.storage.Create(ctx, collectionUser, map[string]interface{}{
		"username": defaultAdminUser,
		"password": string(hash),
		"role":     "admin",
	})
	if err != nil {
		return err
	}

	a.logger.Info("Bootstrapped default admin account", zap.String("username", defaultAdminUser))
	return nil
}

// Login verifies the credentials and returns a signed token.
func (a *Auth) Login(ctx context.Context, username, password string) (string, error) {
	users, err := a.storage.Read(ctx, collectionUser, map[string]interface{}{"username": username})
	if err != nil {
		return "", err
	}
	if len(users) == 0 {
		return "", jwt.ErrTokenUnverifiable
	}

	hash, _ := users[0]["password"].(string)
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return "", jwt.ErrTokenUnverifiable
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": username,
		"iat": now.Unix(),
		"exp": now.Add(a.cfg.TokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.cfg.JWTSecret))
}

// ValidateToken parses and checks a token, returning the subject.
func (a *Auth) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(a.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return "", jwt.ErrTokenUnverifiable
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", jwt.ErrTokenInvalidClaims
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return "", jwt.ErrTokenInvalidClaims
	}
	return sub, nil
}

// Middleware validates the authorization header. Both a bare token and the
// Bearer form are accepted, matching what dashboard clients send.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			respondError(w, http.StatusUnauthorized, "Missing authorization header")
			return
		}

		tokenString := authHeader
		if parts := strings.Split(authHeader, " "); len(parts) == 2 && parts[0] == "Bearer" {
			tokenString = parts[1]
		}

		username, err := a.ValidateToken(tokenString)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey{}, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type userContextKey struct{}

// UserFromContext returns the authenticated username, if any.
func UserFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(userContextKey{}).(string)
	return username, ok
}
