package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mizan/backend/internal/models"
	"github.com/spf13/viper"
)

type contextKey string

// UserIDKey carries the authenticated user id on the request context.
const UserIDKey contextKey = "userID"

func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Get token from Authorization header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		// Extract token
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		userID, err := validateToken(parts[1])
		if err != nil || userID == "" {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdentityFrom builds the explicit caller identity handed to services.
func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	if !ok || userID == "" {
		return models.Identity{}, false
	}
	return models.Identity{UserID: userID}, true
}

// WithIdentity is the inverse of IdentityFrom, used by tests and internal callers.
func WithIdentity(ctx context.Context, who models.Identity) context.Context {
	return context.WithValue(ctx, UserIDKey, who.UserID)
}

func validateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(viper.GetString("jwt.secret_key")), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("token is not valid")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("unexpected claims type")
	}

	userID, ok := claims["user_id"]
	if !ok {
		return "", errors.New("token has no user_id claim")
	}
	return fmt.Sprintf("%v", userID), nil
}
