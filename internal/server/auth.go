package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"

	"github.com/gravitas-games/economy/internal/config"
	"github.com/gravitas-games/economy/pkg/models"
)

var (
	ErrMissingSecret = errors.New("auth secret is not configured")
	ErrRevoked       = errors.New("token is revoked")
)

// Claims represents the session token claims
type Claims struct {
	PlayerID string `json:"player_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenValidator issues and validates HS256 session tokens. Revoked players
// are listed in redis under the configured prefix.
type TokenValidator struct {
	cfg    config.AuthConfig
	secret []byte
	redis  *redis.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewTokenValidator creates a validator. rdb may be nil, in which case no
// revocation list is consulted.
func NewTokenValidator(cfg config.AuthConfig, rdb *redis.Client, logger *slog.Logger) (*TokenValidator, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenValidator{
		cfg:    cfg,
		secret: []byte(cfg.Secret),
		redis:  rdb,
		logger: logger,
		now:    time.Now,
	}, nil
}

// IssueToken signs a token for a player.
func (v *TokenValidator) IssueToken(playerID, username string) (string, error) {
	now := v.now()
	claims := Claims{
		PlayerID: playerID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.cfg.Issuer,
			Subject:   playerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.cfg.TokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken validates a token and returns the player it names
func (v *TokenValidator) ValidateToken(ctx context.Context, tokenString string) (*models.Player, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.PlayerID == "" {
		return nil, fmt.Errorf("token has no player id")
	}

	if v.redis != nil {
		n, err := v.redis.Exists(ctx, v.revocationKey(claims.PlayerID)).Result()
		if err != nil {
			// Don't fail authentication if redis is down
			v.logger.Warn("failed to check revocation list", "error", err)
		} else if n > 0 {
			return nil, ErrRevoked
		}
	}

	return &models.Player{
		ID:       claims.PlayerID,
		Username: claims.Username,
	}, nil
}

// Revoke blocks a player's tokens for ttl.
func (v *TokenValidator) Revoke(ctx context.Context, playerID string, ttl time.Duration) error {
	if v.redis == nil {
		return fmt.Errorf("no revocation store configured")
	}
	return v.redis.Set(ctx, v.revocationKey(playerID), "1", ttl).Err()
}

func (v *TokenValidator) revocationKey(playerID string) string {
	return v.cfg.RevocationPrefix + playerID
}

// extractTokenFromHeader extracts the token from a websocket upgrade request
func extractTokenFromHeader(r *http.Request) string {
	// Sec-WebSocket-Protocol: "access_token, <token>"
	if protocols := r.Header.Get("Sec-WebSocket-Protocol"); protocols != "" {
		parts := splitAndTrim(protocols, ",")
		if len(parts) == 2 && parts[0] == "access_token" {
			return parts[1]
		}
	}

	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}

	// Query parameter (less secure, but supported)
	return r.URL.Query().Get("token")
}

func splitAndTrim(s, sep string) []string {
	var result []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
