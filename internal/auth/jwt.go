package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// MediaAudience scopes tokens to the media download endpoint.
	MediaAudience = "media"

	claimBucket      = "bkt"
	claimObjectKey   = "key"
	claimContentType = "ctype"
)

var ErrInvalidToken = errors.New("invalid media token")

// MediaClaims identify one stored object. A token grants read access to that
// object until ExpiresAt.
type MediaClaims struct {
	Bucket      string `json:"bkt"`
	ObjectKey   string `json:"key"`
	ContentType string `json:"ctype,omitempty"`
	jwt.RegisteredClaims
}

// MediaToken is the object a caller wants a download token for.
type MediaToken struct {
	Bucket      string
	ObjectKey   string
	ContentType string
}

// GenerateMediaToken creates a signed HS256 token for reading one object.
func GenerateMediaToken(info MediaToken, secret string, expiresIn time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(info.Bucket) == "" {
		return "", time.Time{}, fmt.Errorf("bucket is required")
	}
	if strings.TrimSpace(info.ObjectKey) == "" {
		return "", time.Time{}, fmt.Errorf("object key is required")
	}
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, fmt.Errorf("jwt secret is required")
	}
	if expiresIn <= 0 {
		return "", time.Time{}, fmt.Errorf("jwt expires in must be positive")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(expiresIn)
	claims := MediaClaims{
		Bucket:      info.Bucket,
		ObjectKey:   info.ObjectKey,
		ContentType: info.ContentType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Audience:  jwt.ClaimStrings{MediaAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseMediaToken validates signature, audience and expiry and returns the
// object the token grants.
func ParseMediaToken(tokenStr, secret string) (MediaToken, error) {
	if strings.TrimSpace(secret) == "" {
		return MediaToken{}, fmt.Errorf("jwt secret is required")
	}
	claims := &MediaClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(MediaAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return MediaToken{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Bucket == "" || claims.ObjectKey == "" {
		return MediaToken{}, ErrInvalidToken
	}
	return MediaToken{
		Bucket:      claims.Bucket,
		ObjectKey:   claims.ObjectKey,
		ContentType: claims.ContentType,
	}, nil
}
