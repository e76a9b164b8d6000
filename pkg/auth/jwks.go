package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// TokenValidator validates a JWT token string and returns its claims.
// The abstraction enables testing with mock implementations.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// JWKSConfig contains configuration for the JWKS client.
type JWKSConfig struct {
	// EnableVerification controls whether JWT signatures are verified.
	// Set to false for development mode (parses tokens without verification).
	EnableVerification bool
	// JWKSURL is the JWKS endpoint for the auth provider's public keys.
	JWKSURL string
}

// JWKSClient validates JWT tokens against a JWKS (JSON Web Key Set) endpoint.
type JWKSClient struct {
	jwks   keyfunc.Keyfunc
	config *JWKSConfig
}

var _ TokenValidator = (*JWKSClient)(nil)

// NewJWKSClient creates a new JWKS client with the given configuration.
// If EnableVerification is true, it fetches the JWKS eagerly so a broken
// endpoint fails at startup rather than on the first request.
func NewJWKSClient(config *JWKSConfig) (*JWKSClient, error) {
	client := &JWKSClient{config: config}

	if !config.EnableVerification {
		return client, nil
	}

	jwks, err := keyfunc.NewDefaultCtx(context.Background(), []string{config.JWKSURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS client for %s: %w", config.JWKSURL, err)
	}
	client.jwks = jwks

	return client, nil
}

// ValidateToken validates a JWT token and returns the claims.
// If verification is disabled, it parses the token without signature validation.
func (c *JWKSClient) ValidateToken(tokenString string) (*Claims, error) {
	if !c.config.EnableVerification {
		return c.parseUnverifiedToken(tokenString)
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, c.jwks.KeyfuncCtx(context.Background()))
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}

	return claims, nil
}

// parseUnverifiedToken parses a JWT without verifying the signature.
// Used in development mode when EnableVerification is false.
func (c *JWKSClient) parseUnverifiedToken(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, _, err := parser.ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}

	return claims, nil
}
