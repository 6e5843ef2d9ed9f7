package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
)

var validate = validator.New()

// Credentials are the login form.
type Credentials struct {
	ID       string `json:"id" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Token is the login response.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// SignupRequest is the account creation form.
type SignupRequest struct {
	ID            string  `json:"id" validate:"required,alphanum"`
	Email         string  `json:"email" validate:"required,email"`
	Password      string  `json:"password" validate:"required,min=6"`
	Name          string  `json:"name" validate:"required"`
	BirthDate     string  `json:"birth_date" validate:"required,datetime=2006-01-02"`
	PhoneNumber   *string `json:"phone_number"`
	Gender        *string `json:"gender" validate:"omitempty,oneof=male female"`
	PrivacyAgreed bool    `json:"privacy_agreed" validate:"required"`
}

// Login authenticates and installs the returned bearer token.
func (c *Client) Login(ctx context.Context, creds Credentials) (Token, error) {
	if err := validate.Struct(creds); err != nil {
		return Token{}, fmt.Errorf("invalid credentials: %w", err)
	}

	var tok Token
	if err := c.postJSON(ctx, "/api/v1/auth/login", creds, &tok); err != nil {
		return Token{}, fmt.Errorf("login: %w", err)
	}
	if tok.AccessToken == "" {
		return Token{}, errors.New("login: empty access token")
	}
	c.SetToken(tok.AccessToken)
	c.log.Info().Str("user", creds.ID).Msg("logged in")
	return tok, nil
}

// Signup creates an account. The backend does not log the user in.
func (c *Client) Signup(ctx context.Context, req SignupRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("invalid signup: %w", err)
	}
	if err := c.postJSON(ctx, "/api/v1/auth/signup", req, nil); err != nil {
		return fmt.Errorf("signup: %w", err)
	}
	return nil
}

// CheckSession asks the backend whether the current session is valid.
func (c *Client) CheckSession(ctx context.Context) error {
	if err := c.getJSON(ctx, c.sessionPath, nil); err != nil {
		return fmt.Errorf("session check: %w", err)
	}
	return nil
}

// TokenExpiry reads the exp claim of a JWT without verifying its signature.
// The signing key lives on the backend; the client only needs to know when to
// log in again.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("read exp: %w", err)
	}
	if exp == nil {
		return time.Time{}, errors.New("token has no exp claim")
	}
	return exp.Time, nil
}

// TokenValid reports whether the installed token exists and does not expire
// within leeway of now.
func (c *Client) TokenValid(now time.Time, leeway time.Duration) bool {
	token := c.Token()
	if token == "" {
		return false
	}
	exp, err := TokenExpiry(token)
	if err != nil {
		return false
	}
	return now.Add(leeway).Before(exp)
}
