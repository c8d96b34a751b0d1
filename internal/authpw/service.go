// Package authpw provides email/password authentication with verification.
package authpw

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"boardroom/api/internal/auth"
	"boardroom/api/internal/store"
	"boardroom/api/internal/util"
)

// MemberStore defines the storage interface for auth
type MemberStore interface {
	GetMemberByEmail(ctx context.Context, email string) (store.Member, error)
	CreateMember(ctx context.Context, member store.Member) error
	VerifyEmailToken(ctx context.Context, token string) (store.Member, error)
	SavePasswordReset(ctx context.Context, email, tokenHash string, expiresAt time.Time) error
	ConsumePasswordReset(ctx context.Context, tokenHash string) (string, error)
	UpdateMemberPassword(ctx context.Context, email, passwordHash string) (bool, error)
}

// Service provides email/password authentication
type Service struct {
	store MemberStore
}

// NewService creates a new auth service
func NewService(store MemberStore) *Service {
	return &Service{store: store}
}

// SignUpRequest contains sign-up parameters
type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
}

// SignUpResponse contains sign-up result
type SignUpResponse struct {
	MemberID            string
	VerificationToken   string
	RequiresEmailVerify bool
}

// SignUp creates a new member account in the pending-verification state.
// The verification token is returned to the caller for delivery.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResponse, error) {
	if req.Email == "" || req.Password == "" || req.DisplayName == "" {
		return nil, errors.New("email, password, and display name are required")
	}
	if len(req.Password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}

	if _, err := s.store.GetMemberByEmail(ctx, req.Email); err == nil {
		return nil, errors.New("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	verificationToken, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate verification token: %w", err)
	}

	expiresAt := time.Now().Add(24 * time.Hour)
	member := store.Member{
		ID:                    util.NewID("mem"),
		Email:                 req.Email,
		DisplayName:           req.DisplayName,
		Role:                  "member",
		PasswordHash:          string(hash),
		IsEmailVerified:       false,
		VerificationToken:     verificationToken,
		VerificationExpiresAt: &expiresAt,
	}
	if err := s.store.CreateMember(ctx, member); err != nil {
		return nil, fmt.Errorf("create member: %w", err)
	}

	return &SignUpResponse{
		MemberID:            member.ID,
		VerificationToken:   verificationToken,
		RequiresEmailVerify: true,
	}, nil
}

// SignInRequest contains sign-in parameters
type SignInRequest struct {
	Email    string
	Password string
}

// SignInResponse contains sign-in result
type SignInResponse struct {
	Member         store.Member
	RequiresVerify bool
}

// SignIn authenticates a member by email and password
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (*SignInResponse, error) {
	if req.Email == "" || req.Password == "" {
		return nil, errors.New("email and password are required")
	}

	member, err := s.store.GetMemberByEmail(ctx, req.Email)
	if err != nil {
		return nil, errors.New("invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(member.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errors.New("invalid email or password")
	}

	if !member.IsEmailVerified {
		return &SignInResponse{Member: member, RequiresVerify: true}, nil
	}

	return &SignInResponse{Member: member}, nil
}

// VerifyEmail verifies an email address using a token
func (s *Service) VerifyEmail(ctx context.Context, token string) (store.Member, error) {
	if token == "" {
		return store.Member{}, errors.New("verification token required")
	}

	member, err := s.store.VerifyEmailToken(ctx, token)
	if err != nil {
		return store.Member{}, errors.New("invalid or expired verification token")
	}
	return member, nil
}

// RequestPasswordReset creates a password reset token. An unknown email
// returns an empty token without error so callers cannot probe the roster.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	member, err := s.store.GetMemberByEmail(ctx, email)
	if err != nil {
		return "", nil
	}

	token, err := generateToken()
	if err != nil {
		return "", err
	}

	expiresAt := time.Now().Add(1 * time.Hour)
	if err := s.store.SavePasswordReset(ctx, member.Email, auth.HashToken(token), expiresAt); err != nil {
		return "", err
	}

	return token, nil
}

// ResetPasswordRequest contains password reset parameters
type ResetPasswordRequest struct {
	Token       string
	NewPassword string
}

// ResetPassword resets a member's password using a reset token
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if req.Token == "" || req.NewPassword == "" {
		return errors.New("token and new password are required")
	}
	if len(req.NewPassword) < 8 {
		return errors.New("password must be at least 8 characters")
	}

	email, err := s.store.ConsumePasswordReset(ctx, auth.HashToken(req.Token))
	if err != nil {
		return errors.New("invalid or expired reset token")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if updated, err := s.store.UpdateMemberPassword(ctx, email, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	} else if !updated {
		return errors.New("invalid or expired reset token")
	}

	return nil
}

// generateToken creates a secure random token
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
