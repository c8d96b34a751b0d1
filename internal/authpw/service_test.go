package authpw

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"boardroom/api/internal/store"
)

type fakeMemberStore struct {
	members map[string]store.Member
	resets  map[string]resetEntry
}

type resetEntry struct {
	email     string
	expiresAt time.Time
	used      bool
}

func newFakeMemberStore() *fakeMemberStore {
	return &fakeMemberStore{
		members: make(map[string]store.Member),
		resets:  make(map[string]resetEntry),
	}
}

func (f *fakeMemberStore) GetMemberByEmail(ctx context.Context, email string) (store.Member, error) {
	member, ok := f.members[email]
	if !ok {
		return store.Member{}, errors.New("no rows")
	}
	return member, nil
}

func (f *fakeMemberStore) CreateMember(ctx context.Context, member store.Member) error {
	if _, ok := f.members[member.Email]; ok {
		return errors.New("duplicate email")
	}
	f.members[member.Email] = member
	return nil
}

func (f *fakeMemberStore) VerifyEmailToken(ctx context.Context, token string) (store.Member, error) {
	for email, member := range f.members {
		if member.VerificationToken == token && member.VerificationExpiresAt != nil && member.VerificationExpiresAt.After(time.Now()) {
			member.IsEmailVerified = true
			member.VerificationToken = ""
			f.members[email] = member
			return member, nil
		}
	}
	return store.Member{}, errors.New("no rows")
}

func (f *fakeMemberStore) SavePasswordReset(ctx context.Context, email, tokenHash string, expiresAt time.Time) error {
	f.resets[tokenHash] = resetEntry{email: email, expiresAt: expiresAt}
	return nil
}

func (f *fakeMemberStore) ConsumePasswordReset(ctx context.Context, tokenHash string) (string, error) {
	entry, ok := f.resets[tokenHash]
	if !ok || entry.used || entry.expiresAt.Before(time.Now()) {
		return "", errors.New("no rows")
	}
	entry.used = true
	f.resets[tokenHash] = entry
	return entry.email, nil
}

func (f *fakeMemberStore) UpdateMemberPassword(ctx context.Context, email, passwordHash string) (bool, error) {
	member, ok := f.members[email]
	if !ok {
		return false, nil
	}
	member.PasswordHash = passwordHash
	f.members[email] = member
	return true, nil
}

func TestSignUpAndVerify(t *testing.T) {
	fake := newFakeMemberStore()
	svc := NewService(fake)
	ctx := context.Background()

	resp, err := svc.SignUp(ctx, SignUpRequest{
		Email:       "alice@board.test",
		Password:    "correct horse",
		DisplayName: "Alice",
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if !resp.RequiresEmailVerify {
		t.Error("expected new account to require email verification")
	}
	if resp.VerificationToken == "" {
		t.Fatal("expected a verification token")
	}

	created := fake.members["alice@board.test"]
	if created.Role != "member" {
		t.Errorf("expected default role member, got %q", created.Role)
	}
	if created.PasswordHash == "correct horse" {
		t.Error("password stored in plaintext")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("correct horse")); err != nil {
		t.Errorf("stored hash does not match password: %v", err)
	}

	member, err := svc.VerifyEmail(ctx, resp.VerificationToken)
	if err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	if !member.IsEmailVerified {
		t.Error("expected member verified after VerifyEmail")
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	fake := newFakeMemberStore()
	svc := NewService(fake)
	ctx := context.Background()

	req := SignUpRequest{Email: "alice@board.test", Password: "correct horse", DisplayName: "Alice"}
	if _, err := svc.SignUp(ctx, req); err != nil {
		t.Fatalf("first SignUp failed: %v", err)
	}
	if _, err := svc.SignUp(ctx, req); err == nil {
		t.Error("expected duplicate email to be rejected")
	}
}

func TestSignUpShortPassword(t *testing.T) {
	svc := NewService(newFakeMemberStore())
	_, err := svc.SignUp(context.Background(), SignUpRequest{
		Email:       "alice@board.test",
		Password:    "short",
		DisplayName: "Alice",
	})
	if err == nil {
		t.Error("expected short password to be rejected")
	}
}

func TestSignIn(t *testing.T) {
	fake := newFakeMemberStore()
	svc := NewService(fake)
	ctx := context.Background()

	resp, err := svc.SignUp(ctx, SignUpRequest{Email: "alice@board.test", Password: "correct horse", DisplayName: "Alice"})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	// Unverified accounts sign in but are flagged.
	signIn, err := svc.SignIn(ctx, SignInRequest{Email: "alice@board.test", Password: "correct horse"})
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if !signIn.RequiresVerify {
		t.Error("expected unverified account to require verification")
	}

	if _, err := svc.VerifyEmail(ctx, resp.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	signIn, err = svc.SignIn(ctx, SignInRequest{Email: "alice@board.test", Password: "correct horse"})
	if err != nil {
		t.Fatalf("SignIn after verify failed: %v", err)
	}
	if signIn.RequiresVerify {
		t.Error("expected verified account to sign in cleanly")
	}

	if _, err := svc.SignIn(ctx, SignInRequest{Email: "alice@board.test", Password: "wrong password"}); err == nil {
		t.Error("expected wrong password to be rejected")
	}
	if _, err := svc.SignIn(ctx, SignInRequest{Email: "nobody@board.test", Password: "correct horse"}); err == nil {
		t.Error("expected unknown email to be rejected")
	}
}

func TestPasswordResetFlow(t *testing.T) {
	fake := newFakeMemberStore()
	svc := NewService(fake)
	ctx := context.Background()

	resp, err := svc.SignUp(ctx, SignUpRequest{Email: "alice@board.test", Password: "correct horse", DisplayName: "Alice"})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if _, err := svc.VerifyEmail(ctx, resp.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	token, err := svc.RequestPasswordReset(ctx, "alice@board.test")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected a reset token for a known email")
	}

	if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "battery staple"}); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	if _, err := svc.SignIn(ctx, SignInRequest{Email: "alice@board.test", Password: "battery staple"}); err != nil {
		t.Errorf("SignIn with new password failed: %v", err)
	}
	if _, err := svc.SignIn(ctx, SignInRequest{Email: "alice@board.test", Password: "correct horse"}); err == nil {
		t.Error("expected old password to stop working")
	}

	// A consumed token cannot be replayed.
	if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "third password"}); err == nil {
		t.Error("expected reused reset token to be rejected")
	}
}

func TestPasswordResetUnknownEmail(t *testing.T) {
	svc := NewService(newFakeMemberStore())
	token, err := svc.RequestPasswordReset(context.Background(), "nobody@board.test")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if token != "" {
		t.Error("expected empty token for unknown email")
	}
}
