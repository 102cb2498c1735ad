package service

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/unichat/unichat-backend/internal/live"
	"github.com/unichat/unichat-backend/internal/models"
	"github.com/unichat/unichat-backend/internal/store"
	"github.com/unichat/unichat-backend/internal/testutil"
)

func newAuthService(t *testing.T) (*AuthService, *store.DB) {
	t.Helper()
	os.Setenv("JWT_SECRET", "test-secret-key-for-testing-only")
	t.Cleanup(func() { os.Unsetenv("JWT_SECRET") })
	db := testutil.OpenStore(t)
	return NewAuthService(db, live.NewTracker(db, nil)), db
}

func validRegister() RegisterInput {
	return RegisterInput{
		Username:    "alice",
		Email:       "alice@example.com",
		Password:    "longenoughpassword",
		DisplayName: "Alice",
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newAuthService(t)

	tests := []struct {
		name    string
		mutate  func(*RegisterInput)
		wantErr error
	}{
		{"Bad email", func(in *RegisterInput) { in.Email = "not-an-email" }, ErrInvalidEmail},
		{"Bad username", func(in *RegisterInput) { in.Username = "x" }, ErrInvalidUsername},
		{"Short password", func(in *RegisterInput) { in.Password = "short" }, ErrWeakPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validRegister()
			tt.mutate(&in)
			_, err := svc.Register(in)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Register() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegisterAndLogin(t *testing.T) {
	svc, db := newAuthService(t)

	resp, err := svc.Register(validRegister())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if resp.Token == "" {
		t.Error("no token issued on register")
	}
	if resp.User.Role != models.RoleStudent {
		t.Errorf("default role = %s, want student", resp.User.Role)
	}

	// Registration signs the user in.
	doc, err := db.Get("users", resp.User.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Data["is_online"] != true {
		t.Error("user not online after register")
	}

	login, err := svc.Login(LoginInput{Email: "Alice@Example.com", Password: "longenoughpassword"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.User.ID != resp.User.ID {
		t.Errorf("login user = %s, want %s", login.User.ID, resp.User.ID)
	}

	_, err = svc.Login(LoginInput{Email: "alice@example.com", Password: "wrongpassword"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password error = %v, want ErrInvalidCredentials", err)
	}
	_, err = svc.Login(LoginInput{Email: "nobody@example.com", Password: "longenoughpassword"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email error = %v, want ErrInvalidCredentials", err)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	svc, _ := newAuthService(t)
	if _, err := svc.Register(validRegister()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	dup := validRegister()
	dup.Username = "different"
	if _, err := svc.Register(dup); !errors.Is(err, ErrEmailExists) {
		t.Errorf("duplicate email error = %v, want ErrEmailExists", err)
	}

	dup = validRegister()
	dup.Email = "other@example.com"
	if _, err := svc.Register(dup); !errors.Is(err, ErrUsernameExists) {
		t.Errorf("duplicate username error = %v, want ErrUsernameExists", err)
	}
}

func TestRegisterNeverGrantsUnknownRoles(t *testing.T) {
	svc, _ := newAuthService(t)
	in := validRegister()
	in.Role = models.UserRole("admin")
	resp, err := svc.Register(in)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if resp.User.Role != models.RoleStudent {
		t.Errorf("role = %s, want student fallback", resp.User.Role)
	}
}

func TestGuestLogin(t *testing.T) {
	svc, db := newAuthService(t)
	resp, err := svc.GuestLogin()
	if err != nil {
		t.Fatalf("GuestLogin: %v", err)
	}
	if resp.User.Role != models.RoleGuest {
		t.Errorf("role = %s, want guest", resp.User.Role)
	}
	if !strings.HasPrefix(resp.User.Username, "guest-") {
		t.Errorf("username = %s, want guest- prefix", resp.User.Username)
	}
	if _, err := db.Get("users", resp.User.ID); err != nil {
		t.Errorf("guest user not persisted: %v", err)
	}
}

func TestTokenCarriesUserClaims(t *testing.T) {
	svc, _ := newAuthService(t)
	resp, err := svc.Register(validRegister())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	parsed, err := jwt.Parse(resp.Token, func(token *jwt.Token) (any, error) {
		return []byte(os.Getenv("JWT_SECRET")), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("token invalid: %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	if claims["user_id"] != resp.User.ID {
		t.Errorf("user_id claim = %v, want %s", claims["user_id"], resp.User.ID)
	}
	if claims["role"] != "student" {
		t.Errorf("role claim = %v, want student", claims["role"])
	}
}

func TestLogoutMarksOffline(t *testing.T) {
	svc, db := newAuthService(t)
	resp, err := svc.Register(validRegister())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := svc.Logout(resp.User.ID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	doc, err := db.Get("users", resp.User.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Data["is_online"] != false {
		t.Error("user still online after logout")
	}
}

func TestAuthErrorMessage(t *testing.T) {
	if msg := AuthErrorMessage(ErrInvalidCredentials); msg != "Wrong email or password" {
		t.Errorf("mapped message = %q", msg)
	}
	if msg := AuthErrorMessage(errors.New("boom")); msg != "Authentication failed, please try again" {
		t.Errorf("fallback message = %q", msg)
	}
}
