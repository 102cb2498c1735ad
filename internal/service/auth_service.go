package service

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/unichat/unichat-backend/internal/live"
	"github.com/unichat/unichat-backend/internal/models"
	"github.com/unichat/unichat-backend/internal/store"
	"github.com/unichat/unichat-backend/internal/validation"
)

var (
	ErrEmailExists        = errors.New("email already exists")
	ErrUsernameExists     = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWeakPassword       = errors.New("password too short")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrInvalidUsername    = errors.New("invalid username")
)

// authMessages maps auth failures to short human-readable strings.
// Unmapped errors fall back to a generic message.
var authMessages = map[error]string{
	ErrEmailExists:        "An account with this email already exists",
	ErrUsernameExists:     "This username is taken",
	ErrInvalidCredentials: "Wrong email or password",
	ErrWeakPassword:       "Password is too short",
	ErrInvalidEmail:       "Please enter a valid email address",
	ErrInvalidUsername:    "Usernames are 3-32 letters, digits or underscores",
}

// AuthErrorMessage renders an auth error for the user.
func AuthErrorMessage(err error) string {
	for sentinel, msg := range authMessages {
		if errors.Is(err, sentinel) {
			return msg
		}
	}
	return "Authentication failed, please try again"
}

// AuthService registers and signs in users against the document store.
// The user document is created on first sign-in and never deleted.
// Sign-in and sign-out drive the presence tracker.
type AuthService struct {
	st      *store.DB
	tracker *live.Tracker
}

func NewAuthService(st *store.DB, tracker *live.Tracker) *AuthService {
	return &AuthService{st: st, tracker: tracker}
}

type RegisterInput struct {
	Username    string          `json:"username"`
	Email       string          `json:"email"`
	Password    string          `json:"password"`
	DisplayName string          `json:"display_name"`
	Role        models.UserRole `json:"role"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string              `json:"token"`
	User  models.UserResponse `json:"user"`
}

func (s *AuthService) Register(input RegisterInput) (*AuthResponse, error) {
	input.Email = validation.NormalizeEmail(input.Email)
	input.Username = validation.NormalizeUsername(input.Username)
	if !validation.ValidateEmail(input.Email) {
		return nil, ErrInvalidEmail
	}
	if !validation.ValidateUsername(input.Username) {
		return nil, ErrInvalidUsername
	}
	if !validation.ValidatePassword(input.Password) {
		return nil, ErrWeakPassword
	}

	if _, err := s.findUserBy("email", input.Email); err == nil {
		return nil, ErrEmailExists
	}
	if _, err := s.findUserBy("username", input.Username); err == nil {
		return nil, ErrUsernameExists
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	role := input.Role
	if role != models.RoleStudent && role != models.RoleStaff {
		role = models.RoleStudent
	}
	display := input.DisplayName
	if display == "" {
		display = input.Username
	}

	user := models.User{
		ID:           ulid.Make().String(),
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: string(hashed),
		DisplayName:  display,
		Role:         role,
		CreatedAt:    store.Now(),
	}
	data, err := store.Encode(user)
	if err != nil {
		return nil, err
	}
	if err := s.st.Set("users", user.ID, data); err != nil {
		return nil, err
	}

	return s.finishSignIn(user)
}

func (s *AuthService) Login(input LoginInput) (*AuthResponse, error) {
	user, err := s.findUserBy("email", validation.NormalizeEmail(input.Email))
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.finishSignIn(user)
}

// GuestLogin is anonymous sign-in: it creates a throwaway guest user.
func (s *AuthService) GuestLogin() (*AuthResponse, error) {
	id := ulid.Make().String()
	user := models.User{
		ID:          id,
		Username:    fmt.Sprintf("guest-%s", id[len(id)-6:]),
		DisplayName: "Guest",
		Role:        models.RoleGuest,
		CreatedAt:   store.Now(),
	}
	data, err := store.Encode(user)
	if err != nil {
		return nil, err
	}
	if err := s.st.Set("users", user.ID, data); err != nil {
		return nil, err
	}
	return s.finishSignIn(user)
}

// Logout writes the offline flag synchronously before the session ends.
func (s *AuthService) Logout(userID string) error {
	if s.tracker == nil {
		return nil
	}
	return s.tracker.SignOut(userID)
}

func (s *AuthService) GetUser(id string) (models.User, error) {
	doc, err := s.st.Get("users", id)
	if err != nil {
		return models.User{}, err
	}
	var u models.User
	if err := doc.Decode(&u); err != nil {
		return models.User{}, err
	}
	u.ID = id
	return u, nil
}

// ResolveUser implements live.UserResolver for chat-list titles.
func (s *AuthService) ResolveUser(id string) (models.User, error) {
	return s.GetUser(id)
}

func (s *AuthService) finishSignIn(user models.User) (*AuthResponse, error) {
	if s.tracker != nil {
		if err := s.tracker.SignIn(user.ID); err != nil {
			return nil, err
		}
		user.IsOnline = true
	}
	token, err := s.generateToken(user)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Token: token, User: user.ToResponse()}, nil
}

func (s *AuthService) findUserBy(field, value string) (models.User, error) {
	docs, err := s.st.RunQuery(store.In("users").
		Where(field, store.OpEqual, value).
		WithLimit(1))
	if err != nil {
		return models.User{}, err
	}
	if len(docs) == 0 {
		return models.User{}, store.ErrNotFound
	}
	var u models.User
	if err := docs[0].Decode(&u); err != nil {
		return models.User{}, err
	}
	u.ID = docs[0].ID
	return u, nil
}

func (s *AuthService) generateToken(user models.User) (string, error) {
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"role":    string(user.Role),
		"exp":     time.Now().Add(7 * 24 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(os.Getenv("JWT_SECRET")))
}
