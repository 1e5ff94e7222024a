package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Gopher0727/MindBridge/internal/model"
	"github.com/Gopher0727/MindBridge/internal/repository"
	"github.com/Gopher0727/MindBridge/middleware/jwt"
)

var (
	ErrUserAlreadyExists  = errors.New("username or email already registered")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUserNotFound       = errors.New("user not found")
)

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=20"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required,min=8,max=64"`
}

// LoginRequest accepts either a username or an email in Login
type LoginRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents the response after successful login
type LoginResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// UpdateProfileRequest replaces the editable profile fields
type UpdateProfileRequest struct {
	DisplayName string   `json:"display_name"`
	Bio         string   `json:"bio"`
	AvatarURL   string   `json:"avatar_url"`
	Interests   []string `json:"interests"`
}

// IAuthService defines the interface for authentication operations
type IAuthService interface {
	Register(ctx context.Context, req *RegisterRequest) (*model.User, error)
	Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error)
	ValidateToken(ctx context.Context, token string) (*model.User, error)
	Profile(ctx context.Context, userID string) (*model.User, error)
	UpdateProfile(ctx context.Context, userID string, req *UpdateProfileRequest) (*model.User, error)
}

// AuthService implements the IAuthService interface
type AuthService struct {
	userRepo     repository.IUserRepository
	tokenManager *jwt.TokenManager
	bcryptCost   int
}

// NewAuthService creates a new IAuthService instance
func NewAuthService(userRepo repository.IUserRepository, tokenManager *jwt.TokenManager) IAuthService {
	return &AuthService{
		userRepo:     userRepo,
		tokenManager: tokenManager,
		bcryptCost:   bcrypt.DefaultCost,
	}
}

// Register validates the input, hashes the password and stores the user
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*model.User, error) {
	username := strings.TrimSpace(req.Username)
	if err := model.ValidateUsername(username); err != nil {
		return nil, err
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if n := len(req.Password); n < 8 || n > 64 {
		return nil, fmt.Errorf("%w: password must be 8-64 characters", model.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  username,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserAlreadyExists
		}
		return nil, storeError("create user", err)
	}
	return user, nil
}

// Login authenticates by username or email and returns a JWT token
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	login := strings.TrimSpace(req.Login)
	var (
		user *model.User
		err  error
	)
	if strings.Contains(login, "@") {
		user, err = s.userRepo.FindByEmail(ctx, strings.ToLower(login))
	} else {
		user, err = s.userRepo.FindByUsername(ctx, login)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, storeError("find user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokenManager.GenerateToken(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return &LoginResponse{Token: token, User: user}, nil
}

// ValidateToken parses the token and loads the user it names
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.tokenManager.ParseToken(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, storeError("find user", err)
	}
	return user, nil
}

func (s *AuthService) Profile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, lookupError("find user", err, ErrUserNotFound)
	}
	return user, nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID string, req *UpdateProfileRequest) (*model.User, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	displayName := strings.TrimSpace(req.DisplayName)
	bio := strings.TrimSpace(req.Bio)
	interests, err := model.NormalizeTags(req.Interests)
	if err != nil {
		return nil, err
	}
	if err := model.ValidateProfile(displayName, bio, interests); err != nil {
		return nil, err
	}
	user, err := s.userRepo.UpdateProfile(ctx, userID, displayName, bio, strings.TrimSpace(req.AvatarURL), interests)
	if err != nil {
		return nil, lookupError("update profile", err, ErrUserNotFound)
	}
	return user, nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Name != "" {
		return "", fmt.Errorf("%w: email is not a valid address", model.ErrInvalidInput)
	}
	return strings.ToLower(addr.Address), nil
}
