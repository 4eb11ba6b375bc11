package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"serenity-catalog/internal/domain"
	"serenity-catalog/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 10

	DefaultTokenExpiration = 60 * time.Minute
)

var (
	ErrInvalidCredentials = fmt.Errorf("invalid username or password: %w", domain.ErrUnauthorized)
	ErrInvalidToken       = fmt.Errorf("invalid token: %w", domain.ErrUnauthorized)
)

// SessionService signs callers in and issues the bearer tokens the auth middleware verifies
type SessionService interface {
	Login(ctx context.Context, username, password string) (token string, session *domain.Session, err error)
	EnsureAdmin(ctx context.Context, username, password string) (*domain.User, error)
	ValidateToken(tokenString string) (*Claims, error)
}

// Claims represents the JWT claims
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Session converts verified claims into the caller identity
func (c *Claims) Session() domain.Session {
	return domain.Session{UserID: c.UserID, Username: c.Username, Role: c.Role}
}

type sessionService struct {
	userRepo        repository.UserRepository
	jwtSecret       string
	tokenExpiration time.Duration
	logger          *zap.Logger
}

// NewSessionService creates a new instance of SessionService
func NewSessionService(
	userRepo repository.UserRepository,
	jwtSecret string,
	tokenExpiration time.Duration,
	logger *zap.Logger,
) SessionService {
	if tokenExpiration <= 0 {
		tokenExpiration = DefaultTokenExpiration
	}
	return &sessionService{
		userRepo:        userRepo,
		jwtSecret:       jwtSecret,
		tokenExpiration: tokenExpiration,
		logger:          logger,
	}
}

// Login authenticates a user and returns a signed access token
func (s *sessionService) Login(ctx context.Context, username, password string) (string, *domain.Session, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("failed to find user: %w", err)
	}

	if err := s.verifyPassword(user.PasswordHash, password); err != nil {
		s.logger.Debug("Password mismatch", zap.String("username", username))
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.generateAccessToken(user)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	session := &domain.Session{
		UserID:   user.ID.String(),
		Username: user.Username,
		Role:     user.Role,
	}

	s.logger.Info("User logged in",
		zap.String("user_id", session.UserID),
		zap.String("role", session.Role),
	)

	return token, session, nil
}

// EnsureAdmin creates the admin account when no user with username exists yet
func (s *sessionService) EnsureAdmin(ctx context.Context, username, password string) (*domain.User, error) {
	existing, err := s.userRepo.FindByUsername(ctx, username)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}

	if password == "" {
		return nil, fmt.Errorf("admin password is required to seed %q: %w", username, domain.ErrInvalidInput)
	}

	hashedPassword, err := s.hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: hashedPassword,
		Role:         domain.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserAlreadyExists) {
			// another instance seeded it first
			return s.userRepo.FindByUsername(ctx, username)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("Admin account created", zap.String("username", username))

	return user, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *sessionService) ValidateToken(tokenString string) (*Claims, error) {
	return ParseToken(tokenString, s.jwtSecret)
}

// ParseToken verifies an HS256 token signed with secret
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" || claims.Role == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// hashPassword hashes a password using bcrypt
func (s *sessionService) hashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

// verifyPassword verifies a password against a bcrypt hash
func (s *sessionService) verifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// generateAccessToken generates a JWT access token with user ID, username and role claims
func (s *sessionService) generateAccessToken(user *domain.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   user.ID.String(),
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenExpiration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}
