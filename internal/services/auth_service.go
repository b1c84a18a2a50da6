package services

import (
	"context"
	cryptorand "crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goodcoins/backend/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"
)

type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *ValidationHelper
	now       func() time.Time
}

// LoginRequest represents the parent login request payload
// @Description Parent login request structure
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"parent@example.com"` // Parent email address
	Password string `json:"password" validate:"required,min=8" example:"password123"`    // Parent password
}

// ChildLoginRequest represents the child login request payload
// @Description Child login request structure
type ChildLoginRequest struct {
	Nickname string `json:"nickname" validate:"required,min=3,max=30" example:"sammy"` // Child nickname
	PIN      string `json:"pin" validate:"required,numeric,min=4,max=8" example:"1234"` // Child PIN
}

// RegisterRequest represents the parent registration request payload
// @Description Registration request structure
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email" example:"parent@example.com"` // Parent email address
	Password    string `json:"password" validate:"required,min=8" example:"password123"`    // Parent password
	DisplayName string `json:"displayName" validate:"required,min=2,max=60" example:"Jane"` // Name shown to children
}

// AuthUser is the identity behind a token
// @Description Authenticated user structure
type AuthUser struct {
	ID          string      `json:"id"`
	Role        models.Role `json:"role" example:"parent"`
	DisplayName string      `json:"displayName" example:"Jane"`
	Email       string      `json:"email,omitempty" example:"parent@example.com"`
	Nickname    string      `json:"nickname,omitempty" example:"sammy"`
}

// AuthResponse represents the authentication response
// @Description Authentication response structure
type AuthResponse struct {
	Token     string    `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."` // JWT token
	ExpiresAt time.Time `json:"expiresAt"`
	User      AuthUser  `json:"user"`
}

func NewAuthService(db *sql.DB, redisClient *redis.Client) *AuthService {
	return &AuthService{
		db:        db,
		redis:     redisClient,
		validator: NewValidationHelper(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a parent account and signs it in.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if err := s.validator.ValidateStruct(&req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	log.Printf("[AUTH] Registration request for email: %s", req.Email)

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed for %s: %v", req.Email, err)
		return nil, err
	}

	user := AuthUser{ID: uuid.NewString(), Role: models.RoleParent, DisplayName: req.DisplayName, Email: req.Email}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO parents (id, email, password_hash, display_name, created_at) VALUES ($1, $2, $3, $4, $5)",
		user.ID, user.Email, hashedPassword, user.DisplayName, s.now())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("email %s already registered: %w", req.Email, ErrConflict)
		}
		log.Printf("[AUTH] Parent creation failed for %s: %v", req.Email, err)
		return nil, err
	}

	log.Printf("[AUTH] Parent created successfully - ID: %s", user.ID)
	return s.issue(user)
}

// Login authenticates a parent by email and password.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validator.ValidateStruct(&req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	user := AuthUser{Role: models.RoleParent}
	var hashedPassword string
	err := s.db.QueryRowContext(ctx, "SELECT id, email, display_name, password_hash FROM parents WHERE email = $1", req.Email).
		Scan(&user.ID, &user.Email, &user.DisplayName, &hashedPassword)
	if errors.Is(err, sql.ErrNoRows) {
		log.Printf("[AUTH] Parent not found for email: %s", req.Email)
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}

	if !verifyPassword(req.Password, hashedPassword) {
		log.Printf("[AUTH] Invalid password for parent: %s", user.ID)
		return nil, ErrUnauthorized
	}

	log.Printf("[AUTH] Login successful for parent %s", user.ID)
	return s.issue(user)
}

// ChildLogin authenticates an active child by nickname and PIN.
func (s *AuthService) ChildLogin(ctx context.Context, req ChildLoginRequest) (*AuthResponse, error) {
	req.Nickname = strings.ToLower(strings.TrimSpace(req.Nickname))
	if err := s.validator.ValidateStruct(&req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	user := AuthUser{Role: models.RoleChild}
	var pinHash string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, nickname, display_name, pin_hash FROM children WHERE nickname = $1 AND active = TRUE", req.Nickname).
		Scan(&user.ID, &user.Nickname, &user.DisplayName, &pinHash)
	if errors.Is(err, sql.ErrNoRows) {
		log.Printf("[AUTH] Child not found for nickname: %s", req.Nickname)
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}

	if !verifyPassword(req.PIN, pinHash) {
		log.Printf("[AUTH] Invalid PIN for child: %s", user.ID)
		return nil, ErrUnauthorized
	}

	log.Printf("[AUTH] Login successful for child %s", user.ID)
	return s.issue(user)
}

// Logout blacklists the token until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" || s.redis == nil {
		return nil
	}
	key := fmt.Sprintf("blacklist:%s", token)
	if err := s.redis.Set(ctx, key, "1", tokenExpiry()).Err(); err != nil {
		log.Printf("[AUTH] Failed to blacklist token: %v", err)
		return err
	}
	return nil
}

// Me returns the profile of the authenticated actor.
func (s *AuthService) Me(ctx context.Context, actor models.Actor) (*AuthUser, error) {
	user := AuthUser{ID: actor.ID, Role: actor.Role}

	var err error
	switch actor.Role {
	case models.RoleParent:
		err = s.db.QueryRowContext(ctx, "SELECT email, display_name FROM parents WHERE id = $1", actor.ID).
			Scan(&user.Email, &user.DisplayName)
	case models.RoleChild:
		err = s.db.QueryRowContext(ctx, "SELECT nickname, display_name FROM children WHERE id = $1", actor.ID).
			Scan(&user.Nickname, &user.DisplayName)
	default:
		return nil, ErrUnauthorized
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", actor.Role, actor.ID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *AuthService) issue(user AuthUser) (*AuthResponse, error) {
	expiresAt := s.now().Add(tokenExpiry())
	token, err := generateJWT(user.ID, user.Role, expiresAt)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for %s %s: %v", user.Role, user.ID, err)
		return nil, err
	}
	return &AuthResponse{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func tokenExpiry() time.Duration {
	hours := viper.GetInt("jwt.expiry_hours")
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

func generateJWT(userID string, role models.Role, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    string(role),
		"jti":     uuid.NewString(),
		"exp":     expiresAt.Unix(),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

type argon2Params struct {
	time, memory, keyLength uint32
	threads                 uint8
	saltLength              int
}

func loadArgon2Params() argon2Params {
	p := argon2Params{
		time:       uint32(viper.GetInt("argon2.time")),
		memory:     uint32(viper.GetInt("argon2.memory")),
		threads:    uint8(viper.GetInt("argon2.threads")),
		keyLength:  uint32(viper.GetInt("argon2.key_length")),
		saltLength: viper.GetInt("argon2.salt_length"),
	}
	if p.time == 0 {
		p.time = 1
	}
	if p.memory == 0 {
		p.memory = 64 * 1024
	}
	if p.threads == 0 {
		p.threads = 4
	}
	if p.keyLength == 0 {
		p.keyLength = 32
	}
	if p.saltLength <= 0 {
		p.saltLength = 16
	}
	return p
}

func hashPassword(password string) (string, error) {
	p := loadArgon2Params()
	salt := make([]byte, p.saltLength)
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, p.keyLength)
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	p := loadArgon2Params()
	computedHash := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, uint32(len(hash)))
	return subtle.ConstantTimeCompare(hash, computedHash) == 1
}
