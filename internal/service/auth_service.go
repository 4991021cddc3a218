package service

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/formwatch/formwatch/internal/domain"
	"github.com/formwatch/formwatch/internal/security/auth"
)

const tokenLifetime = 15 * time.Minute

// AuthService handles client registration and login
type AuthService struct {
	clients domain.ClientRepository
	tokens  *auth.TokenManager
	logger  *slog.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(
	clients domain.ClientRepository,
	tokens *auth.TokenManager,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthService{
		clients: clients,
		tokens:  tokens,
		logger:  logger,
	}
}

// RegisterResult represents registration response
type RegisterResult struct {
	ClientID string `json:"client_id"`
	Email    string `json:"email"`
	Tier     string `json:"tier"`
	Token    string `json:"token"`
}

// LoginResult represents login response
type LoginResult struct {
	ClientID  string `json:"client_id"`
	Email     string `json:"email"`
	Tier      string `json:"tier"`
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"` // seconds
	TokenType string `json:"token_type"`
}

// Register creates a new API client account
func (s *AuthService) Register(email, password, tier string, jurisdictions []string) (*RegisterResult, error) {
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}
	if len(password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}
	switch tier {
	case "":
		tier = domain.TierFree
	case domain.TierFree, domain.TierPro, domain.TierEnterprise:
	default:
		return nil, domain.NewValidationError("tier", "unknown tier")
	}

	existing, err := s.clients.GetByEmail(email)
	if err == nil && existing != nil {
		return nil, errors.New("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("failed to hash password", slog.String("error", err.Error()))
		return nil, errors.New("failed to register client")
	}

	client := &domain.Client{
		ID:            uuid.New().String(),
		Email:         email,
		PasswordHash:  string(hash),
		Tier:          tier,
		Jurisdictions: normalizeJurisdictions(jurisdictions),
	}

	if err := s.clients.Create(client); err != nil {
		s.logger.Error("failed to create client", slog.String("error", err.Error()))
		return nil, errors.New("failed to register client")
	}

	token, err := s.tokens.GenerateToken(client.ID, client.Email, client.Tier, client.Jurisdictions, tokenLifetime)
	if err != nil {
		s.logger.Error("failed to sign token", slog.String("error", err.Error()))
		return nil, errors.New("failed to generate token")
	}

	return &RegisterResult{
		ClientID: client.ID,
		Email:    client.Email,
		Tier:     client.Tier,
		Token:    token,
	}, nil
}

// Login authenticates a client and returns a JWT token
func (s *AuthService) Login(email, password string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}

	client, err := s.clients.GetByEmail(email)
	if err != nil {
		s.logger.Info("login attempt with non-existent email", slog.String("email", email))
		return nil, errors.New("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(client.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("login failed with wrong password", slog.String("email", email))
		return nil, errors.New("invalid credentials")
	}

	token, err := s.tokens.GenerateToken(client.ID, client.Email, client.Tier, client.Jurisdictions, tokenLifetime)
	if err != nil {
		s.logger.Error("failed to sign token", slog.String("error", err.Error()))
		return nil, errors.New("failed to generate token")
	}

	s.logger.Info("client logged in",
		slog.String("client_id", client.ID),
		slog.String("tier", client.Tier),
	)

	return &LoginResult{
		ClientID:  client.ID,
		Email:     client.Email,
		Tier:      client.Tier,
		Token:     token,
		ExpiresIn: int(tokenLifetime.Seconds()),
		TokenType: "Bearer",
	}, nil
}

func normalizeJurisdictions(in []string) []string {
	out := make([]string, 0, len(in))
	for _, j := range in {
		j = strings.TrimSpace(j)
		if j == "" {
			continue
		}
		if j == "*" {
			out = append(out, j)
			continue
		}
		out = append(out, strings.ToUpper(j))
	}
	return out
}
