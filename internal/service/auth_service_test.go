package service

import (
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/formwatch/formwatch/internal/domain"
	"github.com/formwatch/formwatch/internal/security/auth"
)

type memClientRepo struct {
	byID    map[string]*domain.Client
	byEmail map[string]*domain.Client
}

func newMemClientRepo() *memClientRepo {
	return &memClientRepo{byID: map[string]*domain.Client{}, byEmail: map[string]*domain.Client{}}
}

func (m *memClientRepo) Create(c *domain.Client) error {
	m.byID[c.ID] = c
	m.byEmail[c.Email] = c
	return nil
}

func (m *memClientRepo) GetByID(id string) (*domain.Client, error) {
	if c, ok := m.byID[id]; ok {
		return c, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memClientRepo) GetByEmail(email string) (*domain.Client, error) {
	if c, ok := m.byEmail[email]; ok {
		return c, nil
	}
	return nil, domain.ErrNotFound
}

func newAuthFixture() (*AuthService, *memClientRepo) {
	repo := newMemClientRepo()
	tokens := auth.NewTokenManager("test-secret", "formwatch-test")
	return NewAuthService(repo, tokens, nil), repo
}

func TestRegisterAndLogin(t *testing.T) {
	svc, repo := newAuthFixture()

	reg, err := svc.Register("ops@example.com", "s3curepass", domain.TierPro, []string{"ca", "ny"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if reg.ClientID == "" || reg.Token == "" {
		t.Fatalf("registration must return an id and a token: %+v", reg)
	}
	if reg.Tier != domain.TierPro {
		t.Fatalf("expected pro tier, got %s", reg.Tier)
	}

	stored, err := repo.GetByEmail("ops@example.com")
	if err != nil {
		t.Fatalf("client not persisted: %v", err)
	}
	if stored.PasswordHash == "s3curepass" {
		t.Fatalf("password must never be stored in the clear")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("s3curepass")); err != nil {
		t.Fatalf("stored hash does not match the password: %v", err)
	}
	if len(stored.Jurisdictions) != 2 || stored.Jurisdictions[0] != "CA" || stored.Jurisdictions[1] != "NY" {
		t.Fatalf("jurisdictions must be normalized uppercase, got %v", stored.Jurisdictions)
	}

	login, err := svc.Login("ops@example.com", "s3curepass")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if login.Token == "" || login.TokenType != "Bearer" {
		t.Fatalf("unexpected login result: %+v", login)
	}
	if login.ExpiresIn <= 0 {
		t.Fatalf("token lifetime must be positive")
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newAuthFixture()

	if _, err := svc.Register("", "s3curepass", "", nil); err == nil {
		t.Fatalf("empty email must be rejected")
	}
	if _, err := svc.Register("a@b.com", "short", "", nil); err == nil {
		t.Fatalf("short password must be rejected")
	}
	if _, err := svc.Register("a@b.com", "s3curepass", "platinum", nil); err == nil {
		t.Fatalf("unknown tier must be rejected")
	}
}

func TestRegisterDefaultsToFreeTier(t *testing.T) {
	svc, _ := newAuthFixture()

	reg, err := svc.Register("a@b.com", "s3curepass", "", nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if reg.Tier != domain.TierFree {
		t.Fatalf("expected free tier default, got %s", reg.Tier)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newAuthFixture()

	if _, err := svc.Register("a@b.com", "s3curepass", "", nil); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := svc.Register("a@b.com", "otherpassword", "", nil); err == nil {
		t.Fatalf("duplicate email must be rejected")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _ := newAuthFixture()

	if _, err := svc.Register("a@b.com", "s3curepass", "", nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Login("a@b.com", "wrongpassword"); err == nil {
		t.Fatalf("wrong password must be rejected")
	}
	if _, err := svc.Login("nobody@b.com", "s3curepass"); err == nil {
		t.Fatalf("unknown email must be rejected")
	}
}

func TestIssuedTokenCarriesClaims(t *testing.T) {
	svc, _ := newAuthFixture()
	tokens := auth.NewTokenManager("test-secret", "formwatch-test")

	reg, err := svc.Register("a@b.com", "s3curepass", domain.TierEnterprise, []string{"*"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	claims, err := tokens.ValidateToken(reg.Token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.ClientID != reg.ClientID {
		t.Fatalf("token subject %s does not match client %s", claims.ClientID, reg.ClientID)
	}
	if claims.Tier != domain.TierEnterprise {
		t.Fatalf("token tier %s", claims.Tier)
	}
	if len(claims.Jurisdictions) != 1 || claims.Jurisdictions[0] != "*" {
		t.Fatalf("wildcard jurisdiction lost: %v", claims.Jurisdictions)
	}
}
