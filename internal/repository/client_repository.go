package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/formwatch/formwatch/internal/domain"
)

// PostgresClientRepository implements domain.ClientRepository using PostgreSQL
type PostgresClientRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresClientRepository creates a new client repository
func NewPostgresClientRepository(db *sql.DB, logger *slog.Logger) *PostgresClientRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresClientRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new API client
func (r *PostgresClientRepository) Create(client *domain.Client) error {
	query := `
		INSERT INTO clients (id, email, password_hash, tier, jurisdictions, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING created_at
	`

	err := r.db.QueryRow(
		query,
		client.ID,
		client.Email,
		client.PasswordHash,
		client.Tier,
		pq.Array(client.Jurisdictions),
	).Scan(&client.CreatedAt)

	if err != nil {
		r.logger.Error("failed to create client",
			slog.String("email", client.Email),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create client: %w", err)
	}

	return nil
}

// GetByID retrieves a client by ID
func (r *PostgresClientRepository) GetByID(id string) (*domain.Client, error) {
	query := `
		SELECT id, email, password_hash, tier, jurisdictions, created_at
		FROM clients
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRow(query, id))
}

// GetByEmail retrieves a client by email
func (r *PostgresClientRepository) GetByEmail(email string) (*domain.Client, error) {
	query := `
		SELECT id, email, password_hash, tier, jurisdictions, created_at
		FROM clients
		WHERE email = $1
	`
	return r.scanOne(r.db.QueryRow(query, email))
}

func (r *PostgresClientRepository) scanOne(row *sql.Row) (*domain.Client, error) {
	client := &domain.Client{}
	err := row.Scan(
		&client.ID,
		&client.Email,
		&client.PasswordHash,
		&client.Tier,
		pq.Array(&client.Jurisdictions),
		&client.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("failed to get client",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return client, nil
}
