package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/formwatch/formwatch/internal/domain"
)

// PostgresCompanyRepository persists company profiles
type PostgresCompanyRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresCompanyRepository creates the repository
func NewPostgresCompanyRepository(db *sql.DB, logger *slog.Logger) *PostgresCompanyRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCompanyRepository{db: db, logger: logger}
}

// Create stores a company profile
func (r *PostgresCompanyRepository) Create(ctx context.Context, profile *domain.CompanyProfile) error {
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO companies (id, name, jurisdiction, company_type, company_size, has_employees, has_foreign_workers)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		profile.ID, profile.Name, profile.Jurisdiction, profile.CompanyType,
		profile.CompanySize, profile.HasEmployees, profile.HasForeignWorkers); err != nil {
		return fmt.Errorf("insert company: %w", err)
	}
	return nil
}

// GetByID loads a company profile
func (r *PostgresCompanyRepository) GetByID(ctx context.Context, id string) (*domain.CompanyProfile, error) {
	var p domain.CompanyProfile
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, jurisdiction, company_type, company_size, has_employees, has_foreign_workers
		FROM companies WHERE id = $1`, id).Scan(
		&p.ID, &p.Name, &p.Jurisdiction, &p.CompanyType,
		&p.CompanySize, &p.HasEmployees, &p.HasForeignWorkers)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("company %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get company %s: %w", id, err)
	}
	return &p, nil
}

// PostgresEmployeeRepository persists employee profiles
type PostgresEmployeeRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresEmployeeRepository creates the repository
func NewPostgresEmployeeRepository(db *sql.DB, logger *slog.Logger) *PostgresEmployeeRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresEmployeeRepository{db: db, logger: logger}
}

// Create stores an employee profile
func (r *PostgresEmployeeRepository) Create(ctx context.Context, profile *domain.EmployeeProfile) error {
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	if profile.WorkerType == "" {
		profile.WorkerType = "w2"
	}
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO employees (id, company_id, jurisdiction, worker_type, is_foreign_worker, has_benefits)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		profile.ID, profile.CompanyID, profile.Jurisdiction, profile.WorkerType,
		profile.IsForeignWorker, profile.HasBenefits); err != nil {
		return fmt.Errorf("insert employee: %w", err)
	}
	return nil
}

// GetByID loads an employee profile
func (r *PostgresEmployeeRepository) GetByID(ctx context.Context, id string) (*domain.EmployeeProfile, error) {
	var p domain.EmployeeProfile
	err := r.db.QueryRowContext(ctx, `
		SELECT id, company_id, jurisdiction, worker_type, is_foreign_worker, has_benefits
		FROM employees WHERE id = $1`, id).Scan(
		&p.ID, &p.CompanyID, &p.Jurisdiction, &p.WorkerType,
		&p.IsForeignWorker, &p.HasBenefits)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("employee %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get employee %s: %w", id, err)
	}
	return &p, nil
}
