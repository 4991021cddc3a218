package repository

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/formwatch/formwatch/internal/domain"
)

var metadataColumns = []string{
	"form_type", "title", "current_version", "document_hash",
	"last_updated", "last_checked", "effective_date", "expiration_date",
	"is_active", "priority", "content_id",
}

func testKey() domain.DocumentKey {
	return domain.DocumentKey{FormID: "W-4", Jurisdiction: "federal", Agency: "irs"}
}

func metadataRow(version string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(metadataColumns).
		AddRow("tax", "Employee Withholding Certificate", version, "abc123",
			now, now, now, nil, true, 10, nil)
}

func metadataRowAt(version, hash string, ts time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(metadataColumns).
		AddRow("tax", "Employee Withholding Certificate", version, hash,
			ts, ts, ts, nil, true, 10, nil)
}

func emptyChangeLog() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"change_date", "change_type", "description"})
}

func newMockRepo(t *testing.T) (*PostgresDocumentRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresDocumentRepository(db, slog.Default()), mock
}

func TestGetNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	key := testKey()

	mock.ExpectQuery("SELECT form_type, title").
		WithArgs(key.FormID, key.Jurisdiction, key.Agency).
		WillReturnRows(sqlmock.NewRows(metadataColumns))

	_, _, err := repo.Get(context.Background(), key)
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertNoneBumpsLastCheckedOnly(t *testing.T) {
	repo, mock := newMockRepo(t)
	key := testKey()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT form_type, title").
		WithArgs(key.FormID, key.Jurisdiction, key.Agency).
		WillReturnRows(metadataRow("2024.1"))
	mock.ExpectExec("UPDATE documents SET last_checked").
		WithArgs(key.FormID, key.Jurisdiction, key.Agency, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// reload after commit
	mock.ExpectQuery("SELECT form_type, title").
		WithArgs(key.FormID, key.Jurisdiction, key.Agency).
		WillReturnRows(metadataRow("2024.1"))
	mock.ExpectQuery("SELECT change_date, change_type").
		WithArgs(key.FormID, key.Jurisdiction, key.Agency).
		WillReturnRows(emptyChangeLog())

	meta := domain.DocumentMetadata{Key: key, CurrentVersion: "2024.1"}
	stored, err := repo.Upsert(context.Background(), meta, nil, domain.ChangeNone)
	require.NoError(t, err)
	require.Equal(t, "2024.1", stored.CurrentVersion)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRevisionAppendsChangeLog(t *testing.T) {
	repo, mock := newMockRepo(t)
	key := testKey()
	content := &domain.DocumentContent{Key: key, ContentType: "application/pdf", Body: []byte("pdf")}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT form_type, title").
		WithArgs(key.FormID, key.Jurisdiction, key.Agency).
		WillReturnRows(metadataRow("2024.1"))
	mock.ExpectExec("INSERT INTO document_content").
		WithArgs(sqlmock.AnyArg(), key.FormID, key.Jurisdiction, key.Agency,
			"application/pdf", content.Body, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE documents SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO document_changelog").
		WithArgs(key.FormID, key.Jurisdiction, key.Agency,
			sqlmock.AnyArg(), domain.ChangeRevision, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mock.ExpectQuery("SELECT form_type, title").
		WithArgs(key.FormID, key.Jurisdiction, key.Agency).
		WillReturnRows(metadataRow("2024.2"))
	mock.ExpectQuery("SELECT change_date, change_type").
		WithArgs(key.FormID, key.Jurisdiction, key.Agency).
		WillReturnRows(sqlmock.NewRows([]string{"change_date", "change_type", "description"}).
			AddRow(time.Now().UTC(), "revision", "version 2024.2 (revision change)"))

	meta := domain.DocumentMetadata{Key: key, CurrentVersion: "2024.2"}
	stored, err := repo.Upsert(context.Background(), meta, content, domain.ChangeRevision)
	require.NoError(t, err)
	require.Equal(t, "2024.2", stored.CurrentVersion)
	require.Len(t, stored.ChangeLog, 1)
	require.Equal(t, domain.ChangeRevision, stored.ChangeLog[0].ChangeType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertNewDocumentStartsEmptyChangeLog(t *testing.T) {
	repo, mock := newMockRepo(t)
	key := testKey()
	content := &domain.DocumentContent{Key: key, ContentType: "application/pdf", Body: []byte("pdf")}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT form_type, title").
		WithArgs(key.FormID, key.Jurisdiction, key.Agency).
		WillReturnRows(sqlmock.NewRows(metadataColumns))
	mock.ExpectExec("INSERT INTO document_content").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO documents").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// no changelog insert for the first sighting
	mock.ExpectCommit()

	mock.ExpectQuery("SELECT form_type, title").
		WithArgs(key.FormID, key.Jurisdiction, key.Agency).
		WillReturnRows(metadataRow("2024.1"))
	mock.ExpectQuery("SELECT change_date, change_type").
		WithArgs(key.FormID, key.Jurisdiction, key.Agency).
		WillReturnRows(emptyChangeLog())

	meta := domain.DocumentMetadata{Key: key, CurrentVersion: "2024.1"}
	stored, err := repo.Upsert(context.Background(), meta, content, domain.ChangeNew)
	require.NoError(t, err)
	require.Empty(t, stored.ChangeLog)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertStaleRevisionCollapsesToCheckedBump(t *testing.T) {
	// Two sweeps raced on the same key: both classified 2024.1 as a
	// revision against the same snapshot, and the other one committed
	// first. The locked row already carries 2024.1, so this upsert must
	// only bump last_checked instead of appending a second log entry.
	repo, mock := newMockRepo(t)
	key := testKey()
	now := time.Now().UTC()
	content := &domain.DocumentContent{Key: key, ContentType: "application/pdf", Body: []byte("pdf")}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT form_type, title").
		WithArgs(key.FormID, key.Jurisdiction, key.Agency).
		WillReturnRows(metadataRowAt("2024.1", "abc123", now))
	mock.ExpectExec("UPDATE documents SET last_checked").
		WithArgs(key.FormID, key.Jurisdiction, key.Agency, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectQuery("SELECT form_type, title").
		WithArgs(key.FormID, key.Jurisdiction, key.Agency).
		WillReturnRows(metadataRowAt("2024.1", "abc123", now))
	mock.ExpectQuery("SELECT change_date, change_type").
		WithArgs(key.FormID, key.Jurisdiction, key.Agency).
		WillReturnRows(sqlmock.NewRows([]string{"change_date", "change_type", "description"}).
			AddRow(now, "revision", "version 2024.1 (revision change)"))

	meta := domain.DocumentMetadata{
		Key:            key,
		FormType:       domain.FormTypeTax,
		Title:          "Employee Withholding Certificate",
		CurrentVersion: "2024.1",
		DocumentHash:   "abc123",
		EffectiveDate:  now,
	}
	stored, err := repo.Upsert(context.Background(), meta, content, domain.ChangeRevision)
	require.NoError(t, err)
	require.Equal(t, "2024.1", stored.CurrentVersion)
	require.Len(t, stored.ChangeLog, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRacingFirstSightingsStayLogged(t *testing.T) {
	// The row was absent when the caller classified, but a racer created
	// it at 2024.1 before the lock was taken. Version 2024.2 must land
	// with a change-log entry rather than silently replacing the first.
	repo, mock := newMockRepo(t)
	key := testKey()
	now := time.Now().UTC()
	content := &domain.DocumentContent{Key: key, ContentType: "application/pdf", Body: []byte("pdf v2")}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT form_type, title").
		WithArgs(key.FormID, key.Jurisdiction, key.Agency).
		WillReturnRows(metadataRowAt("2024.1", "abc123", now))
	mock.ExpectExec("INSERT INTO document_content").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE documents SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO document_changelog").
		WithArgs(key.FormID, key.Jurisdiction, key.Agency,
			sqlmock.AnyArg(), domain.ChangeRevision, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mock.ExpectQuery("SELECT form_type, title").
		WithArgs(key.FormID, key.Jurisdiction, key.Agency).
		WillReturnRows(metadataRowAt("2024.2", "def456", now))
	mock.ExpectQuery("SELECT change_date, change_type").
		WithArgs(key.FormID, key.Jurisdiction, key.Agency).
		WillReturnRows(sqlmock.NewRows([]string{"change_date", "change_type", "description"}).
			AddRow(now, "revision", "version 2024.2 (revision change)"))

	meta := domain.DocumentMetadata{
		Key:            key,
		CurrentVersion: "2024.2",
		DocumentHash:   "def456",
		EffectiveDate:  now,
	}
	stored, err := repo.Upsert(context.Background(), meta, content, domain.ChangeNew)
	require.NoError(t, err)
	require.Equal(t, "2024.2", stored.CurrentVersion)
	require.Len(t, stored.ChangeLog, 1)
	require.Equal(t, domain.ChangeRevision, stored.ChangeLog[0].ChangeType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertLockContentionGivesConflict(t *testing.T) {
	repo, mock := newMockRepo(t)
	key := testKey()

	for i := 0; i < upsertRetries; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT form_type, title").
			WithArgs(key.FormID, key.Jurisdiction, key.Agency).
			WillReturnError(&pq.Error{Code: "40001"})
		mock.ExpectRollback()
	}

	meta := domain.DocumentMetadata{Key: key, CurrentVersion: "2024.1"}
	_, err := repo.Upsert(context.Background(), meta, nil, domain.ChangeMinor)
	require.ErrorIs(t, err, domain.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertNonRetryableErrorSurfacesDirectly(t *testing.T) {
	repo, mock := newMockRepo(t)
	key := testKey()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT form_type, title").
		WithArgs(key.FormID, key.Jurisdiction, key.Agency).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	meta := domain.DocumentMetadata{Key: key}
	_, err := repo.Upsert(context.Background(), meta, nil, domain.ChangeMinor)
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveFilters(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"form_id", "jurisdiction", "agency", "form_type", "title", "current_version",
		"document_hash", "last_updated", "last_checked", "effective_date",
		"expiration_date", "is_active", "priority",
	}).AddRow("W-4", "federal", "irs", "tax", "Withholding", "2024.1",
		"abc", now, now, now, nil, true, 10)

	mock.ExpectQuery("SELECT form_id, jurisdiction, agency").
		WithArgs("tax", "", 8).
		WillReturnRows(rows)

	docs, err := repo.ListActive(context.Background(), domain.ListFilter{
		FormType:    domain.FormTypeTax,
		MinPriority: 8,
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "W-4", docs[0].Key.FormID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkCheckedUnknownDocument(t *testing.T) {
	repo, mock := newMockRepo(t)
	key := testKey()

	mock.ExpectExec("UPDATE documents SET last_checked").
		WithArgs(key.FormID, key.Jurisdiction, key.Agency, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkChecked(context.Background(), key, time.Now().UTC())
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
