package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learnify-api/internal/models"
)

var userRowColumns = []string{"id", "user_no", "email", "password_hash", "full_name", "role", "bio", "skills", "contact_number", "active", "last_login", "created_at", "updated_at"}

func TestFindByEmailIgnoresCase(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(userRowColumns).
		AddRow("1", 1, "user@example.com", "hash", "User", string(models.RoleStudent), "", "{go,sql}", "", true, now, now, now)
	mock.ExpectQuery("WHERE LOWER\\(email\\) = LOWER\\(\\$1\\)").
		WithArgs("User@Example.com").
		WillReturnRows(rows)

	user, err := repo.FindByEmail(context.Background(), "User@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", user.Email)
	assert.Equal(t, []string{"go", "sql"}, []string(user.Skills))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("INSERT INTO users").WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.User{Email: "taken@example.com", Role: models.RoleStudent})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestListUsers(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	role := models.RoleTutor
	now := time.Now()
	mock.ExpectQuery("SELECT .* FROM users WHERE 1=1 AND role = \\$1 ORDER BY created_at DESC LIMIT 20 OFFSET 0").
		WithArgs(role).
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("2", 2, "tutor@example.com", "hash", "Tess", string(role), "", "{}", "", true, nil, now, now))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM users WHERE 1=1 AND role = \\$1").
		WithArgs(role).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	users, total, err := repo.List(context.Background(), models.UserFilter{Role: &role})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, users, 1)
	assert.Equal(t, models.RoleTutor, users[0].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountByRole(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("GROUP BY role").
		WillReturnRows(sqlmock.NewRows([]string{"role", "total"}).AddRow("STUDENT", 10).AddRow("TUTOR", 2))

	counts, err := repo.CountByRole(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, counts[models.RoleStudent])
	assert.Equal(t, 0, counts[models.RoleAdmin])
}

func TestCreateAuditLog(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.CreateAuditLog(context.Background(), &models.AuditLog{Action: models.AuditActionLogin, Resource: "auth"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
