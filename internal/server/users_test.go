package server

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func newMockDB(t *testing.T) (*UserStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewUserStore(db), mock
}

func fieldErrors(t *testing.T, err error) validation.Errors {
	t.Helper()
	verrs, ok := err.(validation.Errors)
	require.True(t, ok, "expected validation.Errors, got %T: %v", err, err)
	return verrs
}

func TestRegisterInput_Validate(t *testing.T) {
	valid := RegisterInput{
		Username:        "alice1",
		Email:           "alice@example.com",
		Password:        "Str0ng!pass",
		ConfirmPassword: "Str0ng!pass",
	}

	t.Run("valid input passes", func(t *testing.T) {
		require.NoError(t, valid.Validate())
	})

	t.Run("username length 11 fails the length rule", func(t *testing.T) {
		in := valid
		in.Username = "abcdefghijk"
		verrs := fieldErrors(t, in.Validate())
		assert.Contains(t, verrs["Username"].Error(), "between 1 and 10")
	})

	t.Run("username with underscore fails the alphanumeric rule", func(t *testing.T) {
		in := valid
		in.Username = "ab_1"
		verrs := fieldErrors(t, in.Validate())
		assert.Contains(t, verrs["Username"].Error(), "letters and numbers")
	})

	t.Run("short password fails the length rule", func(t *testing.T) {
		in := valid
		in.Password = "Ab1!"
		in.ConfirmPassword = "Ab1!"
		verrs := fieldErrors(t, in.Validate())
		assert.Contains(t, verrs["Password"].Error(), "8 characters")
	})

	t.Run("weak password reports every missing class", func(t *testing.T) {
		err := passwordStrength("alllowercase")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "uppercase")
		assert.Contains(t, err.Error(), "digit")
		assert.Contains(t, err.Error(), "symbol")
		assert.NotContains(t, err.Error(), "lowercase")
	})

	t.Run("mismatched confirmation fails", func(t *testing.T) {
		in := valid
		in.ConfirmPassword = "Different1!"
		verrs := fieldErrors(t, in.Validate())
		assert.Contains(t, verrs["ConfirmPassword"].Error(), "do not match")
	})

	t.Run("multiple broken fields are all reported", func(t *testing.T) {
		in := RegisterInput{
			Username:        "way.too.long.name",
			Email:           "not-an-email",
			Password:        "short",
			ConfirmPassword: "other",
		}
		verrs := fieldErrors(t, in.Validate())
		assert.Len(t, verrs, 4)
	})
}

func TestUserStore_Register(t *testing.T) {
	in := RegisterInput{
		Username:        "bob",
		Email:           "Bob@Example.com",
		Password:        "Str0ng!pass",
		ConfirmPassword: "Str0ng!pass",
	}

	t.Run("inserts normalized email and hashed password", func(t *testing.T) {
		store, mock := newMockDB(t)

		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
			WithArgs(sqlmock.AnyArg(), "bob", "bob@example.com", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		id, err := store.Register(context.Background(), in)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, id)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation surfaces as ErrDuplicate", func(t *testing.T) {
		store, mock := newMockDB(t)

		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
			WillReturnError(&pgconn.PgError{Code: "23505"})

		_, err := store.Register(context.Background(), in)
		require.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("invalid input never reaches the database", func(t *testing.T) {
		store, mock := newMockDB(t)

		bad := in
		bad.Username = "ab_1"
		_, err := store.Register(context.Background(), bad)
		require.Error(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserStore_Verify(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("Str0ng!pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	userID := uuid.New()
	selectUser := regexp.QuoteMeta(`SELECT id, password_hash FROM users WHERE email = $1`)

	t.Run("correct credentials succeed", func(t *testing.T) {
		store, mock := newMockDB(t)
		mock.ExpectQuery(selectUser).
			WithArgs("carol@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash"}).
				AddRow(userID.String(), string(hash)))

		got, err := store.Verify(context.Background(), "Carol@Example.com", "Str0ng!pass")
		require.NoError(t, err)
		assert.Equal(t, userID, got)
	})

	t.Run("wrong password fails with the generic auth error", func(t *testing.T) {
		store, mock := newMockDB(t)
		mock.ExpectQuery(selectUser).
			WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash"}).
				AddRow(userID.String(), string(hash)))

		_, err := store.Verify(context.Background(), "carol@example.com", "wrong")
		require.ErrorIs(t, err, ErrAuthFailed)
	})

	t.Run("unknown email fails with the same external message", func(t *testing.T) {
		store, mock := newMockDB(t)
		mock.ExpectQuery(selectUser).
			WillReturnError(sql.ErrNoRows)

		_, err := store.Verify(context.Background(), "nobody@example.com", "whatever")
		require.ErrorIs(t, err, ErrAuthFailed)
	})
}
