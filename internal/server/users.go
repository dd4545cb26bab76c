// users.go - Credential store: registration, password hashing and
// credential verification.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// bcryptCost matches the interactive-login work factor used at signup.
const bcryptCost = 10

// RegisterInput is the signup payload. Accepted as JSON or as an
// urlencoded form.
type RegisterInput struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (in *RegisterInput) normalize() {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	in.Password = strings.TrimSpace(in.Password)
	in.ConfirmPassword = strings.TrimSpace(in.ConfirmPassword)
}

// passwordStrength reports every missing character class at once so the
// caller sees the full list of failed rules, not just the first.
func passwordStrength(value any) error {
	s, _ := value.(string)

	var missing []string
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	if !hasUpper {
		missing = append(missing, "an uppercase letter")
	}
	if !hasLower {
		missing = append(missing, "a lowercase letter")
	}
	if !hasDigit {
		missing = append(missing, "a digit")
	}
	if !hasSymbol {
		missing = append(missing, "a symbol")
	}
	if len(missing) > 0 {
		return errors.New("must include " + strings.Join(missing, ", "))
	}
	return nil
}

// Validate checks every signup rule and reports all failures per field.
func (in RegisterInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Username,
			validation.Required,
			is.Alphanumeric.Error("must only contain letters and numbers"),
			validation.Length(1, 10).Error("must be between 1 and 10 characters"),
		),
		validation.Field(&in.Email,
			validation.Required,
			is.EmailFormat.Error("must be a valid email address"),
		),
		validation.Field(&in.Password,
			validation.Required,
			validation.Length(8, 128).Error("must be at least 8 characters"),
			validation.By(passwordStrength),
		),
		validation.Field(&in.ConfirmPassword,
			validation.Required,
			validation.In(in.Password).Error("passwords do not match"),
		),
	)
}

// UserStore persists user records and enforces uniqueness of username
// and email.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// Register validates the input, hashes the password and inserts the
// user. A unique-constraint violation comes back as ErrDuplicate; rule
// failures come back as a validation.Errors listing every broken rule.
func (s *UserStore) Register(ctx context.Context, in RegisterInput) (uuid.UUID, error) {
	in.normalize()
	if err := in.Validate(); err != nil {
		return uuid.Nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcryptCost)
	if err != nil {
		return uuid.Nil, fmt.Errorf("hash password: %w", err)
	}

	id := uuid.New()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash)
		 VALUES ($1, $2, $3, $4)`,
		id, in.Username, in.Email, string(hash),
	)
	if err != nil {
		if isDuplicateErr(err) {
			return uuid.Nil, fmt.Errorf("username or email: %w", ErrDuplicate)
		}
		return uuid.Nil, fmt.Errorf("insert user: %w", err)
	}

	return id, nil
}

// Verify checks email and password. Unknown email and wrong password
// are distinguishable by the wrapped detail but both surface the same
// generic ErrAuthFailed message.
func (s *UserStore) Verify(ctx context.Context, email, password string) (uuid.UUID, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	var id uuid.UUID
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE email = $1`,
		email,
	).Scan(&id, &hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("no such user: %w", ErrAuthFailed)
		}
		return uuid.Nil, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return uuid.Nil, fmt.Errorf("bad credentials: %w", ErrAuthFailed)
	}

	return id, nil
}

// signupHandler handles POST /signup.
func (cfg Config) signupHandler(users *UserStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in RegisterInput
		if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
		} else {
			if err := r.ParseForm(); err != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			in = RegisterInput{
				Username:        r.PostFormValue("username"),
				Email:           r.PostFormValue("email"),
				Password:        r.PostFormValue("password"),
				ConfirmPassword: r.PostFormValue("confirmPassword"),
			}
		}

		id, err := users.Register(r.Context(), in)
		if err != nil {
			writeError(w, r, err)
			return
		}

		slog.Info("user registered", "rid", RequestIDFromContext(r.Context()), "user_id", id)

		if wantsJSON(r) {
			writeJSON(w, http.StatusCreated, map[string]any{"id": id})
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})
}
