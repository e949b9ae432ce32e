package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mkozyreva/accounts-service/internal/models"
	"github.com/mkozyreva/accounts-service/internal/storage"
)

// userColumns — единый список колонок users для SELECT/RETURNING.
const userColumns = `
	id, email, username, first_name, last_name, role,
	password_hash, password_changed_at,
	failed_login_attempts, lock_until, last_login_at,
	active, email_verified,
	reset_token_hash, reset_token_expires_at,
	verify_token_hash, verify_token_expires_at,
	created_at, updated_at
`

// rowScanner покрывает pgx.Row и pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.Role,
		&user.PasswordHash,
		&user.PasswordChangedAt,
		&user.FailedLoginAttempts,
		&user.LockUntil,
		&user.LastLoginAt,
		&user.Active,
		&user.EmailVerified,
		&user.ResetTokenHash,
		&user.ResetTokenExpiresAt,
		&user.VerifyTokenHash,
		&user.VerifyTokenExpires,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// mapUniqueViolation различает нарушения уникальности по имени ограничения.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return nil
	}

	switch pgErr.ConstraintName {
	case "users_email_key":
		return storage.ErrEmailExists
	case "users_username_lower_uniq":
		return storage.ErrUsernameExists
	default:
		return storage.ErrAlreadyExists
	}
}

// SaveUser создаёт нового пользователя в БД.
func (s *Storage) SaveUser(ctx context.Context, user *models.User) error {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users(
			id, email, username, first_name, last_name, role,
			password_hash, password_changed_at, active, email_verified,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.db.Exec(ctx, query,
		user.ID,
		user.Email,
		user.Username,
		user.FirstName,
		user.LastName,
		user.Role,
		user.PasswordHash,
		user.PasswordChangedAt,
		user.Active,
		user.EmailVerified,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != nil {
			return fmt.Errorf("%s: %w", op, mapped)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// UserByEmail находит пользователя по email (колонка CITEXT — без учёта регистра).
func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.postgres.UserByEmail"

	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(s.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UserByID находит пользователя по ID.
func (s *Storage) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.postgres.UserByID"

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UpdateProfile применяет патч профиля (nil-поля не меняются) и возвращает
// обновлённую запись.
func (s *Storage) UpdateProfile(ctx context.Context, id uuid.UUID, patch storage.ProfilePatch) (*models.User, error) {
	const op = "storage.postgres.UpdateProfile"

	query := `
		UPDATE users
		SET username   = COALESCE($2, username),
		    first_name = COALESCE($3, first_name),
		    last_name  = COALESCE($4, last_name),
		    updated_at = $5
		WHERE id = $1
		RETURNING ` + userColumns

	user, err := scanUser(s.db.QueryRow(ctx, query,
		id,
		patch.Username,
		patch.FirstName,
		patch.LastName,
		time.Now().UTC(),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}
		if mapped := mapUniqueViolation(err); mapped != nil {
			return nil, fmt.Errorf("%s: %w", op, mapped)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UpdatePassword заменяет хэш пароля, сдвигает password_changed_at и гасит
// незакрытые reset-токены (единственный путь мутации password_hash).
func (s *Storage) UpdatePassword(ctx context.Context, id uuid.UUID, hash string, changedAt time.Time) error {
	const op = "storage.postgres.UpdatePassword"

	query := `
		UPDATE users
		SET password_hash          = $2,
		    password_changed_at    = $3,
		    reset_token_hash       = NULL,
		    reset_token_expires_at = NULL,
		    updated_at             = $4
		WHERE id = $1
	`

	cmdTag, err := s.db.Exec(ctx, query, id, hash, changedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// RegisterLoginFailure атомарно инкрементирует счётчик неудачных входов.
// При достижении maxAttempts выставляет lock_until=now+lockFor и обнуляет
// счётчик — всё одним UPDATE, без гонок между конкурентными запросами.
func (s *Storage) RegisterLoginFailure(ctx context.Context, id uuid.UUID, maxAttempts int, lockFor time.Duration, now time.Time) (int, *time.Time, error) {
	const op = "storage.postgres.RegisterLoginFailure"

	query := `
		UPDATE users
		SET failed_login_attempts = CASE
		        WHEN failed_login_attempts + 1 >= $2 THEN 0
		        ELSE failed_login_attempts + 1
		    END,
		    lock_until = CASE
		        WHEN failed_login_attempts + 1 >= $2 THEN $4
		        ELSE lock_until
		    END,
		    updated_at = $3
		WHERE id = $1
		RETURNING failed_login_attempts, lock_until
	`

	var (
		attempts  int
		lockUntil *time.Time
	)
	err := s.db.QueryRow(ctx, query, id, maxAttempts, now, now.Add(lockFor)).
		Scan(&attempts, &lockUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return 0, nil, fmt.Errorf("%s: %w", op, err)
	}

	return attempts, lockUntil, nil
}

// RegisterLoginSuccess сбрасывает счётчик/блокировку и фиксирует last_login_at.
func (s *Storage) RegisterLoginSuccess(ctx context.Context, id uuid.UUID, now time.Time) error {
	const op = "storage.postgres.RegisterLoginSuccess"

	query := `
		UPDATE users
		SET failed_login_attempts = 0,
		    lock_until            = NULL,
		    last_login_at         = $2,
		    updated_at            = $2
		WHERE id = $1
	`

	cmdTag, err := s.db.Exec(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// SetResetToken сохраняет хэш одноразового reset-токена и срок его действия.
func (s *Storage) SetResetToken(ctx context.Context, id uuid.UUID, hash string, expiresAt time.Time) error {
	const op = "storage.postgres.SetResetToken"

	query := `
		UPDATE users
		SET reset_token_hash       = $2,
		    reset_token_expires_at = $3,
		    updated_at             = $4
		WHERE id = $1
	`

	cmdTag, err := s.db.Exec(ctx, query, id, hash, expiresAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// ClearResetToken обнуляет поля reset-токена. Колонки выставляются в NULL,
// а не в пустые значения, чтобы строка ушла из частичного индекса
// users_reset_token_hash_idx.
func (s *Storage) ClearResetToken(ctx context.Context, id uuid.UUID) error {
	const op = "storage.postgres.ClearResetToken"

	query := `
		UPDATE users
		SET reset_token_hash       = NULL,
		    reset_token_expires_at = NULL,
		    updated_at             = $2
		WHERE id = $1
	`

	cmdTag, err := s.db.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// UserByResetTokenHash находит пользователя по непросроченному reset-хэшу.
// Просроченный или отсутствующий хэш неразличимы для вызывающего (ErrNotFound).
func (s *Storage) UserByResetTokenHash(ctx context.Context, hash string, now time.Time) (*models.User, error) {
	const op = "storage.postgres.UserByResetTokenHash"

	query := `SELECT ` + userColumns + `
		FROM users
		WHERE reset_token_hash = $1 AND reset_token_expires_at > $2`

	user, err := scanUser(s.db.QueryRow(ctx, query, hash, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// SetVerifyToken сохраняет хэш токена подтверждения email и срок действия.
func (s *Storage) SetVerifyToken(ctx context.Context, id uuid.UUID, hash string, expiresAt time.Time) error {
	const op = "storage.postgres.SetVerifyToken"

	query := `
		UPDATE users
		SET verify_token_hash       = $2,
		    verify_token_expires_at = $3,
		    updated_at              = $4
		WHERE id = $1
	`

	cmdTag, err := s.db.Exec(ctx, query, id, hash, expiresAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// ConsumeVerifyToken атомарно гасит непросроченный verify-токен:
// одним UPDATE выставляет email_verified=TRUE и чистит поля токена,
// поэтому повторное предъявление того же токена даёт ErrNotFound.
// Деактивированная учётная запись токен погасить не может.
func (s *Storage) ConsumeVerifyToken(ctx context.Context, hash string, now time.Time) (uuid.UUID, error) {
	const op = "storage.postgres.ConsumeVerifyToken"

	query := `
		UPDATE users
		SET email_verified          = TRUE,
		    verify_token_hash       = NULL,
		    verify_token_expires_at = NULL,
		    updated_at              = $2
		WHERE verify_token_hash = $1 AND verify_token_expires_at > $2 AND active
		RETURNING id
	`

	var id uuid.UUID
	err := s.db.QueryRow(ctx, query, hash, now).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

// SetActive переключает флаг активности (самостоятельная деактивация —
// логическое удаление, запись остаётся в БД).
func (s *Storage) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	const op = "storage.postgres.SetActive"

	query := `
		UPDATE users
		SET active     = $2,
		    updated_at = $3
		WHERE id = $1
	`

	cmdTag, err := s.db.Exec(ctx, query, id, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// ListUsers возвращает страницу пользователей, стабильный порядок по created_at.
func (s *Storage) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	const op = "storage.postgres.ListUsers"

	query := `SELECT ` + userColumns + `
		FROM users
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2`

	rows, err := s.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		users = append(users, *user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return users, nil
}

// UpdateUserAdmin применяет административный патч (роль/активность).
func (s *Storage) UpdateUserAdmin(ctx context.Context, id uuid.UUID, patch storage.AdminPatch) (*models.User, error) {
	const op = "storage.postgres.UpdateUserAdmin"

	query := `
		UPDATE users
		SET role       = COALESCE($2, role),
		    active     = COALESCE($3, active),
		    updated_at = $4
		WHERE id = $1
		RETURNING ` + userColumns

	user, err := scanUser(s.db.QueryRow(ctx, query, id, patch.Role, patch.Active, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// DeleteUser физически удаляет пользователя (только административный путь;
// refresh-токены удаляются каскадно).
func (s *Storage) DeleteUser(ctx context.Context, id uuid.UUID) error {
	const op = "storage.postgres.DeleteUser"

	query := `DELETE FROM users WHERE id = $1`

	cmdTag, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}
