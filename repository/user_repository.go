package repository

import (
	"context"
	"errors"
	"time"

	"voicelegal-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository handles database operations for users and their preferences
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a user with default notification preferences
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO users (email, password_hash, name, phone_number, preferred_language)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at, updated_at`,
			user.Email,
			user.PasswordHash,
			user.Name,
			user.PhoneNumber,
			user.Language,
		).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO user_preferences (user_id, email_notifications, sms_notifications)
			VALUES ($1, true, $2)`,
			user.ID, user.PhoneNumber != nil)
		return err
	})
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	err := r.db.QueryRow(ctx, `
		SELECT id, email, password_hash, name, phone_number, preferred_language, created_at, updated_at
		FROM users
		WHERE email = $1`, email).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&user.PhoneNumber,
		&user.Language,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetWithPreferences retrieves a user and their notification preferences.
// Preferences are nil when the user has never saved any.
func (r *UserRepository) GetWithPreferences(ctx context.Context, id uuid.UUID) (*models.User, *models.UserPreferences, error) {
	user := &models.User{}
	var emailPref, smsPref *bool
	var prefsUpdated *time.Time

	err := r.db.QueryRow(ctx, `
		SELECT u.id, u.email, u.password_hash, u.name, u.phone_number, u.preferred_language,
			u.created_at, u.updated_at,
			p.email_notifications, p.sms_notifications, p.updated_at
		FROM users u
		LEFT JOIN user_preferences p ON p.user_id = u.id
		WHERE u.id = $1`, id).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&user.PhoneNumber,
		&user.Language,
		&user.CreatedAt,
		&user.UpdatedAt,
		&emailPref,
		&smsPref,
		&prefsUpdated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	if emailPref == nil {
		return user, nil, nil
	}
	prefs := &models.UserPreferences{
		UserID:             user.ID,
		EmailNotifications: *emailPref,
		SMSNotifications:   smsPref != nil && *smsPref,
	}
	if prefsUpdated != nil {
		prefs.UpdatedAt = *prefsUpdated
	}
	return user, prefs, nil
}

// UpdatePreferences stores notification preferences for a user
func (r *UserRepository) UpdatePreferences(ctx context.Context, prefs *models.UserPreferences) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO user_preferences (user_id, email_notifications, sms_notifications)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			email_notifications = EXCLUDED.email_notifications,
			sms_notifications = EXCLUDED.sms_notifications,
			updated_at = NOW()
		RETURNING updated_at`,
		prefs.UserID, prefs.EmailNotifications, prefs.SMSNotifications,
	).Scan(&prefs.UpdatedAt)
}
