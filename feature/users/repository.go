package users

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"directory-sync/core/database"
	"directory-sync/core/reconcile"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrDuplicate is returned when a created user collides with an existing key or email.
	ErrDuplicate = errors.New("user already exists")
	// ErrNotFound is returned when no user has the key.
	ErrNotFound = errors.New("user not found")
	// ErrMissingKey is returned when a record has no id.
	ErrMissingKey = errors.New("user record has no id")
)

// batchSize bounds the rows inserted per statement.
const batchSize = 100

// Repository is the mirror datastore of the sync engine.
// It implements reconcile.Mirror, reconcile.MirrorBatchCreator and
// reconcile.CacheInvalidator.
type Repository struct {
	db     *gorm.DB
	logger *zap.Logger
	lookup *lookupCache
}

// NewRepository creates a repository on an open database.
func NewRepository(db *gorm.DB, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Repository{db: db, logger: logger}
	r.lookup = newLookupCache(r.list)
	return r
}

// Prepare migrates the users table and verifies every profile column exists.
func (r *Repository) Prepare(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&User{}); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", TableName, err)
	}

	want := make([]string, 0, len(Profile))
	for _, col := range Profile {
		want = append(want, col)
	}
	sort.Strings(want)

	missing, err := database.MissingColumns(r.db.WithContext(ctx), TableName, want)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("table %s is missing columns: %s", TableName, strings.Join(missing, ", "))
	}
	return nil
}

// LoadAll returns every user as an engine record.
func (r *Repository) LoadAll(ctx context.Context) ([]reconcile.Record, error) {
	users, err := r.list(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]reconcile.Record, len(users))
	for i := range users {
		records[i] = users[i].Record()
	}
	return records, nil
}

func (r *Repository) list(ctx context.Context) ([]User, error) {
	var users []User
	if err := r.db.WithContext(ctx).Order("id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	return users, nil
}

// Create inserts one user.
func (r *Repository) Create(ctx context.Context, record reconcile.Record) error {
	u := userFromRecord(record)
	if u.ID == "" {
		return ErrMissingKey
	}
	if err := r.db.WithContext(ctx).Create(&u).Error; err != nil {
		return translate(u.ID, err)
	}
	return nil
}

// CreateBatch inserts users in one transaction. Any failure rolls back the batch.
func (r *Repository) CreateBatch(ctx context.Context, records []reconcile.Record) error {
	users := make([]User, 0, len(records))
	for _, record := range records {
		u := userFromRecord(record)
		if u.ID == "" {
			return ErrMissingKey
		}
		users = append(users, u)
	}
	if len(users) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&users, batchSize).Error
	})
	if err != nil {
		return translate("", err)
	}
	return nil
}

// Update changes the given fields of the user identified by key.
func (r *Repository) Update(ctx context.Context, key string, fields reconcile.Record) error {
	updates, unknown := columns(fields)
	if len(unknown) > 0 {
		sort.Strings(unknown)
		r.logger.Debug("Ignoring fields without a column",
			zap.String("key", key),
			zap.Strings("fields", unknown))
	}
	if len(updates) == 0 {
		return nil
	}

	res := r.db.WithContext(ctx).Model(&User{}).Where("id = ?", key).Updates(updates)
	if res.Error != nil {
		return translate(key, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return nil
}

// InvalidateDependentCaches drops the lookup cache served to HTTP readers.
func (r *Repository) InvalidateDependentCaches(context.Context) error {
	r.lookup.invalidate()
	return nil
}

// Users returns every user from the lookup cache.
func (r *Repository) Users(ctx context.Context) ([]User, error) {
	return r.lookup.all(ctx)
}

// User returns one user by id or email from the lookup cache.
func (r *Repository) User(ctx context.Context, key string) (*User, error) {
	u, err := r.lookup.get(ctx, key)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return u, nil
}

func translate(key string, err error) error {
	if database.IsDuplicateKey(err) {
		if key == "" {
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return fmt.Errorf("%w: %s", ErrDuplicate, key)
	}
	return err
}
