package kvstore_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"directory-sync/core/database"
	"directory-sync/core/kvstore"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func setupSQLite(t *testing.T) *kvstore.Store {
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, Name: ":memory:"})
	require.NoError(t, err)

	store := kvstore.New(db)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to open mock sql db: %v", err)
	}

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open gorm db: %v", err)
	}

	return gormDB, mock
}

func TestStore_GetSet(t *testing.T) {
	ctx := context.Background()
	store := setupSQLite(t)

	_, found, err := store.Get(ctx, "sync.config")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "sync.config", `{"syncInterval":60000}`))
	value, found, err := store.Get(ctx, "sync.config")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"syncInterval":60000}`, value)

	// Upsert replaces in place.
	require.NoError(t, store.Set(ctx, "sync.config", `{}`))
	value, _, err = store.Get(ctx, "sync.config")
	require.NoError(t, err)
	assert.Equal(t, `{}`, value)
}

func TestStore_GetError(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectQuery("SELECT \\* FROM `sync_kv`").WillReturnError(errors.New("connection lost"))

	_, _, err := kvstore.New(db).Get(context.Background(), "sync.cache")
	assert.ErrorContains(t, err, "connection lost")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntry_ValueIsLongText(t *testing.T) {
	db, mock := setupMockDB(t)

	stmt := &gorm.Statement{DB: db}
	require.NoError(t, stmt.Parse(&kvstore.Entry{}))
	field := stmt.Schema.LookUpField("value")
	require.NotNil(t, field)

	assert.Equal(t, "longtext", db.Dialector.DataTypeOf(field))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SetLargeValue(t *testing.T) {
	ctx := context.Background()
	store := setupSQLite(t)

	large := strings.Repeat("x", 600*1024)
	require.NoError(t, store.Set(ctx, "sync.cache", large))
	value, found, err := store.Get(ctx, "sync.cache")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Len(t, value, len(large))
}

func TestStore_SetUsesUpsert(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `sync_kv` .* ON DUPLICATE KEY UPDATE").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, kvstore.New(db).Set(context.Background(), "sync.cache", "{}"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
