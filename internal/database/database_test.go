package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T, monitorPings bool) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(monitorPings))
	require.NoError(t, err)

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), gormConfig("error"))
	require.NoError(t, err)

	t.Cleanup(func() { sqlDB.Close() })
	return gormDB, mock
}

func TestHealth(t *testing.T) {
	db, mock := setupTestDB(t, true)

	mock.ExpectPing()
	assert.NoError(t, Health(context.Background(), db))

	mock.ExpectPing().WillReturnError(errors.New("gone"))
	assert.Error(t, Health(context.Background(), db))

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Error(t, Health(context.Background(), nil))
}

func TestCheckTables(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		db, mock := setupTestDB(t, false)
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM information_schema.tables").
			WithArgs("shop_access").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		missing, err := CheckTables(db)
		require.NoError(t, err)
		assert.Empty(t, missing)
	})

	t.Run("missing", func(t *testing.T) {
		db, mock := setupTestDB(t, false)
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM information_schema.tables").
			WithArgs("shop_access").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		missing, err := CheckTables(db)
		require.NoError(t, err)
		assert.Equal(t, []string{"shop_access"}, missing)
	})

	t.Run("query error", func(t *testing.T) {
		db, mock := setupTestDB(t, false)
		mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("denied"))

		_, err := CheckTables(db)
		assert.Error(t, err)
	})
}

func TestGetLogLevel(t *testing.T) {
	assert.Equal(t, logger.Info, getLogLevel("debug"))
	assert.Equal(t, logger.Warn, getLogLevel("info"))
	assert.Equal(t, logger.Error, getLogLevel("warn"))
	assert.Equal(t, logger.Warn, getLogLevel("unknown"))
}
