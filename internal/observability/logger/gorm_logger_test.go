package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("SELECT * FROM products"))
	assert.Equal(t, "UPDATE", operationFromSQL("UPDATE purchase_requests SET status = 'success'"))
	assert.Equal(t, "DELETE", operationFromSQL("  delete from cart_items where user_id = ?"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}

func TestTableFromSQL(t *testing.T) {
	assert.Equal(t, "cart_items", tableFromSQL("INSERT INTO cart_items (user_id) VALUES (?)"))
	assert.Equal(t, "prices", tableFromSQL(`SELECT id FROM "prices" WHERE active = true`))
	assert.Equal(t, "emissions", tableFromSQL("UPDATE emissions SET total_offset = total_offset + ?"))
	assert.Equal(t, "", tableFromSQL("SELECT 1"))
}

func TestGormLoggerSkipsRecordNotFound(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	l := NewGormLogger(DefaultGormLoggerConfig())
	query := func() (string, int64) { return "SELECT * FROM products WHERE id = ?", 0 }

	l.Trace(context.Background(), time.Now(), query, gormlogger.ErrRecordNotFound)
	assert.Equal(t, 0, logs.Len())

	l.Trace(context.Background(), time.Now(), query, errors.New("connection reset"))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "products", entry.ContextMap()["table"])
	assert.Equal(t, "SELECT", entry.ContextMap()["operation"])
}
