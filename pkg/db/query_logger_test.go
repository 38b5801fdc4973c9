package db

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

func TestQueryLoggerReportsSlowAndFailedStatements(t *testing.T) {
	buf := &bytes.Buffer{}
	ql := newQueryLogger(logger.New(logger.Options{ServiceName: "test", Output: buf, Format: "json"}), 50*time.Millisecond)
	ctx := context.Background()
	stmt := func() (string, int64) { return "SELECT 1", 1 }

	ql.Trace(ctx, time.Now(), stmt, nil)
	ql.Trace(ctx, time.Now(), stmt, gorm.ErrRecordNotFound)
	ql.Trace(ctx, time.Now(), stmt, &pgconn.PgError{Code: "55P03"})
	if buf.Len() != 0 {
		t.Fatalf("expected fast, not-found and lock conflict to stay quiet, got %s", buf.String())
	}

	ql.Trace(ctx, time.Now().Add(-time.Second), stmt, nil)
	if !bytes.Contains(buf.Bytes(), []byte("db.query_slow")) {
		t.Fatalf("expected slow query warning, got %s", buf.String())
	}

	buf.Reset()
	ql.Trace(ctx, time.Now(), stmt, errors.New("syntax error"))
	if !bytes.Contains(buf.Bytes(), []byte("db.query_failed")) || !bytes.Contains(buf.Bytes(), []byte("SELECT 1")) {
		t.Fatalf("expected failure with sql, got %s", buf.String())
	}

	buf.Reset()
	ql.LogMode(gormlogger.Silent).Trace(ctx, time.Now(), stmt, errors.New("syntax error"))
	if buf.Len() != 0 {
		t.Fatalf("expected silent mode to drop everything, got %s", buf.String())
	}
}
