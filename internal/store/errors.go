package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// ErrUnreachable 数据库不可达；导入遇到此错误时中止剩余批次
var ErrUnreachable = errors.New("store unreachable")

// ErrConstraint 数据违反约束（重试无效）
var ErrConstraint = errors.New("constraint violation")

// IsUnreachable 判断错误是否为连接层故障
func IsUnreachable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnreachable) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && !netErr.Timeout() {
		return true
	}
	return false
}

// IsPermanent 判断错误重试也不会成功（约束冲突、数据格式、SQL 错误）
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrConstraint) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "22", // data_exception
			"23", // integrity_constraint_violation
			"42": // syntax_error_or_access_rule_violation
			return true
		}
		return false
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code {
		case sqlite3.ErrConstraint, sqlite3.ErrMismatch, sqlite3.ErrError:
			return true
		}
	}
	return false
}

// isIgnorableSchemaError 重复建表等可忽略的错误
func isIgnorableSchemaError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42P07", // duplicate_table
			"42710", // duplicate_object
			"42701": // duplicate_column
			return true
		}
		return false
	}
	return strings.Contains(err.Error(), "already exists")
}
