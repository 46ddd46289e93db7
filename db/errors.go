package db

import (
	"errors"
	"regexp"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

const mysqlDupEntry = 1062

var dupKeyRegex = regexp.MustCompile(`for key '([^']+)'`)

// IsDupKeyErr reports a unique constraint violation from either supported driver
func IsDupKeyErr(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDupEntry
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// GetDupKey returns the violated key name for mysql errors, empty otherwise
func GetDupKey(err error) string {
	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) {
		return ""
	}
	match := dupKeyRegex.FindStringSubmatch(mysqlErr.Message)
	if len(match) < 2 {
		return ""
	}
	return match[1]
}

// ErrNotFound is returned by mutations whose target row does not exist
var ErrNotFound = errors.New("record not found")
