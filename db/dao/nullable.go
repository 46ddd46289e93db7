package dao

import "database/sql"

type NullString struct {
	sql.NullString
}

// AsString returns an empty string for NULL
func (ns *NullString) AsString() string {
	if !ns.NullString.Valid {
		return ""
	}
	return ns.NullString.String
}

// NewNullString maps an empty string to NULL
func NewNullString(val string) sql.NullString {
	return sql.NullString{String: val, Valid: val != ""}
}
