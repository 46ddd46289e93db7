package sqlstore

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/civicconnect/civic-connect-be/model"
	"github.com/upper/db/v4"
)

// flattenedAuthor holds the left-joined author columns; all NULL when the
// author has no profile row
type flattenedAuthor struct {
	AuthorDisplayName sql.NullString `db:"author_display_name"`
	AuthorRole        sql.NullString `db:"author_role"`
	AuthorIsVerified  sql.NullBool   `db:"author_is_verified"`
}

func authorColumns(alias string) []interface{} {
	return []interface{}{
		alias + ".display_name AS author_display_name",
		alias + ".role AS author_role",
		alias + ".is_verified AS author_is_verified",
	}
}

func (fa *flattenedAuthor) toAuthor(id string) *model.Author {
	if !fa.AuthorDisplayName.Valid {
		return nil
	}
	return &model.Author{
		Id:          id,
		DisplayName: fa.AuthorDisplayName.String,
		Role:        model.ParseRole(fa.AuthorRole.String),
		IsVerified:  fa.AuthorIsVerified.Valid && fa.AuthorIsVerified.Bool,
	}
}

func isNoRows(err error) bool {
	return errors.Is(err, db.ErrNoMoreRows) || errors.Is(err, sql.ErrNoRows)
}

func marshalJSONColumn(val interface{}) (string, error) {
	encoded, err := json.Marshal(val)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func unmarshalJSONColumn(col string, dst interface{}) error {
	if col == "" {
		return nil
	}
	return json.Unmarshal([]byte(col), dst)
}

func concatColumns(groups ...[]interface{}) []interface{} {
	var columns []interface{}
	for _, group := range groups {
		columns = append(columns, group...)
	}
	return columns
}

// columnNames converts a select column list into the []string form InsertInto expects
func columnNames(columns []interface{}) []string {
	names := make([]string, len(columns))
	for i, col := range columns {
		names[i] = col.(string)
	}
	return names
}
