package sqlstore

import (
	"context"
	"fmt"
	"strings"
)

type tableIndex struct {
	name    string
	columns string
}

type tableSchema struct {
	name    string
	columns string
	indexes []tableIndex
}

// tables is shared by both drivers. Unique keys are part of the column list
// so mysql and sqlite enforce the same constraints.
var tables = []tableSchema{
	{
		name: "profiles",
		columns: `	id VARCHAR(128) PRIMARY KEY,
	display_name VARCHAR(255) NOT NULL,
	email VARCHAR(320) NOT NULL DEFAULT '',
	role VARCHAR(16) NOT NULL DEFAULT 'citizen',
	is_verified BOOLEAN NOT NULL DEFAULT FALSE,
	bio VARCHAR(1024) NOT NULL DEFAULT '',
	location VARCHAR(255) NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL`,
	},
	{
		name: "posts",
		columns: `	id VARCHAR(36) PRIMARY KEY,
	author_id VARCHAR(128) NOT NULL,
	content TEXT NOT NULL,
	media_urls TEXT NOT NULL,
	category VARCHAR(32) NOT NULL DEFAULT 'general',
	post_type VARCHAR(32) NOT NULL DEFAULT 'opinion',
	parent_id VARCHAR(36) NULL,
	like_count INTEGER NOT NULL DEFAULT 0,
	reply_count INTEGER NOT NULL DEFAULT 0,
	repost_count INTEGER NOT NULL DEFAULT 0,
	flag_count INTEGER NOT NULL DEFAULT 0,
	status VARCHAR(16) NOT NULL DEFAULT 'active',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL`,
		indexes: []tableIndex{
			{"idx_posts_parent", "parent_id"},
			{"idx_posts_status_created", "status, created_at"},
		},
	},
	{
		name: "polls",
		columns: `	id VARCHAR(36) PRIMARY KEY,
	creator_id VARCHAR(128) NOT NULL,
	question TEXT NOT NULL,
	options TEXT NOT NULL,
	total_votes INTEGER NOT NULL DEFAULT 0,
	status VARCHAR(16) NOT NULL DEFAULT 'active',
	expires_at DATETIME NULL,
	created_at DATETIME NOT NULL`,
	},
	{
		name: "votes",
		columns: `	id VARCHAR(36) PRIMARY KEY,
	poll_id VARCHAR(36) NOT NULL,
	voter_id VARCHAR(128) NOT NULL,
	option_id VARCHAR(36) NOT NULL,
	created_at DATETIME NOT NULL,
	UNIQUE (poll_id, voter_id)`,
	},
	{
		name: "likes",
		columns: `	id VARCHAR(36) PRIMARY KEY,
	post_id VARCHAR(36) NOT NULL,
	user_id VARCHAR(128) NOT NULL,
	created_at DATETIME NOT NULL,
	UNIQUE (post_id, user_id)`,
	},
	{
		name: "flags",
		columns: `	id VARCHAR(36) PRIMARY KEY,
	target_type VARCHAR(8) NOT NULL,
	target_id VARCHAR(36) NOT NULL,
	reporter_id VARCHAR(128) NOT NULL,
	reason TEXT NOT NULL,
	status VARCHAR(16) NOT NULL DEFAULT 'pending',
	reviewed_by VARCHAR(128) NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	UNIQUE (target_type, target_id, reporter_id)`,
	},
	{
		name: "follows",
		columns: `	follower_id VARCHAR(128) NOT NULL,
	following_id VARCHAR(128) NOT NULL,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (follower_id, following_id)`,
	},
	{
		name: "notifications",
		columns: `	id VARCHAR(36) PRIMARY KEY,
	user_id VARCHAR(128) NOT NULL,
	kind VARCHAR(16) NOT NULL,
	actor_id VARCHAR(128) NOT NULL,
	target_id VARCHAR(36) NOT NULL,
	message VARCHAR(512) NOT NULL,
	is_read BOOLEAN NOT NULL DEFAULT FALSE,
	created_at DATETIME NOT NULL`,
		indexes: []tableIndex{
			{"idx_notifications_user", "user_id, created_at"},
		},
	},
}

// schemaStatements renders the schema for driver. mysql has no
// CREATE INDEX IF NOT EXISTS, so its indexes are declared inline.
func schemaStatements(driver string) ([]string, error) {
	var stmts []string
	for _, table := range tables {
		switch driver {
		case DriverMySQL:
			columns := table.columns
			for _, index := range table.indexes {
				columns += fmt.Sprintf(",\n\tINDEX %v (%v)", index.name, index.columns)
			}
			stmts = append(stmts, fmt.Sprintf(
				"CREATE TABLE IF NOT EXISTS %v (\n%v\n) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",
				table.name, columns))
		case DriverSQLite:
			stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %v (\n%v\n)", table.name, table.columns))
			for _, index := range table.indexes {
				stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %v ON %v (%v)",
					index.name, table.name, index.columns))
			}
		default:
			return nil, fmt.Errorf("unsupported database driver %q", driver)
		}
	}
	return stmts, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	stmts, err := schemaStatements(s.driver)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := s.core.sess.SQL().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%v: %w", strings.SplitN(stmt, "\n", 2)[0], err)
		}
	}
	return nil
}
