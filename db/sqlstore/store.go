package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/civicconnect/civic-connect-be/realtime"
	"github.com/upper/db/v4"
	"github.com/upper/db/v4/adapter/mysql"
	"github.com/upper/db/v4/adapter/sqlite"
	"go.uber.org/zap"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
)

type Options struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	// Migrate applies the bundled schema on open
	Migrate bool
	// Clock stamps created_at and updated_at, time.Now when nil
	Clock func() time.Time
}

// base is shared by every table store
type base struct {
	sess      db.Session
	publisher realtime.Publisher
	logger    *zap.Logger
	now       func() time.Time
	// forUpdate is appended to row-locking reads; sqlite locks the whole database instead
	forUpdate string
}

func (b *base) timestamp() time.Time {
	return b.now().UTC()
}

// publish notifies listeners of a committed mutation. Failures are logged
// and never undo the mutation.
func (b *base) publish(ctx context.Context, table string, eventType realtime.EventType, record interface{}) {
	if b.publisher == nil {
		return
	}
	change, err := realtime.NewChange(eventType, table, record)
	if err == nil {
		err = b.publisher.Publish(ctx, change)
	}
	if err != nil {
		b.logger.Warn("failed to publish change",
			zap.String("table", table),
			zap.String("eventType", string(eventType)),
			zap.Error(err))
	}
}

type Store struct {
	*ProfileDB
	*PostDB
	*PollDB
	*EngagementDB
	*ModerationDB
	*SocialDB
	core   *base
	sqlDB  *sql.DB
	driver string
}

func Open(ctx context.Context, opts *Options, publisher realtime.Publisher, logger *zap.Logger) (*Store, error) {
	sqlDB, err := sql.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, err
	}

	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	sqlDB.SetConnMaxIdleTime(opts.ConnMaxIdleTime)

	var sess db.Session
	forUpdate := ""
	switch opts.Driver {
	case DriverMySQL:
		sess, err = mysql.New(sqlDB)
		forUpdate = " FOR UPDATE"
	case DriverSQLite:
		if strings.Contains(opts.DSN, ":memory:") {
			// every connection would otherwise get its own empty database
			sqlDB.SetMaxOpenConns(1)
		}
		sess, err = sqlite.New(sqlDB)
	default:
		err = fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	store := newStore(opts.Driver, sqlDB, &base{
		sess:      sess,
		publisher: publisher,
		logger:    logger,
		now:       clock,
		forUpdate: forUpdate,
	})
	if opts.Migrate {
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("applying schema: %w", err)
		}
	}
	return store, nil
}

func newStore(driver string, sqlDB *sql.DB, core *base) *Store {
	return &Store{
		ProfileDB:    &ProfileDB{core},
		PostDB:       &PostDB{core},
		PollDB:       &PollDB{core},
		EngagementDB: &EngagementDB{core},
		ModerationDB: &ModerationDB{core},
		SocialDB:     &SocialDB{core},
		core:         core,
		sqlDB:        sqlDB,
		driver:       driver,
	}
}

func (s *Store) GetSQLDB() *sql.DB {
	return s.sqlDB
}

func (s *Store) Close() error {
	return s.core.sess.Close()
}
