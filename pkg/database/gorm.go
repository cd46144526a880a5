package database

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ethpandaops/dupcheck/pkg/credential"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// gormConnector serves the drivers gorm ships dialectors for.
type gormConnector struct {
	log    logrus.FieldLogger
	driver string
}

var _ Connector = (*gormConnector)(nil)

// Connect opens a dedicated single-connection handle.
func (c *gormConnector) Connect(ctx context.Context, dsn string, cred credential.Pair) (Session, error) {
	var dialector gorm.Dialector

	switch c.driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(postgresDSN(dsn, cred))
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:               logger.Discard,
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying db: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()

		return nil, fmt.Errorf("connecting: %w", err)
	}

	c.log.Debug("Database session opened")

	return &gormSession{db: db}, nil
}

type gormSession struct {
	db *gorm.DB
}

// Query implements Session.
func (s *gormSession) Query(ctx context.Context, query string) ([][]any, error) {
	rows, err := s.db.WithContext(ctx).Raw(query).Rows()
	if err != nil {
		return nil, err
	}

	return collectRows(wrapRows(rows))
}

// Close implements Session.
func (s *gormSession) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// postgresDSN adds credentials to a URL or key/value DSN. Credentials
// already present in the DSN are replaced.
func postgresDSN(dsn string, cred credential.Pair) string {
	if cred.Principal == "" {
		return dsn
	}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err == nil {
			u.User = url.UserPassword(cred.Principal, cred.Secret)

			return u.String()
		}
	}

	quote := func(s string) string {
		s = strings.ReplaceAll(s, `\`, `\\`)
		s = strings.ReplaceAll(s, `'`, `\'`)

		return "'" + s + "'"
	}

	return fmt.Sprintf("%s user=%s password=%s", dsn, quote(cred.Principal), quote(cred.Secret))
}
