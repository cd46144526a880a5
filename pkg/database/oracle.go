package database

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethpandaops/dupcheck/pkg/credential"
	"github.com/jmoiron/sqlx"
	go_ora "github.com/sijms/go-ora/v2"
	"github.com/sirupsen/logrus"
)

const defaultOraclePort = 1521

// oracleConnector uses the pure-Go go-ora driver through sqlx.
type oracleConnector struct {
	log logrus.FieldLogger
}

var _ Connector = (*oracleConnector)(nil)

// Connect implements Connector.
func (c *oracleConnector) Connect(ctx context.Context, dsn string, cred credential.Pair) (Session, error) {
	connURL, err := oracleURL(dsn, cred)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open("oracle", connURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("connecting: %w", err)
	}

	c.log.Debug("Database session opened")

	return &sqlxSession{db: db}, nil
}

type sqlxSession struct {
	db *sqlx.DB
}

// Query implements Session.
func (s *sqlxSession) Query(ctx context.Context, query string) ([][]any, error) {
	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}

	return collectRows(rows)
}

// Close implements Session.
func (s *sqlxSession) Close() error {
	return s.db.Close()
}

// oracleURL accepts an oracle:// URL, a TNS descriptor or an easy-connect
// "host[:port]/service" string. Bare tnsnames.ora aliases are not resolved.
func oracleURL(dsn string, cred credential.Pair) (string, error) {
	dsn = strings.TrimSpace(dsn)

	switch {
	case strings.HasPrefix(dsn, "oracle://"):
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parsing dsn: %w", err)
		}

		if cred.Principal != "" {
			u.User = url.UserPassword(cred.Principal, cred.Secret)
		}

		return u.String(), nil

	case strings.HasPrefix(dsn, "("):
		return go_ora.BuildJDBC(cred.Principal, cred.Secret, dsn, nil), nil

	default:
		hostPort, service, ok := strings.Cut(dsn, "/")
		if !ok || hostPort == "" || service == "" {
			return "", fmt.Errorf("invalid dsn %q, expected host[:port]/service", dsn)
		}

		host := hostPort
		port := defaultOraclePort

		if h, p, found := strings.Cut(hostPort, ":"); found {
			n, err := strconv.Atoi(p)
			if err != nil {
				return "", fmt.Errorf("invalid port %q in dsn: %w", p, err)
			}

			host, port = h, n
		}

		return go_ora.BuildUrl(host, port, service, cred.Principal, cred.Secret, nil), nil
	}
}
