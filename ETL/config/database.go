package config

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"github.com/LilVoxy/social_metrics/ETL/store"
)

// ConnectionString builds the driver-specific DSN.
func (d DatabaseConfig) ConnectionString() (string, error) {
	if d.DSN != "" {
		return d.DSN, nil
	}

	dialect, err := store.DialectFor(d.Driver)
	if err != nil {
		return "", err
	}

	switch dialect.Name {
	case store.MySQL.Name:
		cfg := mysql.NewConfig()
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
		cfg.DBName = d.DBName
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil

	case store.Postgres.Name:
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(d.User, d.Password),
			Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
			Path:   "/" + d.DBName,
		}
		sslMode := d.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		u.RawQuery = url.Values{"sslmode": {sslMode}}.Encode()
		return u.String(), nil

	default:
		return d.DBName + "?_foreign_keys=on&_busy_timeout=5000", nil
	}
}

// ConnectDatabase opens the warehouse, verifies the connection and creates
// missing tables.
func ConnectDatabase(ctx context.Context, cfg DatabaseConfig) (*store.DB, error) {
	dsn, err := cfg.ConnectionString()
	if err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", db.Dialect.Name, store.Classify(err))
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
