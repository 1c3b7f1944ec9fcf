package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb"         // SQL Server driver
	_ "github.com/microsoft/go-mssqldb/azuread" // Azure AD support

	"github.com/ekaya-inc/ekaya-dq/pkg/adapters/datasource"
)

const defaultConnMaxIdleTime = 2 * time.Minute

// Pool wraps *sql.DB to implement datasource.PoolConnector.
type Pool struct {
	DB *sql.DB
}

// Ping verifies the connection is alive.
func (p *Pool) Ping(ctx context.Context) error {
	return p.DB.PingContext(ctx)
}

// Close closes the database handle.
func (p *Pool) Close() error {
	return p.DB.Close()
}

// GetType returns "mssql".
func (p *Pool) GetType() string {
	return "mssql"
}

// driverFor picks the database/sql driver for a DSN. DSNs that request
// Azure AD authentication (fedauth=...) need the azuresql driver.
func driverFor(dsn string) string {
	if strings.Contains(strings.ToLower(dsn), "fedauth=") {
		return "azuresql"
	}
	return "sqlserver"
}

// NewOpener returns a datasource.Opener for sqlserver:// DSNs.
func NewOpener(maxConns int32) datasource.Opener {
	return func(ctx context.Context, dsn string) (datasource.PoolConnector, error) {
		db, err := sql.Open(driverFor(dsn), dsn)
		if err != nil {
			return nil, fmt.Errorf("open sql server: %w", err)
		}
		if maxConns > 0 {
			db.SetMaxOpenConns(int(maxConns))
			db.SetMaxIdleConns(int(maxConns))
		}
		db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping sql server: %w", err)
		}
		return &Pool{DB: db}, nil
	}
}
