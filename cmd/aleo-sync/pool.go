package main

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/octobees/aleo-sync/internal/browser"
	"github.com/octobees/aleo-sync/internal/config"
	"github.com/octobees/aleo-sync/internal/database"
)

// openPool connects using DATABASE_URL, or a DSN assembled from the DB_*
// variables when it is unset.
func openPool(ctx context.Context, db config.DatabaseConfig) (*pgxpool.Pool, error) {
	dsn := db.URL
	if dsn == "" {
		built, err := database.BuildDSN(database.DSNParts{
			Host:     db.Host,
			Port:     db.Port,
			Name:     db.Name,
			User:     db.User,
			Password: db.Password,
			SSLMode:  db.SSLMode,
		})
		if err != nil {
			return nil, err
		}
		dsn = built
	}

	pool, err := database.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("connected to database")
	return pool, nil
}

// Browser engines accepted by --browser.
const (
	browserChrome = "chrome"
	browserHTTP   = "http"
)

// openBrowser starts the requested engine. The returned close func is never nil.
func openBrowser(ctx context.Context, kind string, crawl config.CrawlConfig) (browser.Browser, func(), error) {
	switch kind {
	case browserChrome, "":
		chrome, err := browser.NewChrome(ctx, browser.ChromeConfig{
			Headless:    crawl.Headless,
			PageTimeout: crawl.PageTimeout,
			UserAgent:   crawl.UserAgent,
			ExecPath:    crawl.ChromePath,
		})
		if err != nil {
			return nil, func() {}, err
		}
		return chrome, chrome.Close, nil
	case browserHTTP:
		client := &http.Client{Timeout: crawl.PageTimeout}
		return browser.NewHTTP(client, crawl.UserAgent), func() {}, nil
	default:
		return nil, func() {}, eris.Errorf("unknown browser %q (want %s or %s)", kind, browserChrome, browserHTTP)
	}
}
