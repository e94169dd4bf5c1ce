package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"techdocs-rag-platform/internal/config"
	"techdocs-rag-platform/internal/logger"
)

// Client wraps the Neo4j driver. A nil Client (or nil Driver) means the
// graph store is not configured; callers degrade to retrieval without
// graph expansion.
type Client struct {
	Driver   neo4j.DriverWithContext
	Database string
}

// NewClient connects to Neo4j using the application config. Returns
// (nil, nil) when NEO4J_URI is unset so the caller can run without a
// graph store.
func NewClient(cfg *config.Config) (*Client, error) {
	uri := strings.TrimSpace(cfg.Neo4jURI)
	if uri == "" {
		return nil, nil
	}

	timeout := time.Duration(cfg.Neo4jTimeoutSecs) * time.Second

	auth := neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, "")
	driver, err := neo4j.NewDriverWithContext(uri, auth, func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = cfg.Neo4jMaxPoolSize
		c.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("graph: init driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("graph: verify connectivity: %w", err)
	}

	logger.Info("Connected to Neo4j", "uri", uri, "database", cfg.Neo4jDatabase)

	return &Client{
		Driver:   driver,
		Database: cfg.Neo4jDatabase,
	}, nil
}

// Available reports whether a usable graph connection exists.
func (c *Client) Available() bool {
	return c != nil && c.Driver != nil
}

func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.Driver == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := c.Driver.Close(ctx)
	c.Driver = nil
	return err
}

func (c *Client) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return c.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: c.Database,
	})
}
