// Package supabase adapts the hosted backend (GoTrue auth, PostgREST rows,
// Storage objects and Realtime changes) to the repository ports.
package supabase

import (
	"context"
	"errors"
	"strings"

	supa "github.com/supabase-community/supabase-go"

	"lens-backend/pkg/auth"
)

// Config locates the project.
type Config struct {
	URL     string
	AnonKey string
	Schema  string
	Bucket  string
}

// Client builds per-caller API clients so row-level security is evaluated
// as the signed-in user rather than as the service.
type Client struct {
	cfg Config
}

// NewClient validates cfg by building one anonymous client.
func NewClient(cfg Config) (*Client, error) {
	cfg.URL = strings.TrimSuffix(cfg.URL, "/")
	if cfg.Schema == "" {
		cfg.Schema = "public"
	}
	c := &Client{cfg: cfg}
	if _, err := c.ForToken(""); err != nil {
		return nil, err
	}
	return c, nil
}

// Config returns the project settings.
func (c *Client) Config() Config {
	return c.cfg
}

// ForToken returns a client acting with accessToken, or as the anonymous
// role when the token is empty.
func (c *Client) ForToken(accessToken string) (*supa.Client, error) {
	opts := &supa.ClientOptions{Schema: c.cfg.Schema}
	if accessToken != "" {
		opts.Headers = map[string]string{"Authorization": "Bearer " + accessToken}
	}
	client, err := supa.NewClient(c.cfg.URL, c.cfg.AnonKey, opts)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// ForContext acts as the caller stored in ctx, or anonymously.
func (c *Client) ForContext(ctx context.Context) (*supa.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	token := ""
	if u, err := auth.GetUserFromContext(ctx); err == nil {
		token = u.AccessToken
	} else if !errors.Is(err, auth.ErrNoUser) {
		return nil, err
	}
	return c.ForToken(token)
}
