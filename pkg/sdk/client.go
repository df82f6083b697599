// Package sdk provides the client-side library for reaching a device cache
// store. It supports remote daemons via TCP/TLS, Redis, and local embedded
// mode behind the same kv.Store contract.
package sdk

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/biofugitive/fieldcache/pkg/kv"
)

const maxAttempts = 3

// ClientOptions tunes Connect.
type ClientOptions struct {
	// DisableTLS falls back to plain TCP.
	DisableTLS bool
	Logger     *zap.Logger
}

// Client is a remote client for a fieldcached daemon.
// It implements engine.Namespaced.
type Client struct {
	addr   string
	opts   ClientOptions
	conn   net.Conn
	reader *bufio.Reader
	mu     sync.Mutex // Protects concurrent access to the connection
}

// Connect establishes a TLS-encrypted connection to a remote daemon.
func Connect(addr string, opts ClientOptions) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	c := &Client{addr: addr, opts: opts}
	if err := c.reconnect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) reconnect() error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 60 * time.Second,
	}

	var conn net.Conn
	var err error
	if c.opts.DisableTLS {
		conn, err = dialer.Dial("tcp", c.addr)
	} else {
		config := &tls.Config{
			InsecureSkipVerify: true, // self-signed certs for internal traffic
		}
		conn, err = tls.DialWithDialer(dialer, "tcp", c.addr, config)
	}
	if err != nil {
		return err
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

// sendAndReceive runs one command, reconnecting with backoff on transport
// errors. Server-side ERR replies are not retried.
func (c *Client) sendAndReceive(ctx context.Context, cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	for i := 0; i < maxAttempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		if c.conn == nil {
			if reconnectErr := c.reconnect(); reconnectErr != nil {
				err = fmt.Errorf("reconnect failed: %w", reconnectErr)
				time.Sleep(time.Duration(i*100) * time.Millisecond)
				continue
			}
		}

		deadline := time.Now().Add(30 * time.Second)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		c.conn.SetDeadline(deadline)

		var resp string
		if _, err = fmt.Fprint(c.conn, cmd+"\n"); err == nil {
			if resp, err = c.reader.ReadString('\n'); err == nil {
				resp = strings.TrimSpace(resp)
				if msg, isErr := strings.CutPrefix(resp, "ERR "); isErr {
					if msg == kv.ErrKeyNotFound.Error() {
						return "", kv.ErrKeyNotFound
					}
					return "", errors.New(msg)
				}
				return resp, nil
			}
		}

		c.opts.Logger.Warn("store request failed, reconnecting",
			zap.Int("attempt", i+1), zap.String("addr", c.addr), zap.Error(err))
		if reconnectErr := c.reconnect(); reconnectErr != nil {
			c.opts.Logger.Warn("reconnect attempt failed", zap.Error(reconnectErr))
		}

		// exponential backoff
		time.Sleep(time.Duration((i+1)*200) * time.Millisecond)
	}

	return "", fmt.Errorf("failed after %d attempts. last error: %w", maxAttempts, err)
}

func decodeOK[T any](resp string) (T, error) {
	var out T
	err := json.Unmarshal([]byte(strings.TrimPrefix(resp, "OK ")), &out)
	return out, err
}

// Ping checks the daemon is answering.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.sendAndReceive(ctx, "PING")
	if err != nil {
		return err
	}
	if resp != "PONG" {
		return fmt.Errorf("unexpected ping reply %q", resp)
	}
	return nil
}

func (c *Client) get(ctx context.Context, namespace, key string) (string, error) {
	resp, err := c.sendAndReceive(ctx, fmt.Sprintf("GET %s %s", namespace, key))
	if err != nil {
		return "", err
	}
	return decodeOK[string](resp)
}

func (c *Client) set(ctx context.Context, namespace, key, val string) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}
	_, err = c.sendAndReceive(ctx, fmt.Sprintf("SET %s %s %s", namespace, key, raw))
	return err
}

func (c *Client) remove(ctx context.Context, namespace, key string) error {
	_, err := c.sendAndReceive(ctx, fmt.Sprintf("DEL %s %s", namespace, key))
	return err
}

func (c *Client) Namespaces(ctx context.Context) ([]string, error) {
	resp, err := c.sendAndReceive(ctx, "NAMESPACES")
	if err != nil {
		return nil, err
	}
	return decodeOK[[]string](resp)
}

func (c *Client) Keys(ctx context.Context, namespace string) ([]string, error) {
	resp, err := c.sendAndReceive(ctx, "KEYS "+namespace)
	if err != nil {
		return nil, err
	}
	return decodeOK[[]string](resp)
}

func (c *Client) Dump(ctx context.Context, namespace string) (map[string]string, error) {
	resp, err := c.sendAndReceive(ctx, "DUMP "+namespace)
	if err != nil {
		return nil, err
	}
	return decodeOK[map[string]string](resp)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	fmt.Fprintln(c.conn, "QUIT")
	err := c.conn.Close()
	c.conn = nil
	return err
}

// --- Scopes ---

// Scope returns a kv.Store pinned to namespace.
func (c *Client) Scope(namespace string) kv.Store {
	return &RemoteScope{client: c, namespace: namespace}
}

// RemoteScope is a scoped client that "remembers" its namespace.
type RemoteScope struct {
	client    *Client
	namespace string
}

func (s *RemoteScope) Get(ctx context.Context, key string) (string, error) {
	return s.client.get(ctx, s.namespace, key)
}

func (s *RemoteScope) Set(ctx context.Context, key, val string) error {
	return s.client.set(ctx, s.namespace, key, val)
}

func (s *RemoteScope) Remove(ctx context.Context, key string) error {
	return s.client.remove(ctx, s.namespace, key)
}
