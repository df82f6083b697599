// Package server exposes an embedded engine over a line-oriented TCP
// protocol so devices can share a fieldcached daemon.
package server

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/biofugitive/fieldcache/internal/engine"
	"github.com/biofugitive/fieldcache/pkg/kv"
)

const (
	maxConnections = 100
	connLifetime   = 5 * time.Minute
	commandTimeout = 30 * time.Second
)

// ErrServerClosed is returned by Listen after Stop.
var ErrServerClosed = errors.New("server closed")

type Router struct {
	store  engine.Namespaced
	cert   *tls.Certificate
	logger *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

func NewRouter(s engine.Namespaced, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{store: s, logger: logger, conns: make(map[net.Conn]struct{})}
}

// SetCertificate sets the TLS certificate for the router
func (r *Router) SetCertificate(cert tls.Certificate) {
	r.cert = &cert
}

// Addr returns the bound address, or nil before Listen.
func (r *Router) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Listen starts the TCP server and blocks until Stop.
func (r *Router) Listen(port string) error {
	var listener net.Listener
	var err error

	if r.cert != nil {
		config := &tls.Config{Certificates: []tls.Certificate{*r.cert}, MinVersion: tls.VersionTLS12}
		listener, err = tls.Listen("tcp", ":"+port, config)
	} else {
		listener, err = net.Listen("tcp", ":"+port)
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		listener.Close()
		return ErrServerClosed
	}
	r.listener = listener
	r.mu.Unlock()

	semaphore := make(chan struct{}, maxConnections)

	for {
		conn, err := listener.Accept()
		if err != nil {
			r.mu.Lock()
			closed := r.closed
			r.mu.Unlock()
			if closed {
				return ErrServerClosed
			}
			r.logger.Warn("accept failed", zap.Error(err))
			continue
		}

		// Aggressive timeouts for light traffic prevent resource exhaustion
		conn.SetDeadline(time.Now().Add(connLifetime))

		r.mu.Lock()
		r.conns[conn] = struct{}{}
		r.mu.Unlock()

		r.wg.Add(1)
		go func(c net.Conn) {
			defer r.wg.Done()
			semaphore <- struct{}{}
			defer func() {
				<-semaphore
				c.Close()
				r.mu.Lock()
				delete(r.conns, c)
				r.mu.Unlock()
			}()
			r.handleConnection(c)
		}(conn)
	}
}

// Stop closes the listener and every open connection, then waits for the
// connection handlers to return.
func (r *Router) Stop() error {
	r.mu.Lock()
	r.closed = true
	l := r.listener
	for c := range r.conns {
		c.Close()
	}
	r.mu.Unlock()

	var err error
	if l != nil {
		err = l.Close()
	}
	r.wg.Wait()
	return err
}

func (r *Router) handleConnection(conn net.Conn) {
	reader := bufio.NewReader(conn)

	for {
		// Set a deadline for the next command
		conn.SetReadDeadline(time.Now().Add(commandTimeout))

		line, err := reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.logger.Debug("connection closed", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "QUIT") {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		resp := r.execute(ctx, line)
		cancel()
		fmt.Fprintln(conn, resp)
	}
}

// execute runs one command line and returns the response line.
func (r *Router) execute(ctx context.Context, line string) string {
	parts := strings.SplitN(line, " ", 4)
	command := strings.ToUpper(parts[0])
	args := parts[1:]

	switch command {
	case "GET", "SET", "DEL", "KEYS", "DUMP":
		if len(args) > 0 && engine.ValidateNamespace(args[0]) != nil {
			return "ERR " + engine.ErrInvalidNamespace.Error()
		}
	}

	switch command {
	case "PING":
		return "PONG"

	case "GET":
		if len(args) != 2 {
			return "ERR usage: GET <namespace> <key>"
		}
		val, err := r.store.Scope(args[0]).Get(ctx, args[1])
		if err != nil {
			return errLine(err)
		}
		return okJSON(val)

	case "SET":
		if len(args) != 3 {
			return "ERR usage: SET <namespace> <key> <json string>"
		}
		var val string
		if err := json.Unmarshal([]byte(args[2]), &val); err != nil {
			return "ERR value must be a JSON string"
		}
		if err := r.store.Scope(args[0]).Set(ctx, args[1], val); err != nil {
			return errLine(err)
		}
		return "OK"

	case "DEL":
		if len(args) != 2 {
			return "ERR usage: DEL <namespace> <key>"
		}
		if err := r.store.Scope(args[0]).Remove(ctx, args[1]); err != nil {
			return errLine(err)
		}
		return "OK"

	case "KEYS":
		if len(args) != 1 {
			return "ERR usage: KEYS <namespace>"
		}
		list, err := r.store.Keys(ctx, args[0])
		if err != nil {
			return errLine(err)
		}
		return okJSON(list)

	case "NAMESPACES":
		list, err := r.store.Namespaces(ctx)
		if err != nil {
			return errLine(err)
		}
		return okJSON(list)

	case "DUMP":
		if len(args) != 1 {
			return "ERR usage: DUMP <namespace>"
		}
		data, err := r.store.Dump(ctx, args[0])
		if err != nil {
			return errLine(err)
		}
		return okJSON(data)
	}

	return "ERR unknown command " + command
}

func okJSON(v any) string {
	res, err := json.Marshal(v)
	if err != nil {
		return "ERR internal error"
	}
	return "OK " + string(res)
}

func errLine(err error) string {
	if errors.Is(err, kv.ErrKeyNotFound) {
		return "ERR " + kv.ErrKeyNotFound.Error()
	}
	if errors.Is(err, engine.ErrInvalidNamespace) {
		return "ERR " + engine.ErrInvalidNamespace.Error()
	}
	return "ERR " + strings.ReplaceAll(err.Error(), "\n", " ")
}
