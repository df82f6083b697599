// Package engine is the embedded key-value engine backing the device caches.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/biofugitive/fieldcache/pkg/kv"
)

// DefaultNamespace holds the session and activity keys of a single device.
const DefaultNamespace = "device"

// ErrInvalidNamespace rejects names that cannot be a plain file name.
var ErrInvalidNamespace = errors.New("invalid namespace")

var namespacePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)

// ValidateNamespace checks that namespace names one file inside the data
// directory.
func ValidateNamespace(namespace string) error {
	if !namespacePattern.MatchString(namespace) || !filepath.IsLocal(namespace) ||
		namespace == "." || namespace == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidNamespace, namespace)
	}
	return nil
}

// Namespaced is the multi-tenant view of a store: every namespace is an
// independent kv.Store. Both the embedded MemStore and the remote SDK client
// implement it.
type Namespaced interface {
	// Scope pins a namespace and returns a plain kv.Store over it.
	Scope(namespace string) kv.Store

	// Namespaces lists every namespace that holds at least one key.
	Namespaces(ctx context.Context) ([]string, error)
	// Keys lists the keys stored in a namespace.
	Keys(ctx context.Context, namespace string) ([]string, error)
	// Dump returns all keys and values of a namespace.
	// Useful for migrations, exports, or backups.
	Dump(ctx context.Context, namespace string) (map[string]string, error)
}
