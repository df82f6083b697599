package engine

import (
	"context"
	"fmt"
)

// Migrate copies every namespace and key from src to dst.
// This works for:
// - Embedded -> Remote (moving a device cache onto a daemon)
// - Remote -> Embedded (backup / offline)
func Migrate(ctx context.Context, src, dst Namespaced) (int, error) {
	namespaces, err := src.Namespaces(ctx)
	if err != nil {
		return 0, fmt.Errorf("list namespaces: %w", err)
	}

	copied := 0
	for _, ns := range namespaces {
		data, err := src.Dump(ctx, ns)
		if err != nil {
			return copied, fmt.Errorf("dump namespace %s: %w", ns, err)
		}

		target := dst.Scope(ns)
		for k, v := range data {
			if err := target.Set(ctx, k, v); err != nil {
				return copied, fmt.Errorf("set key %s in namespace %s: %w", k, ns, err)
			}
			copied++
		}
	}

	return copied, nil
}
