package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/biofugitive/fieldcache/internal/engine"
	"github.com/biofugitive/fieldcache/pkg/kv"
	"github.com/biofugitive/fieldcache/pkg/sdk"
)

var errNotEnumerable = errors.New("this backend cannot list keys; use the embedded or daemon store")

func newKVCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kv",
		Short: "Raw access to the underlying key-value store",
	}

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Print the value of a key in the current namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			val, err := a.backend.Store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), val)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write a raw string value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.backend.Store.Set(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "del <key>",
		Short: "Remove a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.backend.Store.Remove(cmd.Context(), args[0]); err != nil && !errors.Is(err, kv.ErrKeyNotFound) {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}

	keys := &cobra.Command{
		Use:   "keys [namespace]",
		Short: "List the keys of a namespace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.backend.Namespaced == nil {
				return errNotEnumerable
			}
			ns := a.cfg.Namespace
			if len(args) == 1 {
				ns = args[0]
			}
			list, err := a.backend.Namespaced.Keys(cmd.Context(), ns)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), list)
		},
	}

	namespaces := &cobra.Command{
		Use:   "namespaces",
		Short: "List namespaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.backend.Namespaced == nil {
				return errNotEnumerable
			}
			list, err := a.backend.Namespaced.Namespaces(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), list)
		},
	}

	dump := &cobra.Command{
		Use:   "dump [namespace]",
		Short: "Print every raw key and value of a namespace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.backend.Namespaced == nil {
				return errNotEnumerable
			}
			ns := a.cfg.Namespace
			if len(args) == 1 {
				ns = args[0]
			}
			data, err := a.backend.Namespaced.Dump(cmd.Context(), ns)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}

	var to string
	migrate := &cobra.Command{
		Use:   "migrate --to <addr>",
		Short: "Copy every namespace into a fieldcached daemon",
		Long: `Copies every namespace and key of the current store into the daemon at
--to. Values are copied raw, so sealed values stay sealed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.backend.Namespaced == nil {
				return errNotEnumerable
			}
			dst, err := sdk.Connect(to, sdk.ClientOptions{DisableTLS: a.cfg.DisableTLS, Logger: a.logger})
			if err != nil {
				return fmt.Errorf("connect %s: %w", to, err)
			}
			defer dst.Close()

			n, err := engine.Migrate(cmd.Context(), a.backend.Namespaced, dst)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "copied %d keys\n", n)
			return nil
		},
	}
	migrate.Flags().StringVar(&to, "to", "", "destination daemon address")
	migrate.MarkFlagRequired("to")

	cmd.AddCommand(get, set, del, keys, namespaces, dump, migrate)
	return cmd
}
