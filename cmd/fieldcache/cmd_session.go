package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/biofugitive/fieldcache/internal/activity"
	"github.com/biofugitive/fieldcache/pkg/schema"
)

func newSessionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Show or change the persisted login session",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Print the session state, user, role and expiry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd.OutOrStdout(), a.session(cmd).Snapshot())
		},
	}

	var token, userJSON string
	login := &cobra.Command{
		Use:   "login",
		Short: "Store a session from a token and user obtained elsewhere",
		Long: `Stores a session valid for FIELDCACHE_SESSION_DURATION (24h by default).
A missing token or user is replaced by placeholders. Use "remote login"
to obtain both from the lookup API.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var user schema.User
			if userJSON != "" {
				if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
					return fmt.Errorf("--user must be a JSON object: %w", err)
				}
			}
			s := a.session(cmd)
			if err := s.Login(cmd.Context(), token, user); err != nil {
				return err
			}
			a.activities(cmd).Append(cmd.Context(), activity.KindLogin, activity.Overrides{})
			return printJSON(cmd.OutOrStdout(), s.Snapshot())
		},
	}
	login.Flags().StringVar(&token, "token", "", "bearer token")
	login.Flags().StringVar(&userJSON, "user", "", `user record as JSON, e.g. '{"id":"OFF-1","role":"officer"}'`)

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Erase the persisted session",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.session(cmd)
			wasLoggedIn := s.IsLoggedIn()
			if err := s.Logout(cmd.Context()); err != nil {
				return err
			}
			if wasLoggedIn {
				a.activities(cmd).Append(cmd.Context(), activity.KindLogout, activity.Overrides{})
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}

	extend := &cobra.Command{
		Use:   "extend",
		Short: "Push the expiry of an active session forward",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.session(cmd)
			if err := s.ExtendSession(cmd.Context()); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s.Snapshot())
		},
	}

	cmd.AddCommand(status, login, logout, extend)
	return cmd
}
