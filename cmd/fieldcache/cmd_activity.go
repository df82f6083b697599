package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/biofugitive/fieldcache/internal/activity"
	"github.com/biofugitive/fieldcache/pkg/schema"
)

func newActivityCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "activity",
		Aliases: []string{"activities"},
		Short:   "Read or append the recent-activity log",
	}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List activities, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			items := a.activities(cmd).List()
			if asJSON {
				return printJSON(cmd.OutOrStdout(), items)
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No recent activity.")
				return nil
			}
			now := time.Now()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, it := range items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", activity.FormatTimeAgo(it.Timestamp, now), it.Color, it.Type, it.Message)
			}
			return tw.Flush()
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "print raw records")

	var message, color, details string
	add := &cobra.Command{
		Use:   "add <KIND>",
		Short: "Append an activity of the given kind",
		Long: `Appends an activity. Known kinds: SCAN_SUCCESS, SCAN_FAILED, MATCH_FOUND,
NO_MATCH, DOCUMENT_VIEWED, LOGIN, LOGOUT, FORENSIC_ANALYSIS, CAMERA_ACCESS,
SEARCH_PERFORMED. Other kinds are recorded with generic defaults.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o := activity.Overrides{Message: message, Color: schema.Color(color)}
			if details != "" {
				if err := json.Unmarshal([]byte(details), &o.Details); err != nil {
					return fmt.Errorf("--details must be a JSON object: %w", err)
				}
			}
			items, durability := a.activities(cmd).Append(cmd.Context(), activity.Kind(args[0]), o)
			if durability != activity.Persisted {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: activity was not persisted")
			}
			return printJSON(cmd.OutOrStdout(), items[0])
		},
	}
	add.Flags().StringVarP(&message, "message", "m", "", "override the default message")
	add.Flags().StringVar(&color, "color", "", "override the color tag (success, danger, warning, info, primary)")
	add.Flags().StringVar(&details, "details", "", "extra JSON object stored with the record")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Erase the activity log",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.activities(cmd).Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}

	kinds := &cobra.Command{
		Use:   "kinds",
		Short: "Print the known kinds and their defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd.OutOrStdout(), activity.Kinds())
		},
	}

	cmd.AddCommand(list, add, clearCmd, kinds)
	return cmd
}

func newRecentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Recently viewed person records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd.OutOrStdout(), a.recent(cmd).List())
		},
	}

	touch := &cobra.Command{
		Use:   "touch <person-id> [name]",
		Short: "Mark a person record as viewed",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := schema.PersonRef{PersonID: args[0]}
			if len(args) > 1 {
				ref.Name = args[1]
			}
			list := a.recent(cmd).Touch(cmd.Context(), ref)
			a.activities(cmd).Append(cmd.Context(), activity.KindDocumentViewed, activity.Overrides{
				Details: map[string]any{"person_id": ref.PersonID},
			})
			return printJSON(cmd.OutOrStdout(), list)
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget every recently viewed person",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.recent(cmd).Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}

	cmd.AddCommand(touch, clearCmd)
	return cmd
}
