package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/biofugitive/fieldcache/internal/activity"
	"github.com/biofugitive/fieldcache/internal/remote"
	"github.com/biofugitive/fieldcache/internal/session"
)

func (a *app) remote(s *session.Cache) *remote.Client {
	c := remote.New(a.cfg.APIBaseURL, a.cfg.APITimeout, s)
	c.Logger = a.logger
	return c
}

// Face outcomes are not in the activity catalogue and render with the
// fallback template plus an explicit message.
const (
	kindFaceMatchFound activity.Kind = "FACE_MATCH_FOUND"
	kindFaceNoMatch    activity.Kind = "FACE_NO_MATCH"
)

func (a *app) finishMatch(cmd *cobra.Command, s *session.Cache, res remote.MatchResult) error {
	if err := s.ExtendSession(cmd.Context()); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: session not extended:", err)
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func newRemoteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Call the remote lookup API with the cached session",
	}

	var password string
	login := &cobra.Command{
		Use:   "login <user-id>",
		Short: "Log in against the API and cache the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("FIELDCACHE_PASSWORD")
			}
			s := a.session(cmd)
			res, err := a.remote(s).Login(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			if err := s.Login(cmd.Context(), res.Token, res.User); err != nil {
				return err
			}
			a.activities(cmd).Append(cmd.Context(), activity.KindLogin, activity.Overrides{})
			if res.Message != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), res.Message)
			}
			return printJSON(cmd.OutOrStdout(), s.Snapshot())
		},
	}
	login.Flags().StringVarP(&password, "password", "p", "", "password (or FIELDCACHE_PASSWORD)")

	me := &cobra.Command{
		Use:   "me",
		Short: "Ask the API who the cached token belongs to",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.session(cmd)
			if !s.IsLoggedIn() {
				return fmt.Errorf("not logged in")
			}
			user, err := a.remote(s).Me(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), user)
		},
	}

	var face bool
	match := &cobra.Command{
		Use:   "match <image>",
		Short: "Submit a fingerprint image (or a face photo with --face) to the matcher",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			s := a.session(cmd)
			log := a.activities(cmd)
			client := a.remote(s)
			image := base64.StdEncoding.EncodeToString(raw)

			if face {
				res, err := client.MatchFace(cmd.Context(), image, filepath.Base(args[0]))
				if err != nil {
					log.Append(cmd.Context(), activity.KindScanFailed, activity.Overrides{
						Message: "Face matching failed - " + err.Error(),
					})
					return err
				}
				if res.MatchFound {
					log.Append(cmd.Context(), kindFaceMatchFound, activity.Overrides{
						Message: fmt.Sprintf("Match found: %s (Confidence: %g%%)", res.PersonName(), res.Confidence),
					})
				} else {
					log.Append(cmd.Context(), kindFaceNoMatch, activity.Overrides{Message: "No face match found"})
				}
				return a.finishMatch(cmd, s, res)
			}

			res, err := client.MatchFingerprint(cmd.Context(), image, filepath.Base(args[0]))
			if err != nil {
				log.Append(cmd.Context(), activity.KindScanFailed, activity.Overrides{
					Message: "Fingerprint matching failed - " + err.Error(),
				})
				return err
			}
			if res.MatchFound {
				log.Append(cmd.Context(), activity.KindMatchFound, activity.Overrides{
					Message: fmt.Sprintf("Match found: %s (Score: %g)", res.PersonName(), res.Score),
				})
			} else {
				log.Append(cmd.Context(), activity.KindNoMatch, activity.Overrides{Message: "No fingerprint match found"})
			}
			return a.finishMatch(cmd, s, res)
		},
	}
	match.Flags().BoolVar(&face, "face", false, "treat the image as a face photo")

	cmd.AddCommand(login, me, match)
	return cmd
}
