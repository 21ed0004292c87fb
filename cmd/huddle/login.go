package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danhigham/huddle/internal/config"
	"github.com/danhigham/huddle/internal/domain"
)

func newLoginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				fmt.Fprint(cmd.OutOrStdout(), "Password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			client, err := a.apiClient("")
			if err != nil {
				return err
			}
			session, err := client.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			if err := config.SaveSession(a.sessionPath(), session); err != nil {
				return err
			}
			a.logger.Info("logged in", zap.String("user", session.UserID))

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", session.Name)
			return err
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when omitted)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			session, err := config.LoadSession(a.sessionPath())
			if errors.Is(err, domain.ErrNoSession) {
				_, err = fmt.Fprintln(out, "Not logged in")
				return err
			}
			if err != nil {
				return err
			}

			// The local session goes away even if the server call fails.
			client, err := a.apiClient(session.Token)
			if err == nil {
				if err := client.Logout(cmd.Context()); err != nil {
					a.logger.Warn("server logout failed", zap.Error(err))
				}
			}
			if err := config.RemoveSession(a.sessionPath()); err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, "Logged out")
			return err
		},
	}
}
