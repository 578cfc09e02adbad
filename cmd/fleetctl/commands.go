package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goliatone/go-fleet-auth"
	"github.com/goliatone/go-fleet-auth/console"
	"github.com/goliatone/go-print"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the fleet console",
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "Listen address (default: server.addr)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = a.cfg.Server.Addr
	}

	task := auth.Bootstrap(ctx, a.store)

	srv, err := console.New(a.store, a.guard(task),
		console.WithFormKey([]byte(a.cfg.Server.FormKey), a.cfg.Server.FormMaxAge),
		console.WithLogger(logrusLogger{a.log.WithField("component", "console")}),
	)
	if err != nil {
		return fmt.Errorf("build console: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down console")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the fleet API",
		RunE:  runLogin,
	}
	cmd.Flags().String("email", "", "Account email")
	cmd.Flags().String("password", "", "Account password (read from stdin when empty)")
	return cmd
}

func runLogin(cmd *cobra.Command, _ []string) error {
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")

	if password == "" {
		password = os.Getenv("FLEET_PASSWORD")
	}
	if password == "" {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return exitError(2, "read password: %v", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	a.store.PrimeCSRF(cmd.Context())

	if err := a.store.Login(cmd.Context(), email, password, nil); err != nil {
		switch {
		case auth.IsInvalidLoginPayload(err):
			return exitError(2, "login: %v", err)
		case auth.IsNetworkError(err):
			return exitError(3, "login: %v", err)
		}
		return exitError(1, "login: %v", err)
	}

	user := a.store.User()
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s %v\n", user.DisplayName(), user.GroupNames())
	return nil
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.Logout(cmd.Context(), nil); err != nil {
				if auth.IsNetworkError(err) {
					return exitError(3, "logout: %v", err)
				}
				return exitError(1, "logout: %v", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the current user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			offline, _ := cmd.Flags().GetBool("offline")

			user := a.store.User()
			if !offline {
				user = a.store.FetchUser(cmd.Context())
			}
			if user == nil {
				return exitError(1, "not signed in")
			}

			fmt.Fprintln(cmd.OutOrStdout(), print.MaybePrettyJSON(map[string]any{
				"user":    user,
				"name":    user.DisplayName(),
				"phone":   user.FormattedPhone(a.cfg.Client.GetPhoneRegion()),
				"allowed": auth.UserInGroups(user, a.cfg.Client.GetAllowedGroups()...),
			}))
			return nil
		},
	}
	cmd.Flags().Bool("offline", false, "Print the persisted user without asking the API")
	return cmd
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <path>",
		Short: "Evaluate the route guard for a console path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			task := auth.Bootstrap(cmd.Context(), a.store)
			decision := a.guard(task).Evaluate(cmd.Context(), args[0])
			if !decision.Allow {
				fmt.Fprintf(cmd.OutOrStdout(), "denied: redirect to %s\n", decision.Redirect)
				return exitError(4, "access to %s denied", args[0])
			}

			fmt.Fprintf(cmd.OutOrStdout(), "allowed: %s\n", args[0])
			return nil
		},
	}
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget the persisted session state and cookies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.db.Close()

			if err := a.states.Delete(cmd.Context(), a.cfg.Client.GetStateKey()); err != nil {
				return fmt.Errorf("delete state: %w", err)
			}

			a.jar.RemoveAll()
			if err := a.jar.Save(); err != nil {
				return fmt.Errorf("save cookies: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Session state cleared")
			return nil
		},
	}
}

func newActivityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "List recent session activity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			records, err := a.activity.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("read activity: %w", err)
			}

			for _, r := range records {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-20s %s %s\n",
					r.OccurredAt.Local().Format(time.RFC3339), r.Verb, r.ActorID, print.MaybePrettyJSON(r.Metadata))
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "Number of records to show")
	return cmd
}
