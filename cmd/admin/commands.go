package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/attendwatch/internal/app"
	"github.com/attendwatch/internal/attendance"
	"github.com/attendwatch/internal/auth"
	"github.com/attendwatch/internal/config"
	"github.com/attendwatch/internal/model"
	"github.com/attendwatch/internal/store"
)

type cliEnv struct {
	loadConfig   func() (*config.Config, error)
	stdout       io.Writer
	stderr       io.Writer
	readPassword func(label string) (string, error)

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd(env *cliEnv) *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Manage Attendance Watch accounts and run attendance files",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := env.loadConfig()
			if err != nil {
				return err
			}
			env.cfg = cfg
			env.logger = app.NewLogger(cfg, env.stderr)
			return nil
		},
	}
	root.SetOut(env.stdout)
	root.SetErr(env.stderr)

	root.AddCommand(
		newAddUserCmd(env),
		newResetPasswordCmd(env),
		newListUsersCmd(env),
		newNotifyCmd(env),
		newMigrateCmd(env),
	)
	return root
}

func (env *cliEnv) openStores(cmd *cobra.Command) (*app.Stores, error) {
	return app.OpenStores(cmd.Context(), env.cfg)
}

func (env *cliEnv) newPassword() (string, error) {
	pwd, err := env.readPassword("New password")
	if err != nil {
		return "", err
	}
	if pwd == "" {
		return "", errors.New("password must not be empty")
	}
	return pwd, nil
}

func newAddUserCmd(env *cliEnv) *cobra.Command {
	var (
		username string
		role     string
	)
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a user, or update the password and role of an existing one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := model.Role(role)
			if !r.Valid() {
				return fmt.Errorf("invalid role %q: must be admin or viewer", role)
			}

			pwd, err := env.newPassword()
			if err != nil {
				return err
			}
			hash, err := auth.Hash(pwd)
			if err != nil {
				return err
			}

			stores, err := env.openStores(cmd)
			if err != nil {
				return err
			}
			defer stores.Close()

			ctx := cmd.Context()
			_, err = stores.Users.Create(ctx, username, hash, r)
			if err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", username, r)
				return nil
			}
			if !errors.Is(err, store.ErrDuplicate) {
				return fmt.Errorf("create user: %w", err)
			}

			u, _, err := stores.Users.GetByUsername(ctx, username)
			if err != nil {
				return fmt.Errorf("load user: %w", err)
			}
			if err := stores.Users.UpdatePassword(ctx, u.ID, hash); err != nil {
				return fmt.Errorf("update password: %w", err)
			}
			if err := stores.Users.UpdateRoleAndStatus(ctx, u.ID, r, model.StatusActive); err != nil {
				return fmt.Errorf("update role: %w", err)
			}
			if err := stores.Sessions.DeleteAllByUserID(ctx, u.ID); err != nil {
				return fmt.Errorf("drop sessions: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s (%s)\n", username, r)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "login name (required)")
	cmd.Flags().StringVar(&role, "role", string(model.RoleAdmin), "admin or viewer")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newResetPasswordCmd(env *cliEnv) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Set a new password for a user and sign them out everywhere",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, err := env.openStores(cmd)
			if err != nil {
				return err
			}
			defer stores.Close()

			ctx := cmd.Context()
			u, _, err := stores.Users.GetByUsername(ctx, username)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no user named %q", username)
			}
			if err != nil {
				return err
			}

			pwd, err := env.newPassword()
			if err != nil {
				return err
			}
			hash, err := auth.Hash(pwd)
			if err != nil {
				return err
			}
			if err := stores.Users.UpdatePassword(ctx, u.ID, hash); err != nil {
				return fmt.Errorf("update password: %w", err)
			}
			if err := stores.Sessions.DeleteAllByUserID(ctx, u.ID); err != nil {
				return fmt.Errorf("drop sessions: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password reset for %s\n", username)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "login name (required)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newListUsersCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "listusers",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, err := env.openStores(cmd)
			if err != nil {
				return err
			}
			defer stores.Close()

			users, err := stores.Users.ListAll(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "USERNAME\tROLE\tSTATUS\tLAST LOGIN")
			for _, u := range users {
				last := "never"
				if u.LastLoginAt != nil {
					last = humanize.Time(*u.LastLoginAt)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.Username, u.Role, u.Status, last)
			}
			return tw.Flush()
		},
	}
}

func newNotifyCmd(env *cliEnv) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "notify FILE",
		Short: "Email the parents of students below the attendance threshold in FILE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			out := cmd.OutOrStdout()

			if dryRun {
				all, flagged, err := attendance.NewExtractor(env.logger).ExtractLowAttendance(path)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ROW\tSTUDENT\tENROLLMENT\tPERCENTAGE\tPARENT EMAIL")
				for _, r := range flagged {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
						r.Row(), r.StudentName(), r.EnrollmentNumber(), r.TotalPercentage(), r.ParentEmail())
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(out, "%d of %d students below %.0f%%; nothing sent (dry run)\n",
					len(flagged), len(all), attendance.Threshold)
				return nil
			}

			transport, err := app.NewTransport(env.cfg, out)
			if err != nil {
				return err
			}
			start := time.Now()
			res, err := app.NewWorkflow(env.cfg, env.logger, transport, nil).Process(cmd.Context(), path)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d of %d students below %.0f%%: %d sent, %d failed (%s)\n",
				res.Flagged, res.Parsed, attendance.Threshold,
				res.Summary.Delivered, res.Summary.Failed, time.Since(start).Round(time.Millisecond))
			if res.Summary.Failed > 0 {
				fmt.Fprintf(out, "%d notifications could not be delivered; see the log for recipients\n", res.Summary.Failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list flagged students without sending")
	return cmd
}

func newMigrateCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, err := env.openStores(cmd)
			if err != nil {
				return err
			}
			stores.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "migrations complete")
			return nil
		},
	}
}
