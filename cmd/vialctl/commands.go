package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/vial-compliance-api/internal/app"
	"github.com/noah-isme/vial-compliance-api/internal/dto"
	"github.com/noah-isme/vial-compliance-api/internal/models"
	"github.com/noah-isme/vial-compliance-api/internal/service"
	"github.com/noah-isme/vial-compliance-api/pkg/config"
	"github.com/noah-isme/vial-compliance-api/pkg/database"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := database.NewPostgres(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck

			version, err := database.Migrate(cmd.Context(), db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	}
}

func createAdminCmd() *cobra.Command {
	var req dto.CreateUserRequest
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Role = models.RoleAdmin
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				user, err := a.Users.Create(ctx, req, service.SystemActor)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", user.Username, user.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Username, "username", "", "login name")
	cmd.Flags().StringVar(&req.DNI, "dni", "", "national id")
	cmd.Flags().StringVar(&req.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&req.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&req.Password, "password", "", "initial password")
	for _, name := range []string{"username", "dni", "first-name", "last-name", "password"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one expiration sweep pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				result, err := a.Sweep.RunOnce(ctx)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), outputFormat, result, sweepTable(result))
			})
		},
	}
}

func reportCmd() *cobra.Command {
	var (
		horizon int
		asOf    string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print certifications expiring within the horizon",
		RunE: func(cmd *cobra.Command, args []string) error {
			var ref time.Time
			if asOf != "" {
				parsed, err := time.ParseInLocation("2006-01-02", asOf, time.UTC)
				if err != nil {
					return fmt.Errorf("--as-of must be YYYY-MM-DD: %w", err)
				}
				ref = parsed
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				days := horizon
				if !cmd.Flags().Changed("horizon") {
					days = a.Reports.DefaultHorizon()
				}
				report, _, err := a.Reports.Report(ctx, days, ref)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), outputFormat, report, reportTable(report))
			})
		},
	}
	cmd.Flags().IntVar(&horizon, "horizon", 0, "days ahead of the reference date")
	cmd.Flags().StringVar(&asOf, "as-of", "", "reference date (YYYY-MM-DD), defaults to today")
	return cmd
}

func enrollmentsCmd() *cobra.Command {
	group := &cobra.Command{Use: "enrollments", Short: "Inspect enrollments"}
	group.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Show one enrollment with its evaluated status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				view, err := a.Enrollments.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), outputFormat, view, enrollmentTable(view))
			})
		},
	})
	return group
}
