package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/emhr/emhr/internal/config"
	"github.com/emhr/emhr/internal/domain/identity"
	"github.com/emhr/emhr/internal/platform/auth"
	"github.com/emhr/emhr/internal/platform/db"
	"github.com/emhr/emhr/migrations"
)

// migrationSource returns the embedded migrations unless dir overrides them.
func migrationSource(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func openPool(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func tenantSchema(cmd *cobra.Command, cfg *config.Config) (string, error) {
	tenant, _ := cmd.Flags().GetString("tenant")
	if tenant == "" {
		tenant = cfg.DefaultTenant
	}
	if !db.ValidTenantID(tenant) {
		return "", fmt.Errorf("invalid tenant identifier: %s", tenant)
	}
	return db.SchemaName(tenant), nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}
	cmd.PersistentFlags().String("tenant", "", "Tenant to migrate (defaults to DEFAULT_TENANT)")
	cmd.PersistentFlags().String("dir", "", "Read migrations from this directory instead of the embedded set")

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			schema, err := tenantSchema(cmd, cfg)
			if err != nil {
				return err
			}
			dir, _ := cmd.Flags().GetString("dir")
			target, _ := cmd.Flags().GetInt("to")

			migrator := db.NewMigratorFS(pool, migrationSource(dir))
			fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)

			var count int
			if target > 0 {
				count, err = migrator.UpTo(ctx, schema, target)
			} else {
				count, err = migrator.Up(ctx, schema)
			}
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().Int("to", 0, "Stop after this migration version")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			schema, err := tenantSchema(cmd, cfg)
			if err != nil {
				return err
			}
			dir, _ := cmd.Flags().GetString("dir")

			statuses, err := db.NewMigratorFS(pool, migrationSource(dir)).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Migration status for schema: %s\n", schema)
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	cmd.AddCommand(statusCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant schema and apply migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			if !db.ValidTenantID(name) {
				return fmt.Errorf("invalid tenant identifier: %s", name)
			}

			ctx := cmd.Context()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Creating tenant schema: %s\n", db.SchemaName(name))
			if err := db.CreateTenantSchema(ctx, pool, name, migrations.FS); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Tenant created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (letters, digits, underscores)")

	cmd.AddCommand(createCmd)
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")
			role, _ := cmd.Flags().GetString("role")
			first, _ := cmd.Flags().GetString("first-name")
			last, _ := cmd.Flags().GetString("last-name")
			if username == "" || password == "" {
				return fmt.Errorf("--username and --password are required")
			}
			if !auth.ValidRole(role) {
				return fmt.Errorf("unknown role %q", role)
			}

			ctx := cmd.Context()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			tenant, _ := cmd.Flags().GetString("tenant")
			if tenant == "" {
				tenant = cfg.DefaultTenant
			}
			if !db.ValidTenantID(tenant) {
				return fmt.Errorf("invalid tenant identifier: %s", tenant)
			}
			ctx, release, err := db.BindTenant(ctx, pool, tenant)
			if err != nil {
				return err
			}
			defer release()

			svc := identity.NewService(identity.NewUserRepoPG(pool), newLogger(cfg))
			u := &identity.User{Username: username, FirstName: first, LastName: last, Role: role}
			if err := svc.CreateUser(ctx, u, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s user %s (id %d) in tenant %s\n", u.Role, u.Username, u.ID, tenant)
			return nil
		},
	}
	createCmd.Flags().String("tenant", "", "Tenant to create the user in (defaults to DEFAULT_TENANT)")
	createCmd.Flags().String("username", "", "Login name")
	createCmd.Flags().String("password", "", "Initial password")
	createCmd.Flags().String("role", auth.RoleAdmin, "Role: admin, clinician, supervisor, intern, social_worker, biller or front_desk")
	createCmd.Flags().String("first-name", "System", "First name")
	createCmd.Flags().String("last-name", "Administrator", "Last name")

	cmd.AddCommand(createCmd)
	return cmd
}
