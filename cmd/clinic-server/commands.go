package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/elanza/clinic/internal/config"
	"github.com/elanza/clinic/internal/domain/account"
	"github.com/elanza/clinic/internal/domain/treatment"
	"github.com/elanza/clinic/internal/platform/auth"
	"github.com/elanza/clinic/internal/platform/db"
	"github.com/elanza/clinic/internal/platform/identity"
	"github.com/elanza/clinic/internal/platform/metrics"
	"github.com/elanza/clinic/migrations"
)

// withPool loads the config and opens a database pool for a one-shot command.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
				count, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
				statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printMigrationStatus(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	})

	return cmd
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func retentionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retention",
		Short: "Clinical history retention",
	}

	enforce := &cobra.Command{
		Use:   "enforce",
		Short: "Apply the entry and photo limits to one package's history",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("package")
			pkgID, err := uuid.Parse(raw)
			if err != nil {
				return fmt.Errorf("--package must be a package id: %w", err)
			}
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				if err := cfg.Validate(); err != nil {
					return err
				}
				logger := newLogger(cfg)
				engine := treatment.NewRetentionEngine(treatment.NewHistoryRepoPG(pool), newBlobStore(cfg),
					metrics.Nop{}, logger, cfg.HistoryMaxEntries, cfg.HistoryMaxPhotos)
				rep, err := engine.Enforce(ctx, pkgID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "entries deleted: %d, entries rewritten: %d, photos deleted: %d, blob failures: %d\n",
					rep.EntriesDeleted, rep.EntriesRewritten, rep.PhotosDeleted, rep.BlobFailures)
				return nil
			})
		},
	}
	enforce.Flags().String("package", "", "Package id")
	_ = enforce.MarkFlagRequired("package")
	cmd.AddCommand(enforce)
	return cmd
}

func claimsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claims",
		Short: "Identity role claims",
	}

	sync := &cobra.Command{
		Use:   "sync",
		Short: "Copy a user's stored role into the identity claims",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, _ := cmd.Flags().GetString("user")
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				rdb, err := newRedisClient(cfg)
				if err != nil {
					return err
				}
				if rdb == nil {
					return errors.New("REDIS_URL is required to sync claims")
				}
				defer rdb.Close()

				syncer := account.NewClaimSyncer(account.NewUserRepoPG(pool), identity.NewRedisClaims(rdb),
					metrics.Nop{}, newLogger(cfg))
				if err := syncer.SyncUser(ctx, uid); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "role claim for %s synced\n", uid)
				return nil
			})
		},
	}
	sync.Flags().String("user", "", "User id")
	_ = sync.MarkFlagRequired("user")
	cmd.AddCommand(sync)
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Development access tokens",
	}

	issue := &cobra.Command{
		Use:   "issue",
		Short: "Mint an HS256 token signed with AUTH_SIGNING_KEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, _ := cmd.Flags().GetString("uid")
			roleFlag, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AuthSigningKey == "" {
				return errors.New("AUTH_SIGNING_KEY is required to issue tokens")
			}

			role := auth.Role(roleFlag)
			if roleFlag == "" {
				if role, err = claimedRole(cmd.Context(), cfg, uid); err != nil {
					return err
				}
			}
			if !role.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}

			token, err := auth.IssueToken([]byte(cfg.AuthSigningKey), cfg.AuthIssuer, cfg.AuthAudience, uid, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issue.Flags().String("uid", "", "Identity uid (token subject)")
	issue.Flags().String("role", "", "Role claim; read from the identity claims when empty")
	issue.Flags().Duration("ttl", time.Hour, "Token lifetime")
	_ = issue.MarkFlagRequired("uid")
	cmd.AddCommand(issue)
	return cmd
}

// claimedRole reads the role claim for uid. Without Redis, or without a
// claim, the default role is used.
func claimedRole(ctx context.Context, cfg *config.Config, uid string) (auth.Role, error) {
	rdb, err := newRedisClient(cfg)
	if err != nil || rdb == nil {
		return auth.DefaultRole, err
	}
	defer rdb.Close()

	claim, ok, err := identity.NewRedisClaims(rdb).RoleClaim(ctx, uid)
	if err != nil {
		return "", err
	}
	if !ok || claim == "" {
		return auth.DefaultRole, nil
	}
	return auth.Role(claim), nil
}
