// Package main содержит служебную утилиту сервиса учёта грузоперевозок:
// миграции, начальное заполнение, чистку выведенных учётных записей и отчёты.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/mmeshcher/cargodesk/internal/audit"
	"github.com/mmeshcher/cargodesk/internal/authz"
	"github.com/mmeshcher/cargodesk/internal/config"
	"github.com/mmeshcher/cargodesk/internal/model"
	"github.com/mmeshcher/cargodesk/internal/repository"
	"github.com/mmeshcher/cargodesk/internal/service"
	"github.com/mmeshcher/cargodesk/internal/validation"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:  "cargoctl",
		Usage: "Cargo back office maintenance tool",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "database", Aliases: []string{"d"}, Usage: "database URI, overrides DATABASE_URI"},
		},
		Commands: []*cli.Command{
			migrateCommand(),
			seedCommand(),
			purgeRetiredCommand(),
			reportCommand(),
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	cfg    *config.Config
	svc    *service.Service
	logger *zap.Logger
}

func (rt *app) Close() {
	_ = rt.svc.Close()
	_ = rt.logger.Sync()
}

func openApp(ctx context.Context, c *cli.Command) (*app, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if dsn := c.String("database"); dsn != "" {
		cfg.DatabaseURI = dsn
	}

	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logger initialization error: %w", err)
	}

	store, err := repository.Open(ctx, cfg.DatabaseURI)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	auditLog := audit.New(store, logger,
		audit.WithLocation(cfg.Location()),
		audit.WithMaxLimit(cfg.LogQueryMaxLimit),
	)
	policy := authz.NewPolicy(cfg.SuperAdmin(), cfg.Retired())
	svc := service.NewService(store, auditLog, policy, logger, service.WithLocation(cfg.Location()))

	return &app{cfg: cfg, svc: svc, logger: logger}, nil
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending schema migrations",
		Action: func(ctx context.Context, c *cli.Command) error {
			rt, err := openApp(ctx, c)
			if err != nil {
				return err
			}
			defer rt.Close()

			rt.logger.Info("migrations applied")
			return nil
		},
	}
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Store the default pricing rule and the super admin account when absent",
		Action: func(ctx context.Context, c *cli.Command) error {
			rt, err := openApp(ctx, c)
			if err != nil {
				return err
			}
			defer rt.Close()

			rule, err := rt.svc.SeedPricingRule(ctx)
			if err != nil {
				return fmt.Errorf("seed pricing: %w", err)
			}
			fmt.Fprintf(c.Root().Writer, "pricing: base %s, per kg %s\n", rule.BaseCost, rule.CostPerKg)

			if rt.cfg.SuperAdminPassword == "" {
				fmt.Fprintln(c.Root().Writer, "super admin: SUPER_ADMIN_PASSWORD is empty, skipped")
				return nil
			}
			created, err := rt.svc.SeedSuperAdmin(ctx, rt.cfg.SuperAdminPassword)
			if err != nil {
				return fmt.Errorf("seed super admin: %w", err)
			}
			if created {
				fmt.Fprintf(c.Root().Writer, "super admin: %s created\n", rt.cfg.SuperAdminUsername)
			} else {
				fmt.Fprintf(c.Root().Writer, "super admin: %s already exists\n", rt.cfg.SuperAdminUsername)
			}
			return nil
		},
	}
}

func purgeRetiredCommand() *cli.Command {
	return &cli.Command{
		Name:  "purge-retired",
		Usage: "Delete stored accounts listed in RETIRED_CREDENTIALS",
		Action: func(ctx context.Context, c *cli.Command) error {
			rt, err := openApp(ctx, c)
			if err != nil {
				return err
			}
			defer rt.Close()

			purged, err := rt.svc.PurgeRetiredAccounts(ctx)
			for _, username := range purged {
				fmt.Fprintf(c.Root().Writer, "deleted %s\n", username)
			}
			if err != nil {
				return fmt.Errorf("purge retired accounts: %w", err)
			}
			if len(purged) == 0 {
				fmt.Fprintln(c.Root().Writer, "nothing to delete")
			}
			return nil
		},
	}
}

func reportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Activity log reports",
		Commands: []*cli.Command{
			{
				Name:  "weekly",
				Usage: "Summarize cargo activity for a period (current week by default)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "from", Usage: "first day, " + validation.DateLayout},
					&cli.StringFlag{Name: "to", Usage: "last day, " + validation.DateLayout},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					rt, err := openApp(ctx, c)
					if err != nil {
						return err
					}
					defer rt.Close()

					from, err := validation.ParseDate(c.String("from"), rt.cfg.Location())
					if err != nil {
						return fmt.Errorf("invalid --from: %w", err)
					}
					to, err := validation.ParseDate(c.String("to"), rt.cfg.Location())
					if err != nil {
						return fmt.Errorf("invalid --to: %w", err)
					}

					summary, err := rt.svc.WeeklySummary(ctx, from, to)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						enc := json.NewEncoder(c.Root().Writer)
						enc.SetIndent("", "  ")
						return enc.Encode(summary)
					}
					printWeeklySummary(c.Root().Writer, summary)
					return nil
				},
			},
		},
	}
}

func printWeeklySummary(w io.Writer, s *model.WeeklySummary) {
	fmt.Fprintf(w, "period:  %s .. %s\n", s.From.Format(validation.DateLayout), s.To.Format(validation.DateLayout))
	fmt.Fprintf(w, "total:   %d (paid %d, unpaid %d)\n", s.TotalTransactions, s.PaidTransactions, s.UnpaidTransactions)
	fmt.Fprintf(w, "revenue: %s\n", s.TotalRevenue.StringFixed(2))

	operators := make([]string, 0, len(s.PerOperator))
	for name := range s.PerOperator {
		operators = append(operators, name)
	}
	sort.Strings(operators)
	for _, name := range operators {
		stats := s.PerOperator[name]
		fmt.Fprintf(w, "  %-20s %5d %12s\n", name, stats.Count, stats.Revenue.StringFixed(2))
	}
}
