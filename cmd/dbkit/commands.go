package main

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/deppfellow/dbkit/internal/config"
	"github.com/deppfellow/dbkit/internal/lib/utils"
	loggerPkg "github.com/deppfellow/dbkit/internal/logger"
	"github.com/deppfellow/dbkit/internal/server"
	"github.com/deppfellow/dbkit/pkg/database"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dbkit",
		Short:         "Migrate and inspect a database",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		newMigrateCmd(),
		newTablesCmd(),
		newFindCmd(),
		newCountCmd(),
		newHealthCmd(),
	)
	return root
}

// app is the per-command runtime: config, logger and server.
type app struct {
	cfg    *config.Config
	logger *zerolog.Logger
	server *server.Server
}

func newApp() (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	loggerService := loggerPkg.NewLoggerService(cfg.Observability)
	logger := loggerPkg.NewLoggerWithService(cfg.Observability, loggerService)

	return &app{
		cfg:    cfg,
		logger: &logger,
		server: server.New(cfg, &logger, loggerService),
	}, nil
}

// fail logs err with the stack it surfaced at and returns it unchanged.
func (a *app) fail(err error) error {
	if err == nil {
		return nil
	}
	a.logger.Debug().Stack().Err(errors.WithStack(err)).Msg("command failed")
	return err
}

// withDatabase connects, runs fn and always shuts the server down.
func withDatabase(ctx context.Context, fn func(*app) error) (rerr error) {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() {
		if err := a.server.Shutdown(); err != nil && rerr == nil {
			rerr = a.fail(err)
		}
	}()

	if err := a.server.Start(ctx); err != nil {
		return a.fail(err)
	}
	return a.fail(fn(a))
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema migrations",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.server.LoggerService.Shutdown()
			return a.fail(database.Migrate(cmd.Context(), a.cfg.Database, a.logger))
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.server.LoggerService.Shutdown()
			return a.fail(database.Rollback(cmd.Context(), a.cfg.Database, steps, a.logger))
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")

	cmd.AddCommand(up, down)
	return cmd
}

func newTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables of the connected schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd.Context(), func(a *app) error {
				return utils.PrintJSON(cmd.OutOrStdout(), a.server.DB.Tables())
			})
		},
	}
}

func newFindCmd() *cobra.Command {
	var (
		where   []string
		columns []string
		opts    database.Options
	)

	cmd := &cobra.Command{
		Use:   "find <table>",
		Short: "Print the rows matching the criteria",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			criteria, err := parseWhere(where)
			if err != nil {
				return err
			}
			opts.Columns = columns

			return withDatabase(cmd.Context(), func(a *app) error {
				table, err := a.server.DB.Table(args[0])
				if err != nil {
					return err
				}
				rows, err := table.Find(cmd.Context(), criteria, &opts)
				if err != nil {
					return err
				}
				if rows == nil {
					rows = []database.Record{}
				}
				return utils.PrintJSON(cmd.OutOrStdout(), rows)
			})
		},
	}

	cmd.Flags().StringArrayVar(&where, "where", nil, "Condition such as 'age >= 18' (repeatable)")
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "Columns to select")
	cmd.Flags().StringVar(&opts.Order, "order", "", "Order such as 'name desc'")
	cmd.Flags().Uint64Var(&opts.Limit, "limit", 0, "Maximum number of rows")
	cmd.Flags().Uint64Var(&opts.Offset, "offset", 0, "Number of rows to skip")
	return cmd
}

func newCountCmd() *cobra.Command {
	var (
		where  []string
		column string
	)

	cmd := &cobra.Command{
		Use:   "count <table>",
		Short: "Count the rows matching the criteria",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			criteria, err := parseWhere(where)
			if err != nil {
				return err
			}

			return withDatabase(cmd.Context(), func(a *app) error {
				table, err := a.server.DB.Table(args[0])
				if err != nil {
					return err
				}
				count, err := table.Count(cmd.Context(), criteria, column)
				if err != nil {
					return err
				}
				return utils.PrintJSON(cmd.OutOrStdout(), map[string]int64{"count": count})
			})
		},
	}

	cmd.Flags().StringArrayVar(&where, "where", nil, "Condition such as 'age >= 18' (repeatable)")
	cmd.Flags().StringVar(&column, "column", "", "Count the non-null values of this column")
	return cmd
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check database connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd.Context(), func(a *app) error {
				ctx := cmd.Context()
				if obs := a.cfg.Observability; obs != nil && obs.HealthChecks.Timeout > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, obs.HealthChecks.Timeout)
					defer cancel()
				}

				report := a.server.DB.CheckHealth(ctx)
				if err := utils.PrintJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				if !report.Healthy() {
					return fmt.Errorf("database is %s", report.Status)
				}
				return nil
			})
		},
	}
}

var wherePattern = regexp.MustCompile(`^\s*(\w+)\s*(<>|>=|<=|>|<|=)\s*(.*?)\s*$`)

// parseWhere turns "column op value" flags into criteria.
//
// "null" matches NULL with =, a comma separated value with = becomes a
// list and numbers are passed as numbers.
func parseWhere(conditions []string) (database.Criteria, error) {
	if len(conditions) == 0 {
		return nil, nil
	}

	criteria := database.Criteria{}
	for _, c := range conditions {
		m := wherePattern.FindStringSubmatch(c)
		if m == nil {
			return nil, fmt.Errorf("invalid condition %q, expected 'column operator value'", c)
		}
		column, op, raw := m[1], m[2], m[3]

		switch {
		case op == "=" && strings.EqualFold(raw, "null"):
			criteria[column] = nil
		case op == "=" && strings.Contains(raw, ","):
			parts := strings.Split(raw, ",")
			values := make([]any, len(parts))
			for i, p := range parts {
				values[i] = parseValue(strings.TrimSpace(p))
			}
			criteria[column] = values
		case op == "=":
			criteria[column] = parseValue(raw)
		default:
			criteria[column+" "+op] = parseValue(raw)
		}
	}
	return criteria, nil
}

func parseValue(raw string) any {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return strings.Trim(raw, `'"`)
}
