package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/apexhealth/claims/internal/config"
	"github.com/apexhealth/claims/internal/domain/claims"
	"github.com/apexhealth/claims/internal/platform/db"
	"github.com/apexhealth/claims/internal/platform/jobs"
	"github.com/apexhealth/claims/internal/platform/ops"
	"github.com/apexhealth/claims/migrations"
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error [%s]: %v\n", claims.CodeOf(err), err)
		os.Exit(1)
	}
}

// globalFlags are shared by every claim command.
type globalFlags struct {
	org       string
	actorID   string
	actorName string
}

func (g *globalFlags) orgID() (uuid.UUID, error) {
	if g.org == "" {
		return uuid.Nil, fmt.Errorf("--org is required")
	}
	id, err := uuid.Parse(g.org)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --org %q: %w", g.org, err)
	}
	return id, nil
}

func (g *globalFlags) actor() claims.Actor {
	return claims.Actor{UserID: g.actorID, Name: g.actorName}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "claims-engine",
		Short:         "Claims adjudication engine",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.org, "org", os.Getenv("CLAIMS_ORG_ID"), "Organization id that scopes every claim operation")
	rootCmd.PersistentFlags().StringVar(&flags.actorID, "actor-id", "cli", "User id recorded on notes")
	rootCmd.PersistentFlags().StringVar(&flags.actorName, "actor-name", "CLI Operator", "User name recorded on notes")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(submitCmd(flags))
	rootCmd.AddCommand(getCmd(flags))
	rootCmd.AddCommand(validateCmd(flags))
	rootCmd.AddCommand(adjudicateCmd(flags))
	rootCmd.AddCommand(batchCmd(flags))
	rootCmd.AddCommand(approveCmd(flags))
	rootCmd.AddCommand(denyCmd(flags))
	rootCmd.AddCommand(pendCmd(flags))
	rootCmd.AddCommand(assignCmd(flags))
	rootCmd.AddCommand(noteCmd(flags))
	rootCmd.AddCommand(payCmd(flags))
	rootCmd.AddCommand(payBatchCmd(flags))
	rootCmd.AddCommand(workerCmd())
	return rootCmd
}

// -- Wiring --

func newLogger(env, level string, out io.Writer) zerolog.Logger {
	logger := zerolog.New(out).With().Timestamp().Logger()
	if env == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return logger.Level(lvl)
}

// claimsConfig maps engine settings onto the adjudication service.
func claimsConfig(cfg *config.Config) (claims.Config, error) {
	cc := claims.DefaultConfig()
	cc.Pricing = claims.PricingConfig{
		Copay:                cfg.CopayAmount,
		CoinsuranceRate:      cfg.CoinsuranceRate,
		DefaultAllowanceRate: cfg.DefaultAllowanceRate,
	}
	cc.Rules.TimelyFilingDays = cfg.TimelyFilingDays
	cc.Rules.TimelyFilingWarnDays = cfg.TimelyFilingWarnDays
	if cfg.FeeScheduleFile != "" {
		schedule, err := claims.LoadFeeSchedule(cfg.FeeScheduleFile)
		if err != nil {
			return cc, err
		}
		cc.FeeSchedule = schedule
	}
	return cc, nil
}

func migrationSource(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	return migrations.FS
}

type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *pgxpool.Pool
	store  jobs.Store
	svc    *claims.Service
	batch  *claims.BatchRunner
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Env, cfg.LogLevel, os.Stderr)

	cc, err := claimsConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{
		DatabaseURL: cfg.DatabaseURL,
		MaxConns:    cfg.DBMaxConns,
		MinConns:    cfg.DBMinConns,
		Schema:      cfg.DBSchema,
	})
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("schema", cfg.DBSchema).Msg("connected to database")

	store := jobs.NewStorePG(pool, cfg.JobMaxAttempts, jobs.WithLease(cfg.JobLease))
	svc := claims.NewService(claims.NewClaimRepoPG(pool), claims.NewNumberGeneratorPG(pool), cc, logger)
	svc.SetEnqueuer(store)

	return &app{
		cfg:    cfg,
		logger: logger,
		pool:   pool,
		store:  store,
		svc:    svc,
		batch:  claims.NewBatchRunner(svc, cfg.BatchWorkers, logger),
	}, nil
}

func (a *app) Close() { a.pool.Close() }

// withApp runs fn against a fully wired engine, cancelling on SIGINT/SIGTERM.
func withApp(fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseIDs(args []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(args))
	for _, a := range args {
		for _, part := range strings.Split(a, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := uuid.Parse(part)
			if err != nil {
				return nil, fmt.Errorf("invalid claim id %q: %w", part, err)
			}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("at least one claim id is required")
	}
	return ids, nil
}

func parseCheckDate(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return claims.DateOf(now), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --check-date %q (want YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

// claimCommand builds a single-claim command that takes the claim id as its
// only argument and prints the resulting claim.
func claimCommand(flags *globalFlags, use, short string, run func(ctx context.Context, a *app, orgID, id uuid.UUID) (*claims.Claim, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <claim-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := flags.orgID()
			if err != nil {
				return err
			}
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid claim id %q: %w", args[0], err)
			}
			return withApp(func(ctx context.Context, a *app) error {
				c, err := run(ctx, a, orgID, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), c)
			})
		},
	}
}

// -- Commands --

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator, schema string) error {
				fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator, schema string) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Migration status for schema: %s\n", schema)
				fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
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
			})
		},
	}
	cmd.AddCommand(statusCmd)

	for _, c := range []*cobra.Command{upCmd, statusCmd} {
		c.Flags().String("schema", "", "Target schema (defaults to DB_SCHEMA)")
		c.Flags().String("dir", "", "Migrations directory (defaults to MIGRATIONS_DIR, then the embedded set)")
	}
	return cmd
}

func withMigrator(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator, schema string) error) error {
	schema, _ := cmd.Flags().GetString("schema")
	dir, _ := cmd.Flags().GetString("dir")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if schema == "" {
		schema = cfg.DBSchema
	}
	if dir == "" {
		dir = cfg.MigrationsDir
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolConfig{DatabaseURL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool, schema); err != nil {
		return err
	}
	return fn(ctx, db.NewMigrator(pool, migrationSource(dir), schema), schema)
}

func submitCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a claim from a JSON file (- for stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := flags.orgID()
			if err != nil {
				return err
			}
			path, _ := cmd.Flags().GetString("file")
			in, err := readSubmission(cmd.InOrStdin(), path)
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app) error {
				c, err := a.svc.Submit(ctx, orgID, in, flags.actor())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), c)
			})
		},
	}
	cmd.Flags().String("file", "-", "Path to the claim JSON document")
	return cmd
}

func readSubmission(stdin io.Reader, path string) (claims.SubmitClaimInput, error) {
	var in claims.SubmitClaimInput
	r := stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return in, fmt.Errorf("open claim file: %w", err)
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return in, fmt.Errorf("decode claim document: %w", err)
	}
	return in, nil
}

func getCmd(flags *globalFlags) *cobra.Command {
	return claimCommand(flags, "get", "Show a claim", func(ctx context.Context, a *app, orgID, id uuid.UUID) (*claims.Claim, error) {
		return a.svc.Get(ctx, orgID, id)
	})
}

func validateCmd(flags *globalFlags) *cobra.Command {
	return claimCommand(flags, "validate", "Run structural validation on a received claim", func(ctx context.Context, a *app, orgID, id uuid.UUID) (*claims.Claim, error) {
		return a.svc.Validate(ctx, orgID, id)
	})
}

func adjudicateCmd(flags *globalFlags) *cobra.Command {
	return claimCommand(flags, "adjudicate", "Auto-adjudicate a claim", func(ctx context.Context, a *app, orgID, id uuid.UUID) (*claims.Claim, error) {
		return a.svc.Adjudicate(ctx, orgID, id)
	})
}

func approveCmd(flags *globalFlags) *cobra.Command {
	return claimCommand(flags, "approve", "Manually approve a claim", func(ctx context.Context, a *app, orgID, id uuid.UUID) (*claims.Claim, error) {
		return a.svc.Approve(ctx, orgID, id, flags.actor())
	})
}

func denyCmd(flags *globalFlags) *cobra.Command {
	var in claims.DenyInput
	cmd := claimCommand(flags, "deny", "Manually deny a claim", func(ctx context.Context, a *app, orgID, id uuid.UUID) (*claims.Claim, error) {
		return a.svc.Deny(ctx, orgID, id, in, flags.actor())
	})
	cmd.Flags().StringVar(&in.ReasonCode, "code", "", "Denial reason code (CARC)")
	cmd.Flags().StringVar(&in.ReasonDescription, "description", "", "Denial reason description")
	cmd.Flags().StringVar(&in.Notes, "notes", "", "Free-text notes appended to the denial")
	return cmd
}

func pendCmd(flags *globalFlags) *cobra.Command {
	var in claims.PendInput
	cmd := claimCommand(flags, "pend", "Put a claim into manual review", func(ctx context.Context, a *app, orgID, id uuid.UUID) (*claims.Claim, error) {
		return a.svc.Pend(ctx, orgID, id, in, flags.actor())
	})
	cmd.Flags().StringVar(&in.Reason, "reason", "", "Reason for pending")
	cmd.Flags().StringVar(&in.InformationRequested, "info", "", "Information requested from the provider")
	return cmd
}

func assignCmd(flags *globalFlags) *cobra.Command {
	var processorID, processorName string
	cmd := claimCommand(flags, "assign", "Assign a claim to a processor", func(ctx context.Context, a *app, orgID, id uuid.UUID) (*claims.Claim, error) {
		return a.svc.AssignProcessor(ctx, orgID, id, processorID, processorName, flags.actor())
	})
	cmd.Flags().StringVar(&processorID, "processor-id", "", "Processor user id")
	cmd.Flags().StringVar(&processorName, "processor-name", "", "Processor display name")
	return cmd
}

func noteCmd(flags *globalFlags) *cobra.Command {
	var noteType, content string
	cmd := claimCommand(flags, "note", "Add a note to a claim", func(ctx context.Context, a *app, orgID, id uuid.UUID) (*claims.Claim, error) {
		return a.svc.AddNote(ctx, orgID, id, claims.NoteType(noteType), content, flags.actor())
	})
	cmd.Flags().StringVar(&noteType, "type", string(claims.NoteInternal), "Note type: internal, external, system or adjudication")
	cmd.Flags().StringVar(&content, "content", "", "Note text")
	return cmd
}

func payCmd(flags *globalFlags) *cobra.Command {
	var checkNumber, checkDate string
	cmd := claimCommand(flags, "pay", "Record payment on an approved claim", func(ctx context.Context, a *app, orgID, id uuid.UUID) (*claims.Claim, error) {
		date, err := parseCheckDate(checkDate, time.Now())
		if err != nil {
			return nil, err
		}
		number := checkNumber
		if number == "" {
			if number, err = a.svc.NextCheckNumber(ctx, orgID, date); err != nil {
				return nil, err
			}
		}
		return a.svc.Pay(ctx, orgID, id, date, number, flags.actor())
	})
	cmd.Flags().StringVar(&checkNumber, "check-number", "", "Check number (defaults to the next CHK-<date>-NNNNN for the organization)")
	cmd.Flags().StringVar(&checkDate, "check-date", "", "Check date YYYY-MM-DD (defaults to today)")
	return cmd
}

func batchCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <claim-id>...",
		Short: "Adjudicate many claims, isolating per-claim failures",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := flags.orgID()
			if err != nil {
				return err
			}
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			async, _ := cmd.Flags().GetBool("async")
			return withApp(func(ctx context.Context, a *app) error {
				if async {
					jobID, err := a.store.Enqueue(ctx, claims.JobBatchAdjudicate, claims.BatchAdjudicatePayload{
						ClaimIDs: ids, OrganizationID: orgID, InitiatedBy: flags.actorID,
					}, jobs.EnqueueOptions{Priority: 1})
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), map[string]any{"jobId": jobID, "claims": len(ids)})
				}
				res := a.batch.Run(ctx, orgID, ids, func(pct int) {
					a.logger.Debug().Int("progress", pct).Msg("batch progress")
				})
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().Bool("async", false, "Enqueue a batch-adjudicate job instead of running inline")
	return cmd
}

func payBatchCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pay-batch <claim-id>...",
		Short: "Pay every approved claim in the list",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := flags.orgID()
			if err != nil {
				return err
			}
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			rawDate, _ := cmd.Flags().GetString("check-date")
			checkDate, err := parseCheckDate(rawDate, time.Now())
			if err != nil {
				return err
			}
			async, _ := cmd.Flags().GetBool("async")
			return withApp(func(ctx context.Context, a *app) error {
				if async {
					jobID, err := a.store.Enqueue(ctx, claims.JobPaymentBatch, claims.PaymentBatchPayload{
						ClaimIDs: ids, OrganizationID: orgID, CheckDate: checkDate.Format("2006-01-02"), InitiatedBy: flags.actorID,
					}, jobs.EnqueueOptions{Priority: 1})
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), map[string]any{"jobId": jobID, "claims": len(ids)})
				}
				res, err := a.svc.RunPaymentBatch(ctx, orgID, ids, checkDate, flags.actorID, nil)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().String("check-date", "", "Check date YYYY-MM-DD (defaults to today)")
	cmd.Flags().Bool("async", false, "Enqueue a payment-batch job instead of running inline")
	return cmd
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the job worker and the ops listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(runWorker)
		},
	}
}

func runWorker(ctx context.Context, a *app) error {
	w := jobs.NewWorker(a.store, jobs.WorkerConfig{
		PollInterval:      a.cfg.JobPollInterval,
		RateLimit:         a.cfg.JobRateLimit,
		BaseRetryDelay:    jobs.DefaultWorkerConfig().BaseRetryDelay,
		MaxRetryDelay:     jobs.DefaultWorkerConfig().MaxRetryDelay,
		HeartbeatInterval: a.cfg.JobLease / 3,
	}, a.logger)
	claims.NewProcessor(a.svc, a.batch).Register(w)

	srv := ops.NewServer(a.cfg.OpsAddr, db.PoolPinger{Pool: a.pool}, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })

	a.logger.Info().Str("ops_addr", a.cfg.OpsAddr).Int("batch_workers", a.cfg.BatchWorkers).Msg("claims engine worker running")
	return g.Wait()
}
