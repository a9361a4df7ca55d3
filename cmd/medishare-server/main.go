package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medishare/medishare/internal/config"
	"github.com/medishare/medishare/internal/domain/patientrecord"
	"github.com/medishare/medishare/internal/domain/sharing"
	"github.com/medishare/medishare/internal/platform/audit"
	"github.com/medishare/medishare/internal/platform/auth"
	"github.com/medishare/medishare/internal/platform/db"
	"github.com/medishare/medishare/internal/platform/middleware"
)

// memoryDSN switches the server to the in-memory stores. Development only.
const memoryDSN = "memory"

func main() {
	rootCmd := &cobra.Command{
		Use:   "medishare-server",
		Short: "Secure temporal record-sharing API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the record-sharing API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

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

			migrator := db.NewMigrator(pool, dir)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "shared", "Target schema for migrations")
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

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

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "shared", "Target schema for migrations")
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
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
		Short: "Create a new tenant schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

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

			fmt.Printf("Creating tenant schema: %s\n", db.SchemaFor(name))
			if err := db.CreateTenantSchema(ctx, pool, name, "./migrations"); err != nil {
				return err
			}
			fmt.Println("Tenant created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")

	cmd.AddCommand(createCmd)
	return cmd
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()

	var (
		pool     *pgxpool.Pool
		shares   sharing.Repository
		patients patientrecord.Directory
		sink     audit.Emitter
	)

	if cfg.IsDev() && cfg.DatabaseURL == memoryDSN {
		// Postgres-free development mode: in-memory stores with seeded data.
		memDir := patientrecord.NewInMemoryDirectory()
		seedDemoData(memDir, cfg.DefaultTenant, logger)
		shares = sharing.NewInMemoryRepo()
		patients = memDir
		sink = audit.NewLogEmitter(logger)
		logger.Warn().Msg("running with in-memory stores, nothing will be persisted")
	} else {
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")

		shares = sharing.NewRepo(pool)
		patients = patientrecord.NewDirectory(pool)
		sink = audit.NewPGEmitter(pool)
	}

	shareSvc := sharing.NewService(shares, patients, sink, logger, cfg.ShareBaseURL, cfg.ShareMaxExpiryHours)
	shareHandler := sharing.NewHandler(shareSvc)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID", "X-Access-Pin"},
	}))

	// Staff API group: authenticated, tenant-scoped, rate limited.
	apiV1 := e.Group("/api/v1")
	if cfg.ResolvedAuthMode() == "development" {
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		}))
	}
	if pool != nil {
		apiV1.Use(db.TenantMiddleware(pool, cfg.DefaultTenant))
	} else {
		apiV1.Use(staticTenantMiddleware(cfg.DefaultTenant))
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Anonymous access group: no auth, tighter rate limit to damp token
	// and PIN guessing.
	public := e.Group("")
	public.Use(middleware.RateLimit(middleware.AccessRateLimitConfig()))

	shareHandler.RegisterRoutes(apiV1, public)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// staticTenantMiddleware pins every request to the default tenant. Used only
// in the Postgres-free development mode, where there is no per-tenant schema
// to select.
func staticTenantMiddleware(tenantID string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := context.WithValue(c.Request().Context(), db.TenantIDKey, tenantID)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// seedDemoData loads one recognizable patient into the in-memory directory
// so a fresh development server has something to share.
func seedDemoData(dir *patientrecord.InMemoryDirectory, tenantID string, logger zerolog.Logger) {
	patientID := uuid.New()
	bloodType := "O+"

	dir.AddPatient(tenantID, &patientrecord.Patient{
		ID:             patientID,
		FirstName:      "Demo",
		LastName:       "Patient",
		BirthDate:      time.Date(1980, 1, 15, 0, 0, 0, 0, time.UTC),
		Gender:         "female",
		BloodType:      &bloodType,
		Allergies:      []string{"penicillin"},
		MedicalHistory: []string{"hypertension"},
	})
	dir.AddAppointment(tenantID, &patientrecord.Appointment{
		ID:        uuid.New(),
		PatientID: patientID,
		Date:      time.Now().AddDate(0, 0, 7),
		Reason:    "annual physical",
		Status:    "scheduled",
	})
	dir.AddPrescription(tenantID, &patientrecord.Prescription{
		ID:         uuid.New(),
		PatientID:  patientID,
		Medication: "lisinopril",
		Dosage:     "10mg daily",
		StartDate:  time.Now().AddDate(0, -3, 0),
	})
	dir.AddDocument(tenantID, &patientrecord.Document{
		ID:           uuid.New(),
		PatientID:    patientID,
		FileName:     "bloodwork-2026.pdf",
		FileType:     "pdf",
		DocumentDate: time.Now().AddDate(0, -1, 0),
	})

	logger.Info().
		Str("tenant_id", tenantID).
		Str("patient_id", patientID.String()).
		Msg("seeded demo patient")
}
