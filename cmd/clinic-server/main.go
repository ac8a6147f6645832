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

	"github.com/herhealth/clinic/internal/config"
	"github.com/herhealth/clinic/internal/domain/appointment"
	"github.com/herhealth/clinic/internal/domain/availability"
	"github.com/herhealth/clinic/internal/domain/calendar"
	"github.com/herhealth/clinic/internal/domain/doctor"
	"github.com/herhealth/clinic/internal/platform/auth"
	"github.com/herhealth/clinic/internal/platform/db"
	"github.com/herhealth/clinic/internal/platform/gcal"
	"github.com/herhealth/clinic/internal/platform/middleware"
	"github.com/herhealth/clinic/internal/platform/notification"
	"github.com/herhealth/clinic/pkg/wallclock"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "HerHealth clinic scheduling API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(calendarCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
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

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
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
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s).\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
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
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func calendarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Manage doctor calendars",
	}

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a calendar open Monday to Friday, 09:00 to 17:00",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawDoctor, _ := cmd.Flags().GetString("doctor")
			name, _ := cmd.Flags().GetString("name")
			slot, _ := cmd.Flags().GetInt("slot-minutes")

			doctorID, err := uuid.Parse(rawDoctor)
			if err != nil {
				return fmt.Errorf("--doctor must be a doctor id: %w", err)
			}

			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := newCalendarService(pool, doctor.NewService(doctor.NewDoctorRepoPG(pool)))
			cal, err := seedCalendar(ctx, svc, doctorID, name, slot)
			if err != nil {
				return err
			}
			fmt.Printf("Created calendar %s (%s) for doctor %s.\n", cal.ID, cal.Name, doctorID)
			return nil
		},
	}
	seedCmd.Flags().String("doctor", "", "Doctor id")
	seedCmd.Flags().String("name", "Main clinic", "Calendar name")
	seedCmd.Flags().Int("slot-minutes", 30, "Slot duration in minutes")
	cmd.AddCommand(seedCmd)

	return cmd
}

// calendarSeeder is satisfied by *calendar.Service.
type calendarSeeder interface {
	CreateCalendar(ctx context.Context, c *calendar.Calendar) error
	SetWorkingHours(ctx context.Context, calendarID uuid.UUID, hours []*calendar.WorkingHour) error
	SetSlotConfig(ctx context.Context, c *calendar.TimeSlotConfig) error
}

// weekdayHours opens Monday to Friday 09:00 to 17:00 and closes the weekend.
func weekdayHours() []*calendar.WorkingHour {
	open, closeAt := wallclock.MustTimeOfDay("09:00"), wallclock.MustTimeOfDay("17:00")
	hours := make([]*calendar.WorkingHour, 0, 7)
	for day := 0; day < 7; day++ {
		weekend := day == 0 || day == 6
		hours = append(hours, &calendar.WorkingHour{
			DayOfWeek: day,
			StartTime: open,
			EndTime:   closeAt,
			IsActive:  true,
			IsClosed:  weekend,
		})
	}
	return hours
}

func seedCalendar(ctx context.Context, svc calendarSeeder, doctorID uuid.UUID, name string, slotMinutes int) (*calendar.Calendar, error) {
	cal := &calendar.Calendar{DoctorID: doctorID, Name: name, IsActive: true}
	if err := svc.CreateCalendar(ctx, cal); err != nil {
		return nil, fmt.Errorf("create calendar: %w", err)
	}
	if err := svc.SetWorkingHours(ctx, cal.ID, weekdayHours()); err != nil {
		return nil, fmt.Errorf("set working hours: %w", err)
	}
	err := svc.SetSlotConfig(ctx, &calendar.TimeSlotConfig{
		CalendarID:             cal.ID,
		SlotDurationMinutes:    slotMinutes,
		MaxAppointmentsPerSlot: 1,
		IsActive:               true,
	})
	if err != nil {
		return nil, fmt.Errorf("set slot config: %w", err)
	}
	return cal, nil
}

func newCalendarService(pool *pgxpool.Pool, doctors calendar.DoctorLookup) *calendar.Service {
	return calendar.NewService(
		calendar.NewCalendarRepoPG(pool),
		calendar.NewWorkingHourRepoPG(pool),
		calendar.NewSlotConfigRepoPG(pool),
		calendar.NewExceptionRepoPG(pool),
		doctors,
		db.NewTransactor(pool),
	)
}

// newSender picks WhatsApp when it is configured and logs messages otherwise.
func newSender(cfg *config.Config) notification.Sender {
	if cfg.WhatsAppEnabled() {
		return notification.NewWhatsAppSender(cfg.WhatsAppAPIURL, cfg.WhatsAppPhoneID, cfg.WhatsAppToken)
	}
	return notification.LogSender{}
}

// bookingNotifier turns a committed appointment into a patient confirmation.
type bookingNotifier struct {
	doctors  availability.DoctorLookup
	notifier *notification.Notifier
}

func (b *bookingNotifier) AppointmentBooked(ctx context.Context, a *appointment.Appointment) error {
	if a.ContactPhone == nil || *a.ContactPhone == "" {
		zerolog.Ctx(ctx).Debug().Str("appointment_id", a.ID.String()).Msg("no contact phone, skipping confirmation")
		return nil
	}
	doc, err := b.doctors.GetDoctor(ctx, a.DoctorID)
	if err != nil {
		return fmt.Errorf("load doctor: %w", err)
	}
	return b.notifier.AppointmentBooked(ctx, notification.Booking{
		Phone:      *a.ContactPhone,
		DoctorName: doc.Name,
		StartAt:    a.StartAt,
	})
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		return auth.DevAuthMiddleware()
	}
	return auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
	})
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := newLogger(os.Getenv("ENV"))
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.BodyLimit(cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, gcal.TokenHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	public := e.Group("/api/v1")
	rateLimit := middleware.RateLimitConfig{RequestsPerSecond: cfg.RateLimitRPS, BurstSize: cfg.RateLimitBurst}
	if rateLimit.RequestsPerSecond <= 0 {
		rateLimit = middleware.DefaultRateLimitConfig()
	}
	apiV1 := e.Group("/api/v1", authMiddleware(cfg), middleware.RateLimit(rateLimit))

	tx := db.NewTransactor(pool)

	// Doctors
	doctorSvc := doctor.NewService(doctor.NewDoctorRepoPG(pool))
	doctor.NewHandler(doctorSvc).RegisterRoutes(apiV1)

	// Calendars
	calendarSvc := newCalendarService(pool, doctorSvc)
	calendar.NewHandler(calendarSvc).RegisterRoutes(apiV1)

	// Availability and the booking guard
	apptRepo := appointment.NewAppointmentRepoPG(pool)
	availabilitySvc := availability.NewService(
		availability.Engine{ClipToClose: cfg.SlotClipToClose},
		doctorSvc,
		calendarSvc,
		appointment.NewBookingSource(apptRepo),
	)
	availability.NewHandler(availabilitySvc).RegisterRoutes(apiV1)

	// Appointments
	notifier := &bookingNotifier{doctors: doctorSvc, notifier: notification.NewNotifier(newSender(cfg))}
	appointmentSvc := appointment.NewService(apptRepo, availabilitySvc, notifier, tx)
	appointment.NewHandler(appointmentSvc).RegisterRoutes(apiV1)

	// Google Calendar import
	if cfg.GoogleEnabled() {
		client := gcal.NewClient(gcal.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleSecret,
			RedirectURL:  cfg.GoogleRedirect,
		})
		gh := gcal.NewHandler(client, gcal.NewImporter(client), calendarSvc)
		gh.RegisterRoutes(apiV1)
		gh.RegisterCallback(public)
		logger.Info().Msg("google calendar import enabled")
	}

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
