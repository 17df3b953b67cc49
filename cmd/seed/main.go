package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-care-scheduling/internal/appointment"
	"github.com/hackgods/clinic-care-scheduling/internal/authz"
	"github.com/hackgods/clinic-care-scheduling/internal/availability"
	"github.com/hackgods/clinic-care-scheduling/internal/care"
	"github.com/hackgods/clinic-care-scheduling/internal/config"
	"github.com/hackgods/clinic-care-scheduling/internal/db"
	"github.com/hackgods/clinic-care-scheduling/internal/logging"
	redisclient "github.com/hackgods/clinic-care-scheduling/internal/redis"
	"github.com/hackgods/clinic-care-scheduling/internal/timeofday"
)

const (
	coordinatorCount  = 3
	psychologistCount = 40
	internCount       = 40
	patientCount      = 2000
)

// workingBlocks are the weekly windows every psychologist gets.
var workingBlocks = [][2]string{
	{"09:00", "13:00"},
	{"15:00", "19:00"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.PoolOptions())
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	gofakeit.Seed(time.Now().UnixNano())

	bg := context.Background()
	coordinators, err := seedUsers(bg, pool, authz.RoleCoordinator, coordinatorCount)
	if err != nil {
		logger.Fatal("seed coordinators", zap.Error(err))
	}
	psychologists, err := seedUsers(bg, pool, authz.RolePsychologist, psychologistCount)
	if err != nil {
		logger.Fatal("seed psychologists", zap.Error(err))
	}
	interns, err := seedUsers(bg, pool, authz.RoleIntern, internCount)
	if err != nil {
		logger.Fatal("seed interns", zap.Error(err))
	}
	patients, err := seedPatients(bg, pool, logger, patientCount)
	if err != nil {
		logger.Fatal("seed patients", zap.Error(err))
	}

	conn := db.NewTransactor(pool)
	appointments := appointment.NewService(appointment.NewPgRepository(), conn, redisclient.NopLocker{}, cfg)
	windows := availability.NewService(availability.NewPgRepository(), conn, appointments, cfg, availability.WithLogger(logger))
	episodes := care.NewService(care.NewPgRepository(), conn, appointments, cfg, care.WithLogger(logger))

	if err := seedWindows(bg, windows, psychologists); err != nil {
		logger.Fatal("seed availability", zap.Error(err))
	}
	if err := seedAssignments(bg, episodes, coordinators[0], patients, psychologists, interns); err != nil {
		logger.Fatal("seed assignments", zap.Error(err))
	}

	logger.Info("seed complete",
		zap.Int("coordinators", len(coordinators)),
		zap.Int("psychologists", len(psychologists)),
		zap.Int("interns", len(interns)),
		zap.Int("patients", len(patients)),
	)
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, role authz.Role, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d %s users", count, role)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, name, email, role, active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, TRUE, now(), now())
		`, id, gofakeit.Name(), gofakeit.Email(), string(role))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger, count int) ([]uuid.UUID, error) {
	const batchSize = 500

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, active, status, created_at, updated_at)
				VALUES ($1, $2, $3, TRUE, 'active', now(), now())
			`, id, gofakeit.Name(), gofakeit.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}

		logger.Info("patients seeded", zap.Int("done", end), zap.Int("total", count))
	}
	return ids, nil
}

// seedWindows gives each psychologist the working blocks on a random set of
// weekdays, going through the service so overlap rules apply.
func seedWindows(ctx context.Context, svc *availability.Service, psychologists []uuid.UUID) error {
	for _, owner := range psychologists {
		days := gofakeit.Number(3, 5)
		for _, day := range timeofday.Weekdays[:days] {
			for _, block := range workingBlocks {
				_, err := svc.Create(ctx, owner, availability.NewWindow{
					OwnerID:   owner,
					DayOfWeek: string(day),
					Start:     block[0],
					End:       block[1],
				})
				if err != nil && !errors.Is(err, availability.ErrOverlapConflict) {
					return fmt.Errorf("window %s %s-%s: %w", day, block[0], block[1], err)
				}
			}
		}
	}
	return nil
}

// seedAssignments pairs every patient with a psychologist and, for about half
// of them, an intern.
func seedAssignments(ctx context.Context, svc *care.Service, actor uuid.UUID, patients, psychologists, interns []uuid.UUID) error {
	for _, patient := range patients {
		in := care.NewAssignment{
			PatientID:             patient,
			PrimaryProfessionalID: psychologists[gofakeit.Number(0, len(psychologists)-1)],
		}
		if gofakeit.Bool() {
			intern := interns[gofakeit.Number(0, len(interns)-1)]
			in.InternID = &intern
		}
		if _, err := svc.CreateAssignment(ctx, actor, in); err != nil {
			return fmt.Errorf("assign patient %s: %w", patient, err)
		}
	}
	return nil
}
