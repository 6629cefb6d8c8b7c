package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medlinkhq/telehealth-triage/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedProviders(context.Background(), pool, 25); err != nil {
		log.Fatalf("seed providers: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 500); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d providers", count)

	specializations := []string{
		"General Practice",
		"Internal Medicine",
		"Emergency Medicine",
		"Family Medicine",
		"Cardiology",
		"Pulmonology",
		"Pediatrics",
		"Dermatology",
	}
	statuses := []string{"available", "available", "busy", "offline"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		email := gofakeit.Email()
		spec := specializations[gofakeit.Number(0, len(specializations)-1)]
		license := gofakeit.LetterN(2) + gofakeit.DigitN(6)
		status := statuses[gofakeit.Number(0, len(statuses)-1)]
		rating := gofakeit.Float64Range(3.0, 5.0)

		_, err := tx.Exec(ctx, `
			INSERT INTO providers (id, name, email, specialization, license_number, status, rating, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		`, id, name, email, spec, license, status, rating)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("providers seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 100

	genders := []string{"male", "female", "other"}

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()
			age := gofakeit.Number(18, 90)
			gender := genders[gofakeit.Number(0, len(genders)-1)]

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, age, gender, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, now(), now())
			`, id, name, email, age, gender)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}
