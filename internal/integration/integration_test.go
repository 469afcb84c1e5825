package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quizparty-service/internal/app"
	"quizparty-service/internal/domain"
	pgloader "quizparty-service/internal/infra/postgres"
	pgmigrations "quizparty-service/internal/infra/postgres/migrations"
	infraredis "quizparty-service/internal/infra/redis"
)

func TestGameSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuiz(t, ctx, pgURL, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgloader.NewQuizLoader(pool)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	quizRepo := infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute)
	store := infraredis.NewGateway(redisClient, 5*time.Minute)
	service := app.NewGameService(store, quizRepo)

	session, err := service.CreateSession(ctx, "host-1", "quiz-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, ann, err := service.JoinSession(ctx, session.JoinCode, "Ann")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	_, ben, err := service.JoinSession(ctx, session.JoinCode, "Ben")
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, err := service.StartSession(ctx, session.ID, "host-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	outcome, err := service.NextQuestion(ctx, session.ID, "host-1")
	if err != nil || outcome.Question == nil {
		t.Fatalf("advance: %+v err=%v", outcome, err)
	}

	first, err := service.SubmitAnswer(ctx, session.ID, ann.ID, "q1", 1, 600)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	second, err := service.SubmitAnswer(ctx, session.ID, ben.ID, "q1", 1, 900)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if first.Points != 100 || second.Points != 75 {
		t.Fatalf("expected 100/75 split, got %d/%d", first.Points, second.Points)
	}

	final, err := service.NextQuestion(ctx, session.ID, "host-1")
	if err != nil {
		t.Fatalf("final advance: %v", err)
	}
	if !final.Finished || final.Result == nil {
		t.Fatalf("expected finished session, got %+v", final)
	}
	if final.Result.AverageScore != 88 {
		t.Fatalf("expected average 88, got %d", final.Result.AverageScore)
	}

	stored, err := service.GameResult(ctx, session.ID)
	if err != nil {
		t.Fatalf("stored result: %v", err)
	}
	if stored.SessionID != session.ID || len(stored.Leaderboard) != 2 {
		t.Fatalf("unexpected persisted result: %+v", stored)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedQuiz(t *testing.T, ctx context.Context, dsn string, quiz domain.Quiz) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, data) VALUES (? , ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, quiz.ID, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Integration",
		Questions: []domain.Question{
			{
				ID:            "q1",
				Prompt:        "What is 2 + 2?",
				Choices:       []string{"3", "4", "5"},
				CorrectAnswer: 1,
				TimeLimit:     20,
				Points:        100,
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
