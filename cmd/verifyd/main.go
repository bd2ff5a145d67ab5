package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	verify "github.com/campuslink/verify"
	"github.com/campuslink/verify/directory"
	"github.com/campuslink/verify/httpapi"
	"github.com/campuslink/verify/smtpmail"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
	})

	mailer := smtpmail.New(smtpmail.Config{
		Host:     getEnv("SMTP_HOST", "localhost"),
		Port:     getEnv("SMTP_PORT", "1025"),
		From:     getEnv("SMTP_FROM", "noreply@campuslink.example"),
		Username: getEnv("SMTP_USERNAME", ""),
		Password: getEnv("SMTP_PASSWORD", ""),
	})

	// Directory lookup backed by DynamoDB. Without a table name the server
	// falls back to an empty in-memory directory, which answers every
	// registration availability check with "free".
	var lookup verify.IdentityLookup = directory.StaticDirectory{}
	if table := getEnv("DYNAMO_TABLE_USERS", ""); table != "" {
		client, err := directory.NewClient(context.Background(), directory.ClientConfig{
			Region:      getEnv("AWS_REGION", "us-east-1"),
			EndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
			AccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		})
		if err != nil {
			log.Fatalf("dynamodb client: %v", err)
		}
		lookup = directory.New(client, table)
	} else {
		log.Println("WARN: DYNAMO_TABLE_USERS not set, using empty in-memory directory")
	}

	cfg := verify.DefaultConfig()
	cfg.Challenge.TTL = getEnvDuration("CHALLENGE_TTL", cfg.Challenge.TTL)
	cfg.Lockout.LockoutDuration = getEnvDuration("ISSUE_LOCKOUT_DURATION", cfg.Lockout.LockoutDuration)

	builder := verify.New().
		WithConfig(cfg).
		WithRedis(redisClient).
		WithMailer(mailer).
		WithIdentityLookup(lookup).
		WithMetricsEnabled(true)

	if getEnv("AUDIT_LOG", "stdout") == "stdout" {
		builder = builder.WithAuditSink(verify.NewJSONWriterSink(os.Stdout))
	}

	engine, err := builder.Build()
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	defer engine.Close()

	router := httpapi.NewRouter(httpapi.Config{
		AllowedOrigins:    strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		JWTSecret:         []byte(getEnv("JWT_SECRET", "")),
		SendRatePerSecond: getEnvFloat("SEND_RATE_PER_SECOND", 1),
		SendBurst:         getEnvInt("SEND_BURST", 3),
	}, engine)

	port := getEnv("APP_PORT", "3000")
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
