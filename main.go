package main

import (
	"context"
	"encoding/base64"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pregram/pregram/api"
	"github.com/pregram/pregram/cache/redis"
	"github.com/pregram/pregram/mq/sqsmq"
	"github.com/pregram/pregram/service"
	"github.com/pregram/pregram/store/dynamo"
	"golang.org/x/oauth2"
)

const (
	DynamoDBTable          = "Pregram"
	SQSPurgeAccountsQueue  = "PurgeAccountLayoutsQueue"
	DefaultInstagramAPIURL = "https://api.instagram.com"
)

func main() {
	ctx := context.Background()
	devMode := os.Getenv("DEV_MODE") == "true"

	pregramStore, err := dynamo.NewDynamoPregramStore(ctx, devMode, os.Getenv("DYNAMODB_ENDPOINT"), DynamoDBTable)
	if err != nil {
		log.Fatalf("Failed to create dynamodb store: %v", err)
	}

	purgeAccountQueue, err := sqsmq.NewSQSPurgeQueue(ctx, devMode, os.Getenv("SQS_ENDPOINT"), SQSPurgeAccountsQueue)
	if err != nil {
		log.Fatalf("Failed to create SQS MQ: %v", err)
	}

	pregramCache, err := redis.NewRedisPregramCache(ctx, devMode, os.Getenv("REDIS_ENDPOINT"))
	if err != nil {
		log.Fatalf("Failed to create redis cache: %v", err)
	}

	appOrigin := os.Getenv("APP_ORIGIN")

	var oauthConfigs = map[string]*oauth2.Config{
		"google": {
			ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			RedirectURL:  appOrigin + "/auth/callback",
		},
		"facebook": {
			ClientID:     os.Getenv("FACEBOOK_CLIENT_ID"),
			ClientSecret: os.Getenv("FACEBOOK_CLIENT_SECRET"),
			RedirectURL:  appOrigin + "/auth/callback",
		},
	}

	instagramAPIURL := os.Getenv("INSTAGRAM_API_URL")
	if instagramAPIURL == "" {
		instagramAPIURL = DefaultInstagramAPIURL
	}
	feed := service.NewInstagramFeed(
		instagramAPIURL,
		os.Getenv("INSTAGRAM_CLIENT_ID"),
		os.Getenv("INSTAGRAM_CLIENT_SECRET"),
		appOrigin+"/connect/callback",
	)

	jwtSecret, err := base64.StdEncoding.DecodeString(os.Getenv("JWT_SECRET"))
	if err != nil {
		log.Fatalf("Failed to decode base64 jwtSecret: %v", err)
	}

	shutdownCtx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	pregramApi, err := api.NewPregramAPI(pregramStore, purgeAccountQueue, pregramCache, feed, oauthConfigs, jwtSecret, shutdownCtx)
	if err != nil {
		log.Fatalf("Failed to create pregram api: %v", err)
	}

	mux := http.NewServeMux()
	pregramApi.RegisterRoutes(mux, appOrigin)

	hostPort := "8080"
	if p := os.Getenv("HOST_PORT"); p != "" {
		hostPort = p
	}
	log.Printf("Starting server on host port: %s\n", hostPort)
	log.Fatal(http.ListenAndServe(":"+hostPort, mux))
}
