package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	api "github.com/domsius/email-assistant/cmd/api"
	accountdomain "github.com/domsius/email-assistant/internal/account/domain"
	accountRepo "github.com/domsius/email-assistant/internal/account/repository"
	accountUsecase "github.com/domsius/email-assistant/internal/account/usecase"
	messagedomain "github.com/domsius/email-assistant/internal/message/domain"
	messageRepo "github.com/domsius/email-assistant/internal/message/repository"
	messageUsecase "github.com/domsius/email-assistant/internal/message/usecase"
	"github.com/domsius/email-assistant/internal/provider"
	"github.com/domsius/email-assistant/internal/provider/gmail"
	"github.com/domsius/email-assistant/internal/provider/imapmail"
	"github.com/domsius/email-assistant/internal/provider/outlook"
	"github.com/domsius/email-assistant/internal/sync/scheduler"
	syncUsecase "github.com/domsius/email-assistant/internal/sync/usecase"
	webhookUsecase "github.com/domsius/email-assistant/internal/webhook/usecase"
	"github.com/domsius/email-assistant/pkg/blob"
	"github.com/domsius/email-assistant/pkg/config"
	"github.com/domsius/email-assistant/pkg/database"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&accountdomain.Account{},
		&accountdomain.WebhookSubscription{},
		&accountdomain.SyncRun{},
		&messagedomain.Message{},
		&messagedomain.Attachment{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize repositories (dependency injection)
	accounts := accountRepo.NewAccountRepository(db)
	subscriptions := accountRepo.NewSubscriptionRepository(db)
	runs := accountRepo.NewSyncRunRepository(db)
	messages := messageRepo.NewMessageRepository(db)

	blobs, err := blob.NewStore(cfg.BlobDir)
	if err != nil {
		log.Fatal("Failed to initialize attachment store:", err)
	}

	// Provider clients
	clients := map[accountdomain.ProviderKind]provider.Client{
		accountdomain.ProviderGmail:   gmail.NewClient(cfg.GoogleClientID, cfg.GoogleClientSecret),
		accountdomain.ProviderOutlook: outlook.NewClient(),
		accountdomain.ProviderIMAP:    imapmail.NewClient(),
	}

	// Sync machinery
	tokens := syncUsecase.NewTokenManager(accounts, cfg)
	queue := syncUsecase.NewTriggerQueue(cfg.SyncQueueSize)
	discovery := syncUsecase.NewDiscovery(cfg.SyncPageSize, cfg.BackfillWindow, cfg.BackfillMaxMessages)
	ingestion := syncUsecase.NewIngestion(messages, blobs)
	orchestrator := syncUsecase.NewOrchestrator(accounts, runs, queue, tokens, discovery, ingestion, clients, cfg)
	orchestrator.Start(context.Background())

	// Gmail watches need the fully qualified topic resource name.
	topicResource := cfg.GooglePubSubTopic
	if topicResource != "" && !strings.Contains(topicResource, "/") {
		topicResource = fmt.Sprintf("projects/%s/topics/%s", cfg.GoogleProjectID, topicResource)
	}
	watches := syncUsecase.NewWatchManager(accounts, subscriptions, tokens, clients, topicResource, cfg.GraphNotificationURL)

	// Scheduler: periodic polling and watch renewal
	sched := scheduler.New(accounts, orchestrator, watches, cfg)
	if err := sched.Start(); err != nil {
		log.Fatal("Failed to start scheduler:", err)
	}

	// Use cases (dependency injection)
	webhookUc := webhookUsecase.NewWebhookUsecase(accounts, subscriptions, orchestrator)
	accountUc := accountUsecase.NewAccountUsecase(accounts, runs, messages, blobs, tokens, watches, orchestrator, clients, cfg)
	messageUc := messageUsecase.NewMessageUsecase(messages, blobs)

	// Pub/Sub pull listener for Gmail notifications (deployments without a
	// public push endpoint)
	if cfg.GoogleProjectID != "" && cfg.GooglePubSubTopic != "" {
		topicName := cfg.GooglePubSubTopic
		if parts := strings.Split(topicName, "/"); len(parts) > 1 {
			topicName = parts[len(parts)-1]
		}

		listener, err := webhookUsecase.NewPubSubListener(cfg.GoogleProjectID, topicName, cfg.GoogleCredentials, webhookUc)
		if err != nil {
			log.Printf("[WARN] Failed to initialize Pub/Sub listener: %v", err)
		} else {
			go listener.Start(context.Background())
		}
	} else {
		log.Printf("[WARN] GoogleProjectID not configured, Pub/Sub listener disabled")
	}

	// Initialize HTTP handler
	handler := api.NewHandler(accountUc, messageUc, webhookUc, accounts, orchestrator, cfg)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
