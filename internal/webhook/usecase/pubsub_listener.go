package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// PubSubListener pulls Gmail push notifications from the watch topic. It is
// the deployment alternative to the HTTP push endpoint for environments
// without a public ingress.
type PubSubListener struct {
	client    *pubsub.Client
	webhooks  WebhookUsecase
	topicName string
	subName   string
}

func NewPubSubListener(projectID, topicName, credentialsFile string, webhooks WebhookUsecase) (*PubSubListener, error) {
	ctx := context.Background()

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %v", err)
	}

	return &PubSubListener{
		client:    client,
		webhooks:  webhooks,
		topicName: topicName,
		subName:   topicName + "-sub", // Convention: topic-sub
	}, nil
}

func (l *PubSubListener) Start(ctx context.Context) {
	log.Printf("[PubSub] Starting listener with topic: %s, subscription: %s", l.topicName, l.subName)

	sub := l.client.Subscription(l.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		log.Printf("[PubSub] Error checking subscription existence: %v", err)
		return
	}

	if !exists {
		topic := l.client.Topic(l.topicName)
		topicExists, err := topic.Exists(ctx)
		if err != nil {
			log.Printf("[PubSub] Error checking topic existence: %v", err)
			return
		}
		if !topicExists {
			log.Printf("[PubSub] Topic %s does not exist, cannot create subscription", l.topicName)
			return
		}

		sub, err = l.client.CreateSubscription(ctx, l.subName, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 10 * time.Second,
		})
		if err != nil {
			log.Printf("[PubSub] Failed to create subscription: %v", err)
			return
		}
		log.Printf("[PubSub] Created subscription: %s", l.subName)
	}

	log.Printf("[PubSub] Listening for messages on subscription: %s", l.subName)
	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		l.handleMessage(msg)
		msg.Ack()
	})
	if err != nil {
		log.Printf("[PubSub] Error receiving messages: %v", err)
	}
}

func (l *PubSubListener) handleMessage(msg *pubsub.Message) {
	var notification GmailNotification
	if err := json.Unmarshal(msg.Data, &notification); err != nil {
		log.Printf("[PubSub] Failed to unmarshal notification: %v", err)
		return
	}
	l.webhooks.HandleGmail(&notification)
}
