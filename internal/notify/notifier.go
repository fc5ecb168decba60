// Package notify dispatches push notifications for newly stored insights.
// Delivery is best-effort: the insight store is authoritative, and a failed
// push is logged, never escalated.
package notify

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/dvloznov/insight-engine/internal/domain"
	"github.com/dvloznov/insight-engine/internal/store"
	"github.com/rs/zerolog"
)

// Notifier pushes one stored insight to the user's registered device.
type Notifier interface {
	Push(ctx context.Context, userID string, rec domain.InsightRecord) error
}

// FCMNotifier delivers through Firebase Cloud Messaging. The data payload
// carries type/category/title/body so the client can render the insight's
// iconographic summary without a store round trip.
type FCMNotifier struct {
	client *messaging.Client
	tokens store.DeviceTokenSource
	log    zerolog.Logger
}

// NewFCMNotifier initializes the Firebase app from application default
// credentials.
func NewFCMNotifier(ctx context.Context, tokens store.DeviceTokenSource, log zerolog.Logger) (*FCMNotifier, error) {
	app, err := firebase.NewApp(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("notify: initializing firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("notify: creating messaging client: %w", err)
	}
	return &FCMNotifier{client: client, tokens: tokens, log: log}, nil
}

// Push implements Notifier. A user without a registered device is skipped
// silently.
func (n *FCMNotifier) Push(ctx context.Context, userID string, rec domain.InsightRecord) error {
	token, err := n.tokens.DeviceToken(ctx, userID)
	if err != nil {
		return fmt.Errorf("notify: resolving device token for %s: %w", userID, err)
	}
	if token == "" {
		n.log.Debug().Str("user_id", userID).Msg("No registered device, skipping push")
		return nil
	}

	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: rec.Title,
			Body:  rec.Body,
		},
		Data: map[string]string{
			"type":     string(rec.Type),
			"title":    rec.Title,
			"body":     rec.Body,
			"category": rec.Category,
		},
	}

	if _, err := n.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: sending push for insight %s: %w", rec.ID, err)
	}

	n.log.Info().
		Str("user_id", userID).
		Str("insight_id", rec.ID).
		Str("type", string(rec.Type)).
		Msg("Push notification sent")
	return nil
}

// LogNotifier writes the would-be notification to the log. Used when no
// messaging credentials are configured.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n *LogNotifier) Push(ctx context.Context, userID string, rec domain.InsightRecord) error {
	n.Log.Info().
		Str("user_id", userID).
		Str("insight_id", rec.ID).
		Str("type", string(rec.Type)).
		Str("title", rec.Title).
		Msg("Push delivery disabled, logging instead")
	return nil
}

var _ Notifier = (*FCMNotifier)(nil)
var _ Notifier = (*LogNotifier)(nil)
