package push

import (
	"context"
	"fmt"
	"time"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"deliveryBack/internal/rider/events"
	"deliveryBack/internal/rider/model"
)

const (
	sendTimeout  = 10 * time.Second
	sendParallel = 8
)

// Sender delivers a prepared push message. *messaging.Client implements it.
type Sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// Riders resolves push recipients.
type Riders interface {
	GetRider(ctx context.Context, id string) (model.Rider, error)
	ListOnlineRiders(ctx context.Context) ([]model.Rider, error)
}

// Logger is the minimal logging contract of the notifier.
type Logger interface {
	Infof(string, ...interface{})
	Errorf(string, ...interface{})
}

// NewFirebaseClient builds an FCM client from a service account file.
func NewFirebaseClient(ctx context.Context, credentialsFile string) (*messaging.Client, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase messaging: %w", err)
	}
	return client, nil
}

// Notifier turns forced-offline and new-request events into device pushes.
type Notifier struct {
	sender Sender
	riders Riders
	logger Logger
}

// NewNotifier constructs a notifier.
func NewNotifier(sender Sender, riders Riders, logger Logger) *Notifier {
	return &Notifier{sender: sender, riders: riders, logger: logger}
}

// Run consumes the bus until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context, bus *events.Bus) error {
	ch, cancel := bus.Subscribe(events.TopicRiderOffline, events.TopicNewPending)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			n.handle(ctx, evt)
		}
	}
}

func (n *Notifier) handle(ctx context.Context, evt events.Event) {
	switch evt.Topic {
	case events.TopicRiderOffline:
		rider, err := n.riders.GetRider(ctx, evt.RiderID)
		if err != nil {
			n.logger.Errorf("rider push: load rider %s: %v", evt.RiderID, err)
			return
		}
		if rider.PushToken == "" {
			return
		}
		n.send(ctx, rider, newMessage(rider.PushToken, "You are offline",
			"No activity for a while, you were switched offline", map[string]string{
				"type":   evt.Topic,
				"reason": evt.Reason,
			}))

	case events.TopicNewPending:
		riders, err := n.riders.ListOnlineRiders(ctx)
		if err != nil {
			n.logger.Errorf("rider push: list online riders: %v", err)
			return
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(sendParallel)
		for _, rider := range riders {
			if rider.PushToken == "" {
				continue
			}
			g.Go(func() error {
				n.send(gctx, rider, newMessage(rider.PushToken, "New delivery request",
					"A new request is waiting to be claimed", map[string]string{
						"type":       evt.Topic,
						"request_id": evt.RequestID,
					}))
				return nil
			})
		}
		_ = g.Wait()
	}
}

func (n *Notifier) send(ctx context.Context, rider model.Rider, msg *messaging.Message) {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	id, err := n.sender.Send(ctx, msg)
	if err != nil {
		n.logger.Errorf("rider push: send to %s failed: %v", rider.ID, err)
		return
	}
	n.logger.Infof("rider push: sent %s to %s", id, rider.ID)
}

func newMessage(token, title, body string, data map[string]string) *messaging.Message {
	return &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: "high_priority_channel",
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority": "10",
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: title,
						Body:  body,
					},
					Sound: "default",
				},
			},
		},
	}
}
