package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// ErrDisabled is returned by the Disabled sender
var ErrDisabled = errors.New("push notifications disabled")

// Sender delivers one message to one endpoint token
type Sender interface {
	Send(ctx context.Context, token string, msg *Message) error
	// Validate checks a token without showing anything on the device
	Validate(ctx context.Context, token string) error
}

// FCMSender sends notifications through Firebase Cloud Messaging
type FCMSender struct {
	client *messaging.Client
}

// NewFCMSender creates a new FCM sender.
// It returns nil without error when no credentials are configured.
func NewFCMSender(ctx context.Context, credentialsFile string) (*FCMSender, error) {
	if credentialsFile == "" {
		log.Println("⚠️ Firebase credentials not provided, push notifications disabled")
		return nil, nil
	}

	opt := option.WithCredentialsFile(credentialsFile)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	log.Println("✅ Firebase FCM initialized")
	return &FCMSender{client: client}, nil
}

// Send delivers msg to token. Failures are returned as *DeliveryError.
func (s *FCMSender) Send(ctx context.Context, token string, msg *Message) error {
	if _, err := s.client.Send(ctx, toFCM(token, msg)); err != nil {
		return classify(err)
	}
	return nil
}

// Validate dry-runs a silent data message to token
func (s *FCMSender) Validate(ctx context.Context, token string) error {
	ping := &messaging.Message{
		Token: token,
		Data:  map[string]string{"type": "ping"},
	}
	if _, err := s.client.SendDryRun(ctx, ping); err != nil {
		return classify(err)
	}
	return nil
}

// classify maps FCM errors onto delivery error kinds.
// Unregistered or rejected tokens are permanent; everything else may be retried.
// INVALID_ARGUMENT only counts when FCM blames the token, since a bad payload would otherwise
// remove every endpoint it is sent to.
func classify(err error) error {
	kind := KindTransient
	switch {
	case messaging.IsUnregistered(err), messaging.IsSenderIDMismatch(err):
		kind = KindPermanent
	case messaging.IsInvalidArgument(err) && rejectsToken(err.Error()):
		kind = KindPermanent
	}
	return &DeliveryError{Kind: kind, Err: err}
}

// rejectsToken reports whether an INVALID_ARGUMENT message is about the registration token itself,
// e.g. "The registration token is not a valid FCM registration token"
func rejectsToken(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "registration token")
}

// toFCM builds the FCM message with Android and APNS delivery hints
func toFCM(token string, msg *Message) *messaging.Message {
	badge := msg.Badge
	return &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID:   msg.ChannelID,
				Tag:         msg.Tag,
				ClickAction: msg.ClickAction,
				Sound:       msg.Sound,
				Icon:        msg.Icon,
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority": strconv.Itoa(apnsPriorityHigh),
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: msg.Title,
						Body:  msg.Body,
					},
					Badge:            &badge,
					Sound:            msg.Sound,
					ContentAvailable: true,
				},
			},
		},
	}
}

// Disabled is used when Firebase is not configured; every send fails transiently
type Disabled struct{}

func (Disabled) Send(ctx context.Context, token string, msg *Message) error {
	return &DeliveryError{Kind: KindTransient, Err: ErrDisabled}
}

func (Disabled) Validate(ctx context.Context, token string) error {
	return nil
}
