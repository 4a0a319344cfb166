package notification

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/quocanhngo/quakealert/internal/model"
)

const (
	channelID        = "earthquake_alerts"
	notificationTag  = "earthquake_notification"
	clickAction      = "FLUTTER_NOTIFICATION_CLICK"
	defaultSound     = "default"
	launcherIcon     = "@mipmap/ic_launcher"
	apnsPriorityHigh = 10
)

// Message is a transport-neutral push notification
type Message struct {
	Title       string
	Body        string
	Data        map[string]string
	ChannelID   string
	Tag         string
	ClickAction string
	Sound       string
	Icon        string
	Badge       int
}

// EarthquakeMessage builds the alert for ev. Broadcast alerts carry type=earthquake.
func EarthquakeMessage(ev model.Event, sentAt time.Time, broadcast bool) *Message {
	title := fmt.Sprintf("แผ่นดินไหวขนาด %.1f", ev.Magnitude)
	body := fmt.Sprintf("เกิดแผ่นดินไหวที่ %s", ev.Place)

	data := eventData(ev, sentAt)
	if broadcast {
		data["type"] = "earthquake"
	}
	return newMessage(title, body, data)
}

// TestMessage builds a manual test alert. Empty title or body fall back to a generated text.
func TestMessage(ev model.Event, title, body string, sentAt time.Time) *Message {
	if title == "" {
		title = "ทดสอบการแจ้งเตือน"
	}
	if body == "" {
		body = fmt.Sprintf("ทดสอบขนาด %.1f ที่ %s", ev.Magnitude, ev.Place)
	}
	data := eventData(ev, sentAt)
	data["isTest"] = "true"
	return newMessage(title, body, data)
}

func newMessage(title, body string, data map[string]string) *Message {
	return &Message{
		Title:       title,
		Body:        body,
		Data:        data,
		ChannelID:   channelID,
		Tag:         notificationTag,
		ClickAction: clickAction,
		Sound:       defaultSound,
		Icon:        launcherIcon,
		Badge:       1,
	}
}

func eventData(ev model.Event, sentAt time.Time) map[string]string {
	return map[string]string{
		"id":                ev.ID,
		"magnitude":         formatFloat(ev.Magnitude),
		"place":             ev.Place,
		"time":              ev.OccurredAt.UTC().Format(time.RFC3339Nano),
		"notification_time": sentAt.UTC().Format(time.RFC3339Nano),
		"latitude":          formatFloat(ev.Latitude),
		"longitude":         formatFloat(ev.Longitude),
		"depth":             formatFloat(ev.Depth),
		"location":          ev.Place,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ErrorKind classifies delivery failures
type ErrorKind string

const (
	// KindTransient failures may succeed on retry; the endpoint stays registered
	KindTransient ErrorKind = "transient"
	// KindPermanent means the endpoint was rejected and must be removed
	KindPermanent ErrorKind = "permanent"
)

// DeliveryError is a classified send failure
type DeliveryError struct {
	Kind ErrorKind
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery error: %v", e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err marks the endpoint as permanently invalid
func IsPermanent(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Kind == KindPermanent
}
