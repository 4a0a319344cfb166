package notification

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/quocanhngo/quakealert/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent() model.Event {
	return model.Event{
		ID:         "us7000abcd",
		Magnitude:  5.25,
		Place:      "Bangkok, Thailand",
		Latitude:   13.75,
		Longitude:  100.5,
		Depth:      10,
		OccurredAt: time.Date(2025, 3, 28, 6, 20, 0, 0, time.UTC),
	}
}

func TestEarthquakeMessage(t *testing.T) {
	sentAt := time.Date(2025, 3, 28, 6, 21, 0, 0, time.UTC)
	msg := EarthquakeMessage(sampleEvent(), sentAt, false)

	assert.Equal(t, "แผ่นดินไหวขนาด 5.2", msg.Title)
	assert.Equal(t, "เกิดแผ่นดินไหวที่ Bangkok, Thailand", msg.Body)
	assert.Equal(t, map[string]string{
		"id":                "us7000abcd",
		"magnitude":         "5.25",
		"place":             "Bangkok, Thailand",
		"time":              "2025-03-28T06:20:00Z",
		"notification_time": "2025-03-28T06:21:00Z",
		"latitude":          "13.75",
		"longitude":         "100.5",
		"depth":             "10",
		"location":          "Bangkok, Thailand",
	}, msg.Data)
	assert.Equal(t, "earthquake_alerts", msg.ChannelID)
	assert.Equal(t, "FLUTTER_NOTIFICATION_CLICK", msg.ClickAction)
	assert.Equal(t, "default", msg.Sound)
	assert.Equal(t, 1, msg.Badge)
}

func TestEarthquakeMessage_BroadcastType(t *testing.T) {
	msg := EarthquakeMessage(sampleEvent(), time.Now(), true)
	assert.Equal(t, "earthquake", msg.Data["type"])
}

func TestTestMessage_Defaults(t *testing.T) {
	ev := sampleEvent()
	ev.Magnitude = 5
	msg := TestMessage(ev, "", "", time.Now())

	assert.Equal(t, "ทดสอบการแจ้งเตือน", msg.Title)
	assert.Equal(t, "ทดสอบขนาด 5.0 ที่ Bangkok, Thailand", msg.Body)
	assert.Equal(t, "true", msg.Data["isTest"])

	custom := TestMessage(ev, "hello", "world", time.Now())
	assert.Equal(t, "hello", custom.Title)
	assert.Equal(t, "world", custom.Body)
}

func TestToFCM(t *testing.T) {
	msg := EarthquakeMessage(sampleEvent(), time.Now(), false)
	fcm := toFCM("tok-a", msg)

	assert.Equal(t, "tok-a", fcm.Token)
	assert.Equal(t, msg.Title, fcm.Notification.Title)
	assert.Equal(t, "high", fcm.Android.Priority)
	assert.Equal(t, "earthquake_notification", fcm.Android.Notification.Tag)
	assert.Equal(t, "@mipmap/ic_launcher", fcm.Android.Notification.Icon)
	assert.Equal(t, "10", fcm.APNS.Headers["apns-priority"])
	require.NotNil(t, fcm.APNS.Payload.Aps.Badge)
	assert.Equal(t, 1, *fcm.APNS.Payload.Aps.Badge)
	assert.True(t, fcm.APNS.Payload.Aps.ContentAvailable)
	assert.Equal(t, msg.Body, fcm.APNS.Payload.Aps.Alert.Body)
}

func TestIsPermanent(t *testing.T) {
	permanent := &DeliveryError{Kind: KindPermanent, Err: errors.New("unregistered")}
	transient := &DeliveryError{Kind: KindTransient, Err: errors.New("unavailable")}

	assert.True(t, IsPermanent(permanent))
	assert.True(t, IsPermanent(fmt.Errorf("wrapped: %w", permanent)))
	assert.False(t, IsPermanent(transient))
	assert.False(t, IsPermanent(errors.New("plain")))
	assert.False(t, IsPermanent(nil))
	assert.Contains(t, permanent.Error(), "permanent")
}

func TestDisabledSender(t *testing.T) {
	err := Disabled{}.Send(context.Background(), "tok", &Message{})
	assert.ErrorIs(t, err, ErrDisabled)
	assert.False(t, IsPermanent(err))
	assert.NoError(t, Disabled{}.Validate(context.Background(), "tok"))
}
