package notification

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRejectsToken(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"The registration token is not a valid FCM registration token", true},
		{"Invalid registration token provided. Make sure it matches the registration token the client app receives", true},
		{"Request contains an invalid argument.", false},
		{"android.notification.color must be in the form #RRGGBB", false},
		{"Message exceeded maximum allowed size", false},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, rejectsToken(tt.msg))
		})
	}
}

func TestClassifyUnknownErrorIsTransient(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := classify(cause)

	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, KindTransient, de.Kind)
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsPermanent(err))
}
