package message_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spiral/relayrpc/pkg/message"
)

func TestSplitServiceMethodRightmostDot(t *testing.T) {
	service, method, ok := message.SplitServiceMethod("Echo.Namespace.echo")
	assert.True(t, ok)
	assert.Equal(t, "Echo.Namespace", service)
	assert.Equal(t, "echo", method)
}

func TestSplitServiceMethodNoDot(t *testing.T) {
	_, _, ok := message.SplitServiceMethod("NoDot")
	assert.False(t, ok)
}

func TestCancellationBodyRoundTrip(t *testing.T) {
	body := message.CancellationBody(7)
	assert.Equal(t, "!CANCEL.7", body)

	id, ok := message.ParseCancellationBody(body)
	assert.True(t, ok)
	assert.EqualValues(t, 7, id)
}

func TestParseCancellationBodyRejectsGarbage(t *testing.T) {
	_, ok := message.ParseCancellationBody("not a cancellation")
	assert.False(t, ok)
}

func TestIsCancellation(t *testing.T) {
	h := message.RequestHeader{Id: 1, ServiceMethod: message.CANCELLATION_TOKEN}
	assert.True(t, h.IsCancellation())

	h2 := message.RequestHeader{Id: 1, ServiceMethod: "Echo.echo"}
	assert.False(t, h2.IsCancellation())
}
