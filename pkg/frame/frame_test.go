package frame_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spiral/relayrpc/pkg/frame"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := frame.NewWriter(&buf)
	in := frame.Frame{
		MessageId:   42,
		FrameId:     frame.BodyFrameId,
		PayloadType: frame.PayloadData,
		Payload:     []byte("hello world"),
	}
	require.NoError(t, w.WriteFrame(in))

	r := frame.NewReader(&buf)
	out, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, in.MessageId, out.MessageId)
	assert.Equal(t, in.FrameId, out.FrameId)
	assert.Equal(t, in.PayloadType, out.PayloadType)
	assert.Equal(t, in.Payload, out.Payload)
}

func TestFrameZeroLengthPayload(t *testing.T) {
	var buf bytes.Buffer
	w := frame.NewWriter(&buf)
	require.NoError(t, w.WriteFrame(frame.Frame{MessageId: 1, FrameId: frame.HeaderFrameId}))

	r := frame.NewReader(&buf)
	out, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Empty(t, out.Payload)
}

func TestFrameMagicMismatch(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x00, 1, 2, 3, 4, 5, 6, 7, 8})
	r := frame.NewReader(buf)
	_, err := r.ReadFrame()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "magic")
}

func TestFrameCleanEOF(t *testing.T) {
	r := frame.NewReader(bytes.NewReader(nil))
	_, err := r.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameMultipleFramesOrdered(t *testing.T) {
	var buf bytes.Buffer
	w := frame.NewWriter(&buf)
	require.NoError(t, w.WriteFrame(frame.Frame{MessageId: 1, FrameId: 0, Payload: []byte("a")}))
	require.NoError(t, w.WriteFrame(frame.Frame{MessageId: 1, FrameId: 1, Payload: []byte("b")}))

	r := frame.NewReader(&buf)
	f1, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, frame.FrameId(0), f1.FrameId)

	f2, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, frame.FrameId(1), f2.FrameId)
}
