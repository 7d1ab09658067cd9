package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInbound_SendMessage(t *testing.T) {
	v, err := ParseInbound([]byte(`{"type":"send_message","payload":{"receiverId":"b","message":"hi"}}`))
	require.NoError(t, err)

	msg, ok := v.(SendMessage)
	require.True(t, ok)
	assert.Equal(t, "b", msg.ReceiverID)
	assert.Equal(t, "hi", msg.Message)
	assert.True(t, msg.Encrypted(), "encrypt must default to true")
}

func TestParseInbound_SendMessage_EncryptOptOut(t *testing.T) {
	v, err := ParseInbound([]byte(`{"type":"send_message","payload":{"receiverId":"b","message":"hi","encrypt":false}}`))
	require.NoError(t, err)

	msg := v.(SendMessage)
	assert.False(t, msg.Encrypted())
}

func TestParseInbound_TypingVariants(t *testing.T) {
	v, err := ParseInbound([]byte(`{"type":"typing_start","payload":{"receiverId":"b"}}`))
	require.NoError(t, err)
	_, ok := v.(TypingStart)
	assert.True(t, ok)

	v, err = ParseInbound([]byte(`{"type":"typing_stop","payload":{"receiverId":"b"}}`))
	require.NoError(t, err)
	_, ok = v.(TypingStop)
	assert.True(t, ok)
}

func TestParseInbound_SessionPassthrough(t *testing.T) {
	v, err := ParseInbound([]byte(`{"type":"session_confirmed","payload":{"toUserId":"b","session":{"id":7},"message":"see you"}}`))
	require.NoError(t, err)

	ev, ok := v.(SessionConfirmed)
	require.True(t, ok)
	assert.Equal(t, "b", ev.ToUserID)
	assert.JSONEq(t, `{"id":7}`, string(ev.Session))
}

func TestParseInbound_JoinLeaveMarkRead(t *testing.T) {
	v, err := ParseInbound([]byte(`{"type":"join_conversation","payload":{"otherUserId":"b"}}`))
	require.NoError(t, err)
	assert.Equal(t, JoinConversation{OtherUserID: "b"}, v)

	v, err = ParseInbound([]byte(`{"type":"leave_conversation","payload":{"otherUserId":"b"}}`))
	require.NoError(t, err)
	assert.Equal(t, LeaveConversation{OtherUserID: "b"}, v)

	v, err = ParseInbound([]byte(`{"type":"mark_read","payload":{"otherUserId":"b"}}`))
	require.NoError(t, err)
	assert.Equal(t, MarkRead{OtherUserID: "b"}, v)
}

func TestParseInbound_UnknownType(t *testing.T) {
	_, err := ParseInbound([]byte(`{"type":"self_destruct","payload":{}}`))
	assert.True(t, errors.Is(err, ErrUnknownEvent))
}

func TestParseInbound_MalformedFrames(t *testing.T) {
	cases := [][]byte{
		[]byte(`not json`),
		[]byte(`{"type":"send_message"}`),
		[]byte(`{"type":"send_message","payload":{"message":"hi"}}`),
		[]byte(`{"type":"join_conversation","payload":{}}`),
		[]byte(`{"type":"typing_start","payload":{}}`),
		[]byte(`{"type":"session_confirmed","payload":{"message":"x"}}`),
	}
	for _, c := range cases {
		_, err := ParseInbound(c)
		assert.Error(t, err, "frame %s must be rejected", c)
		assert.False(t, errors.Is(err, ErrUnknownEvent), "frame %s is malformed, not unknown", c)
	}
}
