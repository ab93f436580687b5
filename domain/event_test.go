package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name        string
		data        string
		wantTopic   string
		wantPayload string
		wantErr     bool
	}{
		{
			name:        "object payload",
			data:        `{"topic":"vote:update","payload":{"handId":"h1","voted":true}}`,
			wantTopic:   TopicVoteUpdate,
			wantPayload: `{"handId":"h1","voted":true}`,
		},
		{
			name:        "surrounding whitespace",
			data:        "  {\"topic\":\"hand:new\",\"payload\":[1,2]}\n",
			wantTopic:   TopicHandNew,
			wantPayload: `[1,2]`,
		},
		{
			name:      "missing payload",
			data:      `{"topic":"hands:update"}`,
			wantTopic: TopicHandsUpdate,
		},
		{name: "not json", data: "not json", wantErr: true},
		{name: "array", data: `[{"topic":"x"}]`, wantErr: true},
		{name: "missing topic", data: `{"payload":{}}`, wantErr: true},
		{name: "empty topic", data: `{"topic":"","payload":{}}`, wantErr: true},
		{name: "numeric topic", data: `{"topic":5,"payload":{}}`, wantErr: true},
		{name: "truncated", data: `{"topic":"comment:new","payload":{"handId":`, wantErr: true},
		{name: "empty", data: "", wantErr: true},
		{name: "invalid utf-8 payload", data: "{\"topic\":\"comment:new\",\"payload\":\"\xff\xfe\"}", wantErr: true},
		{name: "invalid utf-8 topic", data: "{\"topic\":\"comment:\xc3\",\"payload\":{}}", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, err := DecodeEvent([]byte(tt.data))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformedEvent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTopic, evt.Topic)
			if tt.wantPayload != "" {
				assert.JSONEq(t, tt.wantPayload, string(evt.Payload))
			}
		})
	}
}

func TestEvent_EncodeKeepsPayload(t *testing.T) {
	evt, err := NewEvent(TopicCommentNew, map[string]any{
		"handId":  "h1",
		"comment": map[string]any{"id": "c1", "content": "nice fold"},
	})
	require.NoError(t, err)

	data, err := evt.Encode()
	require.NoError(t, err)

	decoded, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, TopicCommentNew, decoded.Topic)
	assert.JSONEq(t, string(evt.Payload), string(decoded.Payload))
}

func TestEvent_EncodeRejectsInvalidUTF8(t *testing.T) {
	_, err := Event{Topic: TopicCommentNew, Payload: json.RawMessage("\"\xff\xfe\"")}.Encode()
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestEvent_EncodeNilPayload(t *testing.T) {
	data, err := Event{Topic: TopicHandsUpdate}.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"topic":"hands:update","payload":null}`, string(data))
}

func TestNewEvent_Errors(t *testing.T) {
	_, err := NewEvent("", nil)
	assert.ErrorIs(t, err, ErrMalformedEvent)

	_, err = NewEvent(TopicHandNew, make(chan int))
	var unsupported *json.UnsupportedTypeError
	assert.ErrorAs(t, err, &unsupported)
}

func TestEvent_Decode(t *testing.T) {
	evt := Event{Topic: TopicVoteUpdate, Payload: json.RawMessage(`{"handId":"h1","voted":true}`)}

	var out struct {
		HandID string `json:"handId"`
		Voted  bool   `json:"voted"`
	}
	require.NoError(t, evt.Decode(&out))
	assert.Equal(t, "h1", out.HandID)
	assert.True(t, out.Voted)

	assert.ErrorIs(t, Event{Topic: TopicVoteUpdate}.Decode(&out), ErrMalformedEvent)
}
