package common

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"event":"offer","data":{"target":"b","offer":{"type":"offer","sdp":"v=0"}}}`))
	require.NoError(t, err)
	assert.Equal(t, EventOffer, env.Event)

	var req RelayRequest
	require.NoError(t, env.Decode(&req))
	assert.Equal(t, "b", req.Target)
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(req.Offer), "payload must be kept byte-for-byte")
	assert.NoError(t, req.Validate())
}

func TestDecodeEnvelopeRejectsMalformedFrames(t *testing.T) {
	frames := map[string]string{
		"not json":       `hello`,
		"no event":       `{"data":{}}`,
		"empty event":    `{"event":""}`,
		"wrong type":     `{"event":42}`,
		"truncated":      `{"event":"skip"`,
		"array envelope": `[{"event":"skip"}]`,
	}

	for name, frame := range frames {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(frame))
			assert.Error(t, err)
		})
	}

	_, err := DecodeEnvelope([]byte(`{}`))
	assert.ErrorIs(t, err, ErrEmptyEvent)
}

func TestEnvelopeDecodeWithoutData(t *testing.T) {
	req := RelayRequest{Target: "untouched"}

	assert.NoError(t, Envelope{Event: EventSkip}.Decode(&req))
	assert.NoError(t, Envelope{Event: EventSkip, Data: json.RawMessage(`null`)}.Decode(&req))
	assert.Equal(t, "untouched", req.Target)

	assert.Error(t, Envelope{Event: EventOffer, Data: json.RawMessage(`"a string"`)}.Decode(&req))
}

func TestRelayRequestValidate(t *testing.T) {
	assert.ErrorIs(t, RelayRequest{}.Validate(), ErrMissingTarget)
}

func TestEncodeEnvelope(t *testing.T) {
	frame, err := EncodeEnvelope(EventMatched, MatchedEvent{PartnerID: "y"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"matched","data":{"partnerId":"y"}}`, string(frame))

	frame, err = EncodeEnvelope(EventSearching, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"searching"}`, string(frame))

	_, err = EncodeEnvelope(EventMatched, make(chan int))
	assert.Error(t, err)
}
