package sandbox

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessageShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Message
	}{
		{"ready", `{"workerReady":true}`, Message{Kind: KindReady}},
		{"load request", `{"requireScriptPath":"games/formic"}`, Message{Kind: KindLoadRequest, Path: "games/formic"}},
		{"shed", `{"requireScriptPath":null}`, Message{Kind: KindShed}},
		{"delivery", `{"requireScriptPath":"a","requireScriptCode":"x=1"}`, Message{Kind: KindDelivery, Path: "a", Code: "x=1"}},
		{"delivery failure", `{"requireScriptPath":"a","requireScriptError":"not found"}`, Message{Kind: KindDelivery, Path: "a", Error: "not found"}},
		{"empty code is still a delivery", `{"requireScriptPath":"a","requireScriptCode":""}`, Message{Kind: KindDelivery, Path: "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeMessage([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeMessageData(t *testing.T) {
	for _, raw := range []string{`{"type":"progress","value":0.5}`, `42`, `"text"`, `null`, `[1,2]`, `{"workerReady":true,"extra":1}`} {
		got, err := DecodeMessage([]byte(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, KindData, got.Kind, raw)
		assert.JSONEq(t, raw, string(got.Data))
	}
}

func TestDecodeMessageRejectsMalformedControl(t *testing.T) {
	_, err := DecodeMessage([]byte(`{"requireScriptPath":7}`))
	assert.Error(t, err)

	_, err = DecodeMessage([]byte(`{"broken"`))
	assert.Error(t, err)
}

func TestMessageWireShape(t *testing.T) {
	raw, err := ShedMessage().MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"requireScriptPath":null}`, string(raw))

	raw, err = Delivery("p", "ignored", errors.New("gone")).MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"requireScriptPath":"p","requireScriptError":"gone"}`, string(raw))

	raw, err = Message{Kind: KindData}.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))
}
