package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrame_Classification(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		wantResp bool
		wantEvt  bool
		wantErr  bool
	}{
		{
			name:     "response with result",
			frame:    `{"id":42,"result":{"value":"ok"}}`,
			wantResp: true,
		},
		{
			name:     "response with error",
			frame:    `{"id":7,"error":{"error":{"name":"TimeoutError","message":"timed out"}}}`,
			wantResp: true,
		},
		{
			name:    "event",
			frame:   `{"guid":"page@abc","method":"console","params":{"text":"hello"}}`,
			wantEvt: true,
		},
		{
			name:    "lifecycle create",
			frame:   `{"guid":"","method":"__create__","params":{"type":"Browser","guid":"browser@1","initializer":{}}}`,
			wantEvt: true,
		},
		{
			name:    "connection-scoped event without guid",
			frame:   `{"method":"ping","params":{}}`,
			wantEvt: true,
		},
		{
			name:    "unknown shape",
			frame:   `{"something":"else"}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			frame:   `{"id":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, evt, err := parseFrame([]byte(tt.frame))
			assert.Equal(t, tt.wantResp, resp != nil, "response")
			assert.Equal(t, tt.wantEvt, evt != nil, "event")
			assert.Equal(t, tt.wantErr, err != nil, "error")
		})
	}
}

func TestParseFrame_ResponseFields(t *testing.T) {
	resp, _, err := parseFrame([]byte(`{"id":3,"error":{"error":{"name":"Error","message":"nope","stack":"trace"}}}`))
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, uint32(3), resp.ID)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "Error", resp.Error.Error.Name)
	assert.Equal(t, "nope", resp.Error.Error.Message)
	assert.Equal(t, "trace", resp.Error.Error.Stack)
}

func TestRefGUID(t *testing.T) {
	raw := []byte(`{"browser":{"guid":"browser@9"},"other":17}`)
	assert.Equal(t, "browser@9", refGUID(raw, "browser"))
	assert.Equal(t, "", refGUID(raw, "missing"))
	assert.Equal(t, "", refGUID(raw, "other"))
	assert.Equal(t, "", refGUID(nil, "browser"))
}

func TestMapProtocolError(t *testing.T) {
	err := mapProtocolError(errorPayload{Name: "TimeoutError", Message: "slow"})
	var terr *TimeoutError
	require.ErrorAs(t, err, &terr)

	err = mapProtocolError(errorPayload{Name: "TargetClosedError", Message: "gone"})
	require.ErrorIs(t, err, ErrTransportClosed)

	err = mapProtocolError(errorPayload{Name: "Error", Message: "other"})
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
}
