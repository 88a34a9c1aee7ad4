package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClient(t *testing.T) {
	msg, err := ParseClient([]byte(`{"type":"focus","users":["a@x.io","b@x.io"]}`))
	require.NoError(t, err)
	assert.Equal(t, TypeFocus, msg.Type)
	assert.Equal(t, []string{"a@x.io", "b@x.io"}, msg.Users)

	msg, err = ParseClient([]byte(`{"type":"auth","user":"a@x.io"}`))
	require.NoError(t, err)
	assert.Equal(t, "a@x.io", msg.User)
}

func TestParseClientRejectsBadFrames(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`[]`,
		`{"user":"a@x.io"}`,
		`{"type":"focus","users":"a@x.io"}`,
		`{"type":"auth","user":["a@x.io"]}`,
	} {
		_, err := ParseClient([]byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestFlipRoundTrip(t *testing.T) {
	data, err := json.Marshal(Flip{User: "a@x.io", Online: true, TimestampMs: 123})
	require.NoError(t, err)
	f, err := ParseFlip(data)
	require.NoError(t, err)
	assert.Equal(t, Flip{User: "a@x.io", Online: true, TimestampMs: 123}, f)
}

func TestParseFlipRejectsJunk(t *testing.T) {
	_, err := ParseFlip([]byte(`{"online":true}`))
	assert.Error(t, err)
	_, err = ParseFlip([]byte(`garbage`))
	assert.Error(t, err)
}

func TestAuthOKEncodesNullLastSeen(t *testing.T) {
	data, err := json.Marshal(AuthOK{Type: TypeAuthOK, User: "a@x.io", ServerID: "s1", HeartbeatMs: 30000, TTLSeconds: 90})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"last_seen_ms":null`)
}
