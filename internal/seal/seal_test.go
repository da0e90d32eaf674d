package seal

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealer(t *testing.T) {
	key := bytes.Repeat([]byte{7}, 32)
	sealer, err := New(key)
	require.NoError(t, err)

	sealed, err := sealer.Seal(map[string]interface{}{"password": "s3cr3t", "user": "ops"})
	require.NoError(t, err)
	assert.False(t, bytes.Contains(sealed, []byte("s3cr3t")))

	doc, err := sealer.Open(sealed)
	require.NoError(t, err)
	assert.EqualValues(t, map[string]interface{}{"password": "s3cr3t", "user": "ops"}, doc)

	other, err := New(bytes.Repeat([]byte{8}, 32))
	require.NoError(t, err)
	_, err = other.Open(sealed)
	assert.Error(t, err)

	_, err = sealer.Open([]byte("short"))
	assert.Error(t, err)
}

func TestSealer_KeepsNumbers(t *testing.T) {
	sealer, err := New(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	sealed, err := sealer.Seal(map[string]interface{}{"id": int64(9007199254740993)})
	require.NoError(t, err)
	doc, err := sealer.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, json.Number("9007199254740993"), doc["id"])
}

func TestParseKey(t *testing.T) {
	type testCase struct {
		name    string
		text    string
		wantErr bool
	}
	tests := []testCase{
		{name: "hex", text: "0707070707070707070707070707070707070707070707070707070707070707"},
		{name: "base64", text: "BwcHBwcHBwcHBwcHBwcHBwcHBwcHBwcHBwcHBwcHBwc="},
		{name: "empty", text: "", wantErr: true},
		{name: "short", text: "0707", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			key, err := ParseKey(tc.text)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Len(t, key, 32)
		})
	}
}
