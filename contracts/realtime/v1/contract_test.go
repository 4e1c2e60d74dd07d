package v1

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		raw     string
		wantErr bool
		wantKey string
	}{
		{name: "valid", raw: `{"key":"user:42","data":{"event":"new_message","content":"hi"}}`, wantKey: "user:42"},
		{name: "not json", raw: `not-json`, wantErr: true},
		{name: "missing key", raw: `{"data":{"event":"x"}}`, wantErr: true},
		{name: "missing data", raw: `{"key":"user:1"}`, wantErr: true},
		{name: "data not object", raw: `{"key":"user:1","data":[1,2]}`, wantErr: true},
		{name: "data null", raw: `{"key":"user:1","data":null}`, wantErr: true},
		{name: "blank key", raw: `{"key":"  ","data":{}}`, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			env, err := Decode([]byte(tc.raw))
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantKey, env.Key)
		})
	}
}

func TestRecipientKey(t *testing.T) {
	t.Parallel()

	key := RecipientKey("b3c1")
	require.Equal(t, "user:b3c1", key)

	id, ok := UserIDFromKey(key)
	require.True(t, ok)
	require.Equal(t, "b3c1", id)

	_, ok = UserIDFromKey("room:1")
	require.False(t, ok)
	_, ok = UserIDFromKey("user:")
	require.False(t, ok)
}
