package oidc

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactedTokens(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		token fmt.Stringer
		want  string
	}{
		{name: "access", token: AccessToken("secret"), want: RedactedAccessToken},
		{name: "id", token: IdToken("secret"), want: RedactedIdToken},
		{name: "refresh", token: RefreshToken("secret"), want: RedactedRefreshToken},
		{name: "device", token: DeviceSecret("secret"), want: RedactedDeviceCode},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			assert.Equal(tt.want, tt.token.String())
			assert.Equal(tt.want, fmt.Sprintf("%s", tt.token))
			b, err := json.Marshal(tt.token)
			require.NoError(err)
			assert.Equal(`"`+tt.want+`"`, string(b))
			assert.NotContains(fmt.Sprintf("%v", tt.token), "secret")
		})
	}
}
