package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApiKeyValidate(t *testing.T) {
	assert.NoError(t, ApiKey("AIzaSyA1234567890abcdefghijklmnopqrstu").Validate())
	assert.ErrorIs(t, ApiKey("").Validate(), ErrAPIKeyMissing)
	assert.ErrorIs(t, ApiKey("short").Validate(), ErrAPIKeyLength)
	assert.ErrorIs(t, ApiKey(strings.Repeat("a", MaxAPIKeyLength+1)).Validate(), ErrAPIKeyLength)
	assert.ErrorIs(t, ApiKey("AIzaSyA1234567890abcdefghijklmno pqrstu").Validate(), ErrAPIKeyCharset)
	assert.ErrorIs(t, ApiKey("AIzaSyA1234567890abcdefghijklmno/pqrstu").Validate(), ErrAPIKeyCharset)
}

func TestApiKeyMasked(t *testing.T) {
	assert.Equal(t, "AIza****", ApiKey("AIzaSyA1234567890abcdefghijklmnopqrstu").Masked())
	assert.Equal(t, "****", ApiKey("abc").Masked())
}

func TestSessionConfigCopies(t *testing.T) {
	base := NewSessionConfig("key-one", "", "http://gateway")
	assert.Equal(t, EN, base.Language())

	changed := base.WithAPIKey("key-two").WithLanguage(VI).WithVideoModel("veo")
	assert.Equal(t, ApiKey("key-one"), base.APIKey())
	assert.Equal(t, EN, base.Language())
	assert.Empty(t, base.VideoModel())

	assert.Equal(t, ApiKey("key-two"), changed.APIKey())
	assert.Equal(t, VI, changed.Language())
	assert.Equal(t, "veo", changed.VideoModel())
	assert.Equal(t, "http://gateway", changed.GatewayBase())
}

func TestValidateLanguageRaw(t *testing.T) {
	assert.True(t, ValidateLanguageRaw("vi"))
	assert.True(t, ValidateLanguageRaw("en-US"))
	assert.False(t, ValidateLanguageRaw(""))
	assert.False(t, ValidateLanguageRaw("not a language"))
}
