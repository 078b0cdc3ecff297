package languageutil

import (
	"testing"

	"fashionstudio/models"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	assert.Equal(t, models.VI, Match("vi-VN,vi;q=0.9,en;q=0.8"))
	assert.Equal(t, models.EN, Match("en-GB"))
	assert.Equal(t, models.EN, Match(""))
	assert.Equal(t, models.EN, Match("ja-JP"))
}
