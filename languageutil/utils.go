package languageutil

import (
	"fashionstudio/models"

	"golang.org/x/text/language"
)

var matcher = language.NewMatcher(supportedTags())

func supportedTags() []language.Tag {
	tags := make([]language.Tag, 0, len(models.SupportedLanguages))
	for _, l := range models.SupportedLanguages {
		tags = append(tags, l.Tag())
	}
	return tags
}

// Match picks the supported language closest to an Accept-Language header value.
func Match(acceptLanguage string) models.Language {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return models.SupportedLanguages[0]
	}
	_, index, confidence := matcher.Match(tags...)
	if confidence == language.No {
		return models.SupportedLanguages[0]
	}
	return models.SupportedLanguages[index]
}
