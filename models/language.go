package models

import (
	"github.com/go-playground/validator"
	"golang.org/x/text/language"
)

type Language string

const (
	EN Language = "en"
	VI Language = "vi"
)

// SupportedLanguages is ordered; the first entry is the fallback.
var SupportedLanguages = []Language{EN, VI}

func (l Language) Tag() language.Tag {
	return language.Make(string(l))
}

func ValidateLanguage(fl validator.FieldLevel) bool {
	return ValidateLanguageRaw(fl.Field().String())
}

func ValidateLanguageRaw(value string) bool {
	if value == "" {
		return false
	}
	_, err := language.Parse(value)
	return err == nil
}
