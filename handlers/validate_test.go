package handlers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/GitDonce/TwoGuys/models"
)

func TestValidationMessage(t *testing.T) {
	tests := []struct {
		name string
		req  any
		want string
	}{
		{"blank title", models.CreateItemRequest{Title: "   ", Description: "d"}, "required"},
		{"valid item", models.CreateItemRequest{Title: "t", Description: "d"}, ""},
		{"bad email", models.RegisterRequest{Email: "a@b", Password: "secret1"}, "email"},
		{"short password", models.RegisterRequest{Email: "a@b.co", Password: "12345"}, "min"},
		{"six runes", models.RegisterRequest{Email: "a@b.co", Password: "ąčęėįš"}, ""},
		{"missing city country", models.CityRequest{Name: "Kaunas", Description: "d"}, "required"},
	}
	messages := ruleMessages{"required": "required", emailFormatTag: "email", "min": "min"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.req)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.want, validationMessage(err, messages))
		})
	}
}

func TestValidationMessageFallback(t *testing.T) {
	assert.Equal(t, "Invalid request payload", validationMessage(errors.New("boom"), ruleMessages{}))
	err := validate.Struct(models.RegisterRequest{Email: "bad", Password: "secret1"})
	assert.Equal(t, "Invalid request payload", validationMessage(err, ruleMessages{"required": "x"}))
}

func TestEmailPattern(t *testing.T) {
	for email, want := range map[string]bool{
		"ana@example.com": true,
		"a@b.c":           true,
		"ana@example":     false,
		"ana example@x.y": false,
		"@example.com":    false,
		"ana@@x.y":        false,
	} {
		assert.Equal(t, want, emailPattern.MatchString(email), email)
	}
}
