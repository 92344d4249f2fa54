package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		expected string
		err      error
	}{
		{"有效邮箱", "test@example.com", "test@example.com", nil},
		{"域名转小写", " Ada.Lovelace@Example.COM ", "Ada.Lovelace@example.com", nil},
		{"带加号", "user+tag@mail.example.com", "user+tag@mail.example.com", nil},
		{"空值", "", "", nil},
		{"占位值", "N/A", "", nil},
		{"占位值 none", "none", "", nil},
		{"缺少 @", "testexample.com", "", ErrInvalidEmail},
		{"缺少域名", "test@", "", ErrInvalidEmail},
		{"多个 @", "test@@example.com", "", ErrInvalidEmail},
		{"包含空格", "test @example.com", "", ErrInvalidEmail},
		{"过长", strings.Repeat("a", 250) + "@example.com", "", ErrEmailTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeEmail(tt.email)
			assert.Equal(t, tt.expected, got)
			if tt.err == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := map[string]string{
		"(608) 555-1234":      "6085551234",
		"+1 608.555.1234":     "+16085551234",
		"608-555-1234 ext 12": "6085551234",
		"555-12":              "",
		"":                    "",
		"n/a":                 "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizePhone(in), in)
	}
}
