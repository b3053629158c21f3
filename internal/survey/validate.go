package survey

import (
	"regexp"
	"strings"
)

const maxNameLength = 50

var (
	namePattern  = regexp.MustCompile(`^[а-яёa-z\s\-']{2,50}$`)
	phonePattern = regexp.MustCompile(`^\+7\d{10}$`)
	nonPhoneRune = regexp.MustCompile(`[^\d+]`)
)

// ValidateName accepts a display name of 2-50 letters, spaces, hyphens and
// apostrophes. Returns the trimmed name or a rejection notice key.
func ValidateName(raw string) (string, string) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", "name_required"
	}
	runes := []rune(name)
	if len(runes) < 2 {
		return "", "invalid_name_short"
	}
	if len(runes) > maxNameLength {
		return "", "invalid_name_long"
	}
	if !namePattern.MatchString(strings.ToLower(name)) {
		return "", "invalid_name_chars"
	}
	return name, ""
}

// ValidatePhone normalizes a Russian phone number to +7XXXXXXXXXX.
// Accepts 8XXXXXXXXXX and 7XXXXXXXXXX spellings with arbitrary separators.
func ValidatePhone(raw string) (string, string) {
	phone := strings.TrimSpace(raw)
	if phone == "" {
		return "", "phone_required"
	}

	cleaned := nonPhoneRune.ReplaceAllString(phone, "")
	digits := strings.TrimPrefix(cleaned, "+")
	switch {
	case strings.HasPrefix(digits, "8") && len(digits) == 11:
		cleaned = "+7" + digits[1:]
	case strings.HasPrefix(digits, "7") && len(digits) == 11:
		cleaned = "+" + digits
	}

	if !phonePattern.MatchString(cleaned) {
		return "", "invalid_phone"
	}
	return cleaned, ""
}
