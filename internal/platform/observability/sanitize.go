package observability

import (
	"strings"
	"unicode"
)

// sanitizeString drops control characters and truncates to limit runes.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	cleaned := make([]rune, 0, len(value))
	for _, r := range value {
		if unicode.IsControl(r) {
			continue
		}
		cleaned = append(cleaned, r)
		if len(cleaned) == limit {
			break
		}
	}
	return strings.TrimSpace(string(cleaned))
}

// sanitizeIdentifier keeps the characters order ids and item codes are built
// from. Anything else is replaced so a crafted path cannot forge log fields.
func sanitizeIdentifier(value string, limit int) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range value {
		if b.Len() >= limit {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('?')
		}
	}
	return b.String()
}

func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

func SanitizeMethod(method string) string {
	return strings.ToUpper(sanitizeString(method, 10))
}

// SanitizeOrderID bounds order ids, including exchange ids such as ORD-12-EX1.
func SanitizeOrderID(id string) string {
	return sanitizeIdentifier(id, 64)
}

// SanitizeItemCode bounds inventory codes taken from the path.
func SanitizeItemCode(code string) string {
	return sanitizeIdentifier(code, 48)
}

// SanitizeActor bounds the operator name; names are free text with spaces.
func SanitizeActor(actor string) string {
	return sanitizeString(actor, 64)
}

// SanitizeAction lowercases a route verb and rejects anything that is not a
// plain hyphenated word.
func SanitizeAction(action string) string {
	action = strings.ToLower(strings.TrimSpace(action))
	if action == "" || len(action) > 32 {
		return ""
	}
	for _, r := range action {
		if (r < 'a' || r > 'z') && r != '-' {
			return ""
		}
	}
	return action
}
