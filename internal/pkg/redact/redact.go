// redact — маскирование чувствительных значений перед логированием.
package redact

import "strings"

// Email маскирует локальную часть адреса, сохраняя домен:
// "foobar@example.com" -> "fo***@example.com".
// Строки без единственного '@' редактируются целиком.
func Email(s string) string {
	parts := strings.Split(s, "@")
	if len(parts) != 2 {
		return "***"
	}

	local, domain := parts[0], parts[1]
	if r := []rune(local); len(r) > 2 {
		local = string(r[:2]) + "***"
	} else {
		local = "***"
	}

	return local + "@" + domain
}

func Token() string    { return "[REDACTED_TOKEN]" }
func Password() string { return "[REDACTED_PASSWORD]" }
