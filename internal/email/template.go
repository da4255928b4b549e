package email

import (
	"errors"
	"fmt"
	"strings"
)

// Template errors
var (
	ErrMissingField      = errors.New("template references a missing field")
	ErrMalformedTemplate = errors.New("malformed template")
)

// Render substitutes {Field} placeholders with values from fields.
// "{{" and "}}" produce literal braces. Positional ({} or {0}), attribute
// ({a.b}), index ({a[0]}), conversion ({a!r}) and width ({a:>10})
// placeholders are rejected with ErrMalformedTemplate.
func Render(tmpl string, fields map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))

	for i := 0; i < len(tmpl); i++ {
		ch := tmpl[i]
		switch ch {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unmatched '{' at offset %d", ErrMalformedTemplate, i)
			}
			name := tmpl[i+1 : i+1+end]
			if err := checkFieldName(name); err != nil {
				return "", err
			}
			value, ok := fields[name]
			if !ok {
				return "", fmt.Errorf("%w: %q", ErrMissingField, name)
			}
			b.WriteString(value)
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("%w: single '}' at offset %d", ErrMalformedTemplate, i)
		default:
			b.WriteByte(ch)
		}
	}
	return b.String(), nil
}

func checkFieldName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: positional placeholder {}", ErrMalformedTemplate)
	}
	if strings.ContainsAny(name, "{.[!:") {
		return fmt.Errorf("%w: unsupported placeholder {%s}", ErrMalformedTemplate, name)
	}
	if strings.Trim(name, "0123456789") == "" {
		return fmt.Errorf("%w: positional placeholder {%s}", ErrMalformedTemplate, name)
	}
	return nil
}
