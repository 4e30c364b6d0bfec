package validator

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate runs struct tag validation and returns field -> failed tag, or nil.
func Validate(v any) map[string]string {
	return Fields(validate.Struct(v))
}

// Fields flattens a validation error (including gin binding errors) into field -> tag.
// Non-validation errors are reported under "body".
func Fields(err error) map[string]string {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"body": err.Error()}
	}

	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[toSnake(fe.Field())] = fe.Tag()
	}
	return out
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
