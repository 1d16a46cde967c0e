package workflow

import (
	"fmt"
	"math"
	"net/mail"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"voicelegal-backend/models"
)

// ValidationError reports an answer rejected by its question's field rules.
// The case is never mutated when one is returned.
type ValidationError struct {
	Question  string
	Field     string
	FieldType models.FieldType
	Reason    string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid answer for %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid answer: %s", e.Reason)
}

// dateLayouts are tried in order; day-first layouts precede month-first ones.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"02.01.2006",
	"2 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
}

// ValidateAnswer trims and normalizes answer according to q's field type and
// validation rules. now anchors the not-in-future date rule.
func ValidateAnswer(q models.QuestionDefinition, answer string, now time.Time) (string, error) {
	fail := func(format string, args ...any) (string, error) {
		return "", &ValidationError{
			Question:  q.Question,
			Field:     q.FieldName,
			FieldType: q.FieldType,
			Reason:    fmt.Sprintf(format, args...),
		}
	}

	value := strings.TrimSpace(answer)
	if value == "" {
		if q.IsRequired {
			return fail("an answer is required")
		}
		return "", nil
	}

	rules := q.ValidationRules
	switch q.FieldType {
	case models.FieldTypeDate:
		t, ok := parseDate(value)
		if !ok {
			return fail("%q is not a recognised date", value)
		}
		if rules.NotFuture && t.After(now) {
			return fail("date %s is in the future", t.Format("2006-01-02"))
		}
		return t.Format("2006-01-02"), nil

	case models.FieldTypePhone:
		phone := cleanPhone(value)
		digits := strings.TrimPrefix(phone, "+")
		if len(digits) < 7 || len(digits) > 15 {
			return fail("phone number must have between 7 and 15 digits")
		}
		return phone, nil

	case models.FieldTypeEmail:
		email := strings.ToLower(value)
		if !validEmail(email) {
			return fail("invalid email format")
		}
		return email, nil

	case models.FieldTypeNumber:
		n, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", ""), 64)
		if err != nil {
			return fail("%q is not a number", value)
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return fail("%q is not a finite number", value)
		}
		if rules.Min != nil && n < *rules.Min {
			return fail("must be at least %g", *rules.Min)
		}
		if rules.Max != nil && n > *rules.Max {
			return fail("must be at most %g", *rules.Max)
		}
		return strconv.FormatFloat(n, 'f', -1, 64), nil

	case models.FieldTypeSelect:
		if len(rules.Options) == 0 {
			return value, nil
		}
		for _, opt := range rules.Options {
			if strings.EqualFold(strings.TrimSpace(opt), value) {
				return opt, nil
			}
		}
		return fail("must be one of: %s", strings.Join(rules.Options, ", "))

	case models.FieldTypeLongText:
		// keep line breaks
	default:
		value = strings.Join(strings.Fields(value), " ")
	}

	length := utf8.RuneCountInString(value)
	if rules.MinLength != nil && length < *rules.MinLength {
		return fail("must be at least %d characters", *rules.MinLength)
	}
	if rules.MaxLength != nil && length > *rules.MaxLength {
		return fail("must be at most %d characters", *rules.MaxLength)
	}
	return value, nil
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// cleanPhone keeps digits and a leading plus sign.
func cleanPhone(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == strings.IndexFunc(s, isPhoneRune):
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isPhoneRune(r rune) bool {
	return r == '+' || (r >= '0' && r <= '9')
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	domain := s[at+1:]
	if !strings.Contains(domain, ".") {
		return false
	}
	for _, label := range strings.Split(domain, ".") {
		if label == "" {
			return false
		}
	}
	return true
}
