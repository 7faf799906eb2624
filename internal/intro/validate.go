// ABOUTME: Synchronous field validation for the intake form
// ABOUTME: Detects name/email/phone fields by type and keywords

package intro

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid matches every FieldErrors value.
var ErrInvalid = errors.New("invalid intake answers")

// CountryCodeSuffix is appended to a phone question's id to form the key of
// its country-code selector.
const CountryCodeSuffix = "_country_code"

// FieldErrors maps question id to a human-readable problem.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	ids := slices.Collect(maps.Keys(fe))
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s: %s", id, fe[id]))
	}
	return "invalid intake answers: " + strings.Join(parts, "; ")
}

// Is lets errors.Is(err, ErrInvalid) match.
func (fe FieldErrors) Is(target error) bool { return target == ErrInvalid }

type fieldKind int

const (
	kindOther fieldKind = iota
	kindName
	kindEmail
	kindPhone
	kindReason
)

func kindOf(q Question) fieldKind {
	label := strings.ToLower(q.ID + " " + q.Prompt)
	switch {
	case q.Type == TypeEmail || strings.Contains(label, "email") || strings.Contains(label, "e-mail"):
		return kindEmail
	case q.Type == TypeTel || strings.Contains(label, "phone") || strings.Contains(label, "mobile"):
		return kindPhone
	case q.Type == TypeText && strings.Contains(label, "name"):
		return kindName
	case strings.Contains(label, "reason") || strings.Contains(label, "help") || strings.Contains(label, "topic"):
		return kindReason
	default:
		return kindOther
	}
}

var validate = validator.New()

// validate returns the normalized answers and any field errors.
func (e *Engine) validate(answers map[string]string) (map[string]string, FieldErrors) {
	out := make(map[string]string, len(e.questions))
	errs := FieldErrors{}

	for _, q := range e.questions {
		v := strings.TrimSpace(answers[q.ID])
		kind := kindOf(q)

		if kind == kindPhone && v != "" {
			v = combinePhone(answers[q.ID+CountryCodeSuffix], v)
		}

		if v == "" {
			if q.Required {
				errs[q.ID] = "This field is required."
			}
			continue
		}

		if msg := checkField(q, kind, v); msg != "" {
			errs[q.ID] = msg
			continue
		}
		out[q.ID] = v
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

func checkField(q Question, kind fieldKind, v string) string {
	switch kind {
	case kindName:
		return checkName(v)
	case kindEmail:
		if validate.Var(v, "required,email") != nil {
			return "Please enter a valid email address."
		}
	case kindPhone:
		if validate.Var(v, "required,e164") != nil {
			return "Please enter a valid phone number with country code."
		}
	}
	if q.Type == TypeSelect && len(q.Options) > 0 && !slices.Contains(q.Options, v) {
		return "Please choose one of the listed options."
	}
	return ""
}

func checkName(v string) string {
	if utf8.RuneCountInString(v) < 2 {
		return "Name must be at least 2 characters."
	}
	first, _ := utf8.DecodeRuneInString(v)
	if unicode.IsDigit(first) {
		return "Name cannot start with a number."
	}
	for _, r := range v {
		if !unicode.IsLetter(r) && r != ' ' && r != '-' && r != '\'' {
			return "Name can only contain letters."
		}
	}
	return ""
}

// combinePhone joins a country code and a local number into E.164 form. A
// number that already starts with "+" carries its own country code. Without
// either the number is returned as typed, which E.164 validation rejects.
func combinePhone(countryCode, number string) string {
	number = strings.TrimSpace(number)
	if !strings.HasPrefix(number, "+") {
		cc := strings.TrimPrefix(strings.TrimSpace(countryCode), "+")
		if cc == "" {
			return number
		}
		number = "+" + cc + number
	}
	var b strings.Builder
	for i, r := range number {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
			// separators
		default:
			// Keep anything else so validation rejects it.
			b.WriteRune(r)
		}
	}
	return b.String()
}
