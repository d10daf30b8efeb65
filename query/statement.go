// Package query turns query templates with @name placeholders into literal
// query text or into server-side bind variables.
package query

import (
	"strings"
)

// CollectionPlaceholder is bound as a raw identifier unless a statement is
// built with other designations.
const CollectionPlaceholder = "@collection"

// Statement is a query template with named placeholders and their bound values.
// A Statement is not safe for concurrent use.
type Statement struct {
	text         string
	placeholders []string
	declared     map[string]struct{}
	identifiers  map[string]struct{}
	binder       *Binder
}

// StatementOption configures a Statement
type StatementOption func(*Statement)

// WithIdentifierPlaceholders designates tokens whose bound values are
// written unquoted, in addition to @collection.
func WithIdentifierPlaceholders(tokens ...string) StatementOption {
	return func(s *Statement) {
		for _, t := range tokens {
			s.identifiers[token(t)] = struct{}{}
		}
	}
}

// NewStatement scans text for @name placeholders.
func NewStatement(text string, opts ...StatementOption) *Statement {
	tokens := scans.placeholders(text)
	s := &Statement{
		text:         text,
		placeholders: tokens,
		declared:     make(map[string]struct{}, len(tokens)),
		identifiers:  map[string]struct{}{CollectionPlaceholder: {}},
		binder:       NewBinder(),
	}
	for _, t := range tokens {
		s.declared[t] = struct{}{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// token adds the leading @ when missing
func token(name string) string {
	if strings.HasPrefix(name, "@") {
		return name
	}
	return "@" + name
}

// BindValue binds v to the placeholder name ("@id" or "id"). It returns
// false, nil without binding anything when the template has no such
// placeholder, so callers can probe for optional placeholders. Values bound
// to identifier placeholders are stored as identifiers.
func (s *Statement) BindValue(name string, v interface{}) (bool, error) {
	t := token(name)
	if _, ok := s.declared[t]; !ok {
		return false, nil
	}

	var (
		val Value
		err error
	)
	if _, ok := s.identifiers[t]; ok {
		val, err = identifierOf(t, v)
	} else {
		val, err = classify(t, v)
	}
	if err != nil {
		return false, err
	}

	s.binder.set(t, val)
	return true, nil
}

// BindAll binds every entry of values and fails on the first invalid value
// or unknown placeholder.
func (s *Statement) BindAll(values map[string]interface{}) error {
	for name, v := range values {
		ok, err := s.BindValue(name, v)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidParameter(name, v, "template has no such placeholder")
		}
	}
	return nil
}

// HasAliases reports whether the template declares any placeholder
func (s *Statement) HasAliases() bool {
	return len(s.placeholders) > 0
}

// Placeholders returns the distinct tokens in first-seen order
func (s *Statement) Placeholders() []string {
	out := make([]string, len(s.placeholders))
	copy(out, s.placeholders)
	return out
}

// Text returns the template
func (s *Statement) Text() string {
	return s.text
}

// Binder returns the statement's binder
func (s *Statement) Binder() *Binder {
	return s.binder
}

// IsIdentifierPlaceholder reports whether values bound to name are written unquoted
func (s *Statement) IsIdentifierPlaceholder(name string) bool {
	_, ok := s.identifiers[token(name)]
	return ok
}

func (s *Statement) checkBound() error {
	for _, t := range s.placeholders {
		if !s.binder.Has(t) {
			return ErrUnboundParameter(s.text, t)
		}
	}
	return nil
}

// ToAQL resolves the template into literal query text. Every occurrence of
// every placeholder is replaced in a single pass; substituted text is never
// scanned again.
func (s *Statement) ToAQL() (string, error) {
	if err := s.checkBound(); err != nil {
		return "", err
	}
	if !s.HasAliases() {
		return s.text, nil
	}
	return placeholderPattern.ReplaceAllStringFunc(s.text, func(t string) string {
		v, _ := s.binder.Get(t)
		return v.Literal()
	}), nil
}

// ServerSide returns the template with identifier placeholders rewritten to
// @@name and the bind variables for the server to substitute.
func (s *Statement) ServerSide() (string, map[string]interface{}, error) {
	if err := s.checkBound(); err != nil {
		return "", nil, err
	}

	vars := make(map[string]interface{}, len(s.placeholders))
	for _, t := range s.placeholders {
		v, _ := s.binder.Get(t)
		if v.Kind() == KindIdentifier {
			vars[t] = v.Interface()
			continue
		}
		vars[t[1:]] = v.Interface()
	}

	text := placeholderPattern.ReplaceAllStringFunc(s.text, func(t string) string {
		if v, _ := s.binder.Get(t); v.Kind() == KindIdentifier {
			return "@" + t
		}
		return t
	})
	return text, vars, nil
}
