package where

import "strings"

// RawToken is one piece of a tokenised raw WHERE template: either literal Content or a
// PlaceHolder naming the field whose rendered value expression should be substituted at
// render time.
type RawToken struct {
	Content       string
	IsPlaceHolder bool
}

// RawTemplate is a "${field}"-style WHERE template, tokenised once at registration
// time rather than re-scanned on every render call.
type RawTemplate struct {
	tokens []RawToken
}

// ParseRawTemplate tokenises s into alternating literal content and "${field}"
// placeholders.
func ParseRawTemplate(s string) RawTemplate {
	var tokens []RawToken

	rest := s
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			if rest != "" {
				tokens = append(tokens, RawToken{Content: rest})
			}
			break
		}

		if start > 0 {
			tokens = append(tokens, RawToken{Content: rest[:start]})
		}

		end := strings.Index(rest[start:], "}")
		if end < 0 {
			// Unterminated placeholder: treat the rest as literal content, matching a
			// template author's typo rather than panicking deep inside a hot path.
			tokens = append(tokens, RawToken{Content: rest[start:]})
			break
		}
		end += start

		field := rest[start+2 : end]
		tokens = append(tokens, RawToken{Content: field, IsPlaceHolder: true})
		rest = rest[end+1:]
	}

	return RawTemplate{tokens: tokens}
}

// Tokens returns the parsed tokens in order.
func (t RawTemplate) Tokens() []RawToken {
	return t.tokens
}

// Render substitutes each placeholder token with valueOf(fieldName) and concatenates
// every token in order.
func (t RawTemplate) Render(valueOf func(field string) string) string {
	var b strings.Builder
	for _, tok := range t.tokens {
		if tok.IsPlaceHolder {
			b.WriteString(valueOf(tok.Content))
		} else {
			b.WriteString(tok.Content)
		}
	}
	return b.String()
}
