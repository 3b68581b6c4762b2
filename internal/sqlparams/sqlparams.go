// Package sqlparams rewrites named ":name" placeholders in SQL templates into
// positional placeholders.
//
// The scanner makes a single left-to-right pass and tracks exactly one lexical
// state at a time. A placeholder is only recognized in the default state, so
// named-looking text inside string literals, quoted identifiers, comments,
// array slices ("arr[1:2]") and after the "::" cast operator is left alone.
//
// One behavior is intentional and must not be "fixed": after a placeholder is
// consumed the scanner is back in the default state, so ":p:::text" becomes
// "?::?" (the trailing ":" starts a fresh placeholder).
package sqlparams

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	apperrors "github.com/koltyakov/pgindexhealth/internal/errors"
)

// ErrBlank is returned for an empty or whitespace-only template.
var ErrBlank = fmt.Errorf("sqlparams: %w: template cannot be blank", apperrors.ErrInvalidTemplate)

// Marker is the positional placeholder emitted by Parse.
const Marker = '?'

type state uint8

const (
	stateDefault state = iota
	stateSingleQuote
	stateDoubleQuote
	stateLineComment
	stateBlockComment
	stateDoubleColon
	stateBrackets
)

// Parse replaces every named placeholder with Marker, in source order.
// Everything else is copied byte for byte.
func Parse(sql string) (string, error) {
	out, _, err := rewrite(sql, func(string, int) string { return string(Marker) })
	return out, err
}

// ParseNumbered replaces every named placeholder with "$1", "$2", ... in
// source order, which is the form pgx expects. It also reports how many
// placeholders were found.
func ParseNumbered(sql string) (string, int, error) {
	return rewrite(sql, func(_ string, n int) string { return "$" + strconv.Itoa(n) })
}

// Names returns the placeholder names in source order. Repeated names are
// reported once per occurrence.
func Names(sql string) ([]string, error) {
	var names []string
	_, _, err := rewrite(sql, func(name string, _ int) string {
		names = append(names, name)
		return ""
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// rewrite runs the scanner, calling replace for the n-th (1-based) placeholder.
func rewrite(sql string, replace func(name string, n int) string) (string, int, error) {
	if strings.TrimSpace(sql) == "" {
		return "", 0, ErrBlank
	}

	var b strings.Builder
	b.Grow(len(sql))
	st := stateDefault
	count := 0

	for i := 0; i < len(sql); {
		c := sql[i]
		switch st {
		case stateSingleQuote:
			if c == '\'' {
				st = stateDefault
			}
		case stateDoubleQuote:
			if c == '"' {
				st = stateDefault
			}
		case stateBlockComment:
			if c == '*' && peek(sql, i) == '/' {
				st = stateDefault
			}
		case stateDoubleColon:
			st = stateDefault
		case stateLineComment:
			if c == '\n' {
				st = stateDefault
			}
		case stateBrackets:
			if c == ']' {
				st = stateDefault
			}
		default:
			switch {
			case c == '\'':
				st = stateSingleQuote
			case c == '"':
				st = stateDoubleQuote
			case c == '[':
				st = stateBrackets
			case c == '/' && peek(sql, i) == '*':
				st = stateBlockComment
			case c == '-' && peek(sql, i) == '-':
				st = stateLineComment
			case c == ':' && peek(sql, i) == ':':
				st = stateDoubleColon
			case c == ':' && i+1 < len(sql):
				if end := identEnd(sql, i+1); end > i+1 {
					count++
					b.WriteString(replace(sql[i+1:end], count))
					i = end
					continue
				}
			}
		}
		b.WriteByte(c)
		i++
	}

	return b.String(), count, nil
}

// peek returns the byte after position i, or 0 at the end of input.
func peek(s string, i int) byte {
	if i+1 < len(s) {
		return s[i+1]
	}
	return 0
}

// identEnd returns the end offset of the identifier starting at from, or from
// itself if no identifier starts there.
func identEnd(s string, from int) int {
	r, size := utf8.DecodeRuneInString(s[from:])
	if !isIdentStart(r) {
		return from
	}
	j := from + size
	for j < len(s) {
		r, size = utf8.DecodeRuneInString(s[j:])
		if !isIdentPart(r) {
			break
		}
		j += size
	}
	return j
}

func isIdentStart(r rune) bool {
	if r == utf8.RuneError {
		return false
	}
	return unicode.IsLetter(r) || r == '_' || r == '$' ||
		unicode.Is(unicode.Sc, r) || unicode.Is(unicode.Pc, r) || unicode.Is(unicode.Nl, r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r) ||
		unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r)
}
