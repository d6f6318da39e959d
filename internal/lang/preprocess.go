package lang

import "strings"

// atSigilPrefix marks an identifier synthesized from a `@name` reference
// so it survives a round trip through expr-lang's parser, which has no
// `@`-prefixed identifier syntax of its own.
const atSigilPrefix = "__at__"

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentPart(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// preprocess rewrites source before handing it to expr-lang's parser:
//
//   - `@name` becomes the synthetic identifier atSigilPrefix+name (undone
//     by convert when it sees an IdentifierNode with that prefix).
//   - a bare trailing decimal point with no following digit ("3.") is
//     padded to "3.0"; a bare trailing dot is accepted as an integer.
//   - the case-insensitive true/false keywords are lowered to the one
//     spelling expr-lang's lexer knows, except in member position.
//
// All rewrites skip over double-quoted string literals so that nothing
// inside one is touched.
func preprocess(src string) string {
	var b strings.Builder
	i := 0
	for i < len(src) {
		c := src[i]

		if c == '"' {
			j := i + 1
			for j < len(src) {
				if src[j] == '\\' && j+1 < len(src) {
					j += 2
					continue
				}
				if src[j] == '"' {
					j++
					break
				}
				j++
			}
			b.WriteString(src[i:j])
			i = j
			continue
		}

		if c == '@' && i+1 < len(src) && isIdentStart(src[i+1]) {
			j := i + 1
			for j < len(src) && isIdentPart(src[j]) {
				j++
			}
			b.WriteString(atSigilPrefix)
			b.WriteString(src[i+1 : j])
			i = j
			continue
		}

		// Consume identifiers whole so a digit inside one (a1.b) never
		// reaches the number branch below. The true/false keywords are
		// case-insensitive in this grammar but not in expr-lang's, so they
		// are lowered here.
		if isIdentStart(c) {
			j := i
			for j < len(src) && isIdentPart(src[j]) {
				j++
			}
			word := src[i:j]
			if !followsDot(src, i) {
				if strings.EqualFold(word, "true") {
					word = "true"
				} else if strings.EqualFold(word, "false") {
					word = "false"
				}
			}
			b.WriteString(word)
			i = j
			continue
		}

		if isDigit(c) {
			j := i
			for j < len(src) && isDigit(src[j]) {
				j++
			}
			b.WriteString(src[i:j])
			i = j
			if i < len(src) && src[i] == '.' {
				b.WriteByte('.')
				i++
				if i >= len(src) || !isDigit(src[i]) {
					b.WriteByte('0')
				} else {
					for i < len(src) && isDigit(src[i]) {
						b.WriteByte(src[i])
						i++
					}
				}
			}
			continue
		}

		b.WriteByte(c)
		i++
	}
	return b.String()
}

// followsDot reports whether the identifier starting at i is a member
// name (preceded by "."), which must never be rewritten into a keyword.
func followsDot(src string, i int) bool {
	for j := i - 1; j >= 0; j-- {
		switch src[j] {
		case ' ', '\t', '\n', '\r':
			continue
		case '.':
			return true
		default:
			return false
		}
	}
	return false
}

// stripAtSigil reverses preprocess's identifier rewrite, reporting the
// original `@name` name when present.
func stripAtSigil(name string) (string, bool) {
	if strings.HasPrefix(name, atSigilPrefix) {
		return name[len(atSigilPrefix):], true
	}
	return "", false
}
