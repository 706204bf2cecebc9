package reliablellm

import (
	"strings"
	"unicode/utf8"
)

// RepairJSON rewrites common syntax mistakes in model-generated JSON:
// trailing commas, single or typographic quotes, Python-style literals,
// comments, and bare object keys. It scans the text once and never touches
// the contents of well-formed double-quoted strings, so valid JSON comes out
// with the same parsed value it went in with.
func RepairJSON(text string) string {
	r := repairer{src: text}
	r.run()
	return r.out.String()
}

type repairer struct {
	src string
	pos int
	out strings.Builder
	// last is the last significant byte written, used to tell object keys
	// from values.
	last byte
}

func (r *repairer) run() {
	r.out.Grow(len(r.src))
	for r.pos < len(r.src) {
		c := r.src[r.pos]
		switch {
		case c == '"':
			r.copyDoubleQuoted()
		case c == '\'':
			r.convertQuoted('\'', '\'')
		case c == '/' && r.peek(1) == '/':
			r.skipLineComment()
		case c == '/' && r.peek(1) == '*':
			r.skipBlockComment()
		case c == ',':
			r.pos++
			if !r.closesNext() {
				r.emitByte(',')
			}
		case isIdentStart(c):
			r.identifier()
		case c >= utf8.RuneSelf:
			r.nonASCII()
		default:
			r.emitByte(c)
			r.pos++
		}
	}
}

func (r *repairer) peek(n int) byte {
	if r.pos+n < len(r.src) {
		return r.src[r.pos+n]
	}
	return 0
}

func (r *repairer) emitByte(c byte) {
	r.out.WriteByte(c)
	if !isSpace(c) {
		r.last = c
	}
}

func (r *repairer) emitString(s string) {
	r.out.WriteString(s)
	for i := len(s) - 1; i >= 0; i-- {
		if !isSpace(s[i]) {
			r.last = s[i]
			return
		}
	}
}

// copyDoubleQuoted copies a double-quoted string unchanged.
func (r *repairer) copyDoubleQuoted() {
	start := r.pos
	r.pos++
	for r.pos < len(r.src) {
		switch r.src[r.pos] {
		case '\\':
			r.pos += 2
			continue
		case '"':
			r.pos++
			r.emitString(r.src[start:r.pos])
			return
		}
		r.pos++
	}
	// Unterminated: keep what is there and let the parser report it.
	r.pos = len(r.src)
	r.emitString(r.src[start:])
}

// convertQuoted rewrites a string delimited by open/close runes into a JSON
// double-quoted string.
func (r *repairer) convertQuoted(open, close rune) {
	_, size := utf8.DecodeRuneInString(r.src[r.pos:])
	r.pos += size
	var sb strings.Builder
	sb.WriteByte('"')
	for r.pos < len(r.src) {
		ch, size := utf8.DecodeRuneInString(r.src[r.pos:])
		switch {
		case ch == '\\' && r.pos+1 < len(r.src):
			next, nsize := utf8.DecodeRuneInString(r.src[r.pos+1:])
			if next == '\'' {
				sb.WriteRune('\'')
			} else {
				sb.WriteRune('\\')
				sb.WriteRune(next)
			}
			r.pos += 1 + nsize
			continue
		case ch == close || (open == '\'' && ch == '’'):
			r.pos += size
			sb.WriteByte('"')
			r.emitString(sb.String())
			return
		case ch == '"':
			sb.WriteString(`\"`)
		case ch == '\n':
			sb.WriteString(`\n`)
		default:
			sb.WriteRune(ch)
		}
		r.pos += size
	}
	sb.WriteByte('"')
	r.emitString(sb.String())
}

// nonASCII handles typographic quotes outside strings and copies any other
// rune as-is.
func (r *repairer) nonASCII() {
	ch, size := utf8.DecodeRuneInString(r.src[r.pos:])
	switch ch {
	case '“':
		r.convertQuoted('“', '”')
	case '‘':
		r.convertQuoted('‘', '’')
	default:
		r.out.WriteString(r.src[r.pos : r.pos+size])
		r.last = 'x'
		r.pos += size
	}
}

func (r *repairer) skipLineComment() {
	for r.pos < len(r.src) && r.src[r.pos] != '\n' {
		r.pos++
	}
}

func (r *repairer) skipBlockComment() {
	end := strings.Index(r.src[r.pos+2:], "*/")
	if end < 0 {
		r.pos = len(r.src)
		return
	}
	r.pos += 2 + end + 2
}

// closesNext reports whether the next significant byte after the current
// position closes an object or array.
func (r *repairer) closesNext() bool {
	i := r.pos
	for i < len(r.src) {
		c := r.src[i]
		switch {
		case isSpace(c):
			i++
		case c == '/' && i+1 < len(r.src) && r.src[i+1] == '/':
			for i < len(r.src) && r.src[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(r.src) && r.src[i+1] == '*':
			end := strings.Index(r.src[i+2:], "*/")
			if end < 0 {
				return false
			}
			i += 2 + end + 2
		default:
			return c == '}' || c == ']'
		}
	}
	return false
}

func (r *repairer) identifier() {
	start := r.pos
	for r.pos < len(r.src) && isIdentPart(r.src[r.pos]) {
		r.pos++
	}
	word := r.src[start:r.pos]

	// Part of a number such as 1e10.
	if r.last >= '0' && r.last <= '9' && start > 0 && !isSpace(r.src[start-1]) {
		r.emitString(word)
		return
	}

	if (r.last == '{' || r.last == ',') && r.colonFollows() {
		r.emitString(`"` + word + `"`)
		return
	}
	if lit, ok := canonicalLiteral(word); ok {
		r.emitString(lit)
		return
	}
	r.emitString(word)
}

func (r *repairer) colonFollows() bool {
	for i := r.pos; i < len(r.src); i++ {
		if isSpace(r.src[i]) {
			continue
		}
		return r.src[i] == ':'
	}
	return false
}

func canonicalLiteral(word string) (string, bool) {
	switch strings.ToLower(word) {
	case "true":
		return "true", true
	case "false":
		return "false", true
	case "null", "none", "nil":
		return "null", true
	}
	return "", false
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
