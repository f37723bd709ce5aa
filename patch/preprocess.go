package patch

import "strings"

// A statement is one logically complete line: physical lines joined while a
// parameter block is open, comments stripped. Line is the first physical
// line, 1-based.
type statement struct {
	text string
	line int
}

// preprocess splits raw source into statements. It strips #-to-end-of-line
// comments, then joins physical lines while the brace depth is above zero so
// a parameter block can span several lines. Brace problems are reported and
// recovered from, never fatal.
func preprocess(src string) ([]statement, []Error) {
	var (
		stmts []statement
		errs  []Error

		buf       strings.Builder
		depth     int
		firstLine int
	)

	flush := func() {
		text := strings.TrimSpace(buf.String())
		if text != "" {
			stmts = append(stmts, statement{text: text, line: firstLine})
		}
		buf.Reset()
		firstLine = 0
	}

	for i, line := range strings.Split(src, "\n") {
		lineno := i + 1
		inString := false
		var part strings.Builder
	scan:
		for _, r := range line {
			if inString {
				part.WriteRune(r)
				if r == '"' {
					inString = false
				}
				continue
			}
			switch r {
			case '"':
				inString = true
				part.WriteRune(r)
			case '#':
				break scan
			case '{':
				depth++
				part.WriteRune(r)
			case '}':
				depth--
				if depth < 0 {
					errs = append(errs, Error{Line: lineno, Msg: "unmatched closing brace"})
					appendPart(&buf, part.String(), &firstLine, lineno)
					flush()
					part.Reset()
					depth = 0
					continue
				}
				part.WriteRune(r)
			default:
				part.WriteRune(r)
			}
		}

		appendPart(&buf, part.String(), &firstLine, lineno)
		if depth == 0 {
			flush()
		}
	}

	if depth > 0 {
		errs = append(errs, Error{Line: firstLine, Msg: "unclosed parameter block"})
		flush()
	}
	return stmts, errs
}

// appendPart adds one physical line's contribution to the statement buffer,
// joining with a single space and recording the first contributing line.
func appendPart(buf *strings.Builder, part string, firstLine *int, lineno int) {
	part = strings.TrimSpace(part)
	if part == "" {
		return
	}
	if buf.Len() > 0 {
		buf.WriteString(" ")
	} else {
		*firstLine = lineno
	}
	buf.WriteString(part)
}
