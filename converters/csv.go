package converters

import (
	"strings"
	"unicode"
)

// ParseCSV splits RFC 4180 text into rows. Quoted fields may contain the
// delimiter, line breaks and "" escapes. Unquoted fields are trimmed.
// CR, LF and CRLF all end a record, and rows whose fields are all empty
// are dropped.
func ParseCSV(text string, delim rune) [][]string {
	var (
		rows   [][]string
		row    []string
		field  strings.Builder
		quoted bool // inside a quoted section
		wasQ   bool // current field had a quoted section
	)
	endField := func() {
		v := field.String()
		if !wasQ {
			v = strings.TrimSpace(v)
		}
		row = append(row, v)
		field.Reset()
		wasQ = false
	}
	endRow := func() {
		endField()
		if !allEmpty(row) {
			rows = append(rows, row)
		}
		row = nil
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if quoted {
			if r == '"' {
				if i+1 < len(runes) && runes[i+1] == '"' {
					field.WriteRune('"')
					i++
					continue
				}
				quoted = false
				continue
			}
			field.WriteRune(r)
			continue
		}
		switch {
		case r == '"' && strings.TrimSpace(field.String()) == "":
			field.Reset()
			quoted, wasQ = true, true
		case r == delim:
			endField()
		case r == '\r':
			if i+1 < len(runes) && runes[i+1] == '\n' {
				i++
			}
			endRow()
		case r == '\n':
			endRow()
		case wasQ && unicode.IsSpace(r):
			// whitespace after a closing quote
		default:
			field.WriteRune(r)
		}
	}
	if field.Len() > 0 || len(row) > 0 || wasQ {
		endRow()
	}
	return rows
}

func allEmpty(row []string) bool {
	for _, f := range row {
		if f != "" {
			return false
		}
	}
	return true
}

// WriteCSV renders rows, quoting fields that need it.
func WriteCSV(rows [][]string, delim rune) string {
	var b strings.Builder
	for _, row := range rows {
		for i, f := range row {
			if i > 0 {
				b.WriteRune(delim)
			}
			if strings.ContainsAny(f, "\"\r\n"+string(delim)) || strings.TrimSpace(f) != f {
				b.WriteByte('"')
				b.WriteString(strings.ReplaceAll(f, `"`, `""`))
				b.WriteByte('"')
				continue
			}
			b.WriteString(f)
		}
		b.WriteString("\r\n")
	}
	return b.String()
}

// SniffDelimiter picks the most frequent of , ; tab and | in the first
// record, ignoring quoted text. Comma wins ties and empty input.
func SniffDelimiter(text string) rune {
	candidates := []rune{',', ';', '\t', '|'}
	counts := make(map[rune]int, len(candidates))
	quoted := false
	for _, r := range text {
		if r == '"' {
			quoted = !quoted
			continue
		}
		if quoted {
			continue
		}
		if r == '\n' || r == '\r' {
			break
		}
		counts[r]++
	}
	best := ','
	for _, c := range candidates {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return best
}
