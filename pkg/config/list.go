package config

import "strings"

// SplitList splits a comma-separated list value. Single or double quotes
// group items that contain commas or spaces and are removed; a backslash
// escapes the next character. Empty items are dropped.
func SplitList(s string) []string {
	list := []string{}
	var current strings.Builder
	var quoteChar rune
	var quoted bool

	appendItem := func() {
		item := current.String()
		if !quoted {
			item = strings.TrimSpace(item)
		}
		if item != "" || quoted {
			list = append(list, item)
		}
		current.Reset()
		quoted = false
	}

	var isEscaped bool
	for _, r := range s {
		if isEscaped {
			current.WriteRune(r)
			isEscaped = false
			continue
		}

		switch {
		case r == '\\':
			isEscaped = true
		case r == '\'' || r == '"':
			if quoteChar == 0 {
				quoteChar = r
				quoted = true
				// Whitespace before an opening quote is not part of the item.
				if strings.TrimSpace(current.String()) == "" {
					current.Reset()
				}
			} else if quoteChar == r {
				quoteChar = 0
			} else {
				current.WriteRune(r)
			}
		case r == ',' && quoteChar == 0:
			appendItem()
		case quoteChar == 0 && quoted && (r == ' ' || r == '\t'):
			// Whitespace after a closing quote.
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 || quoted {
		appendItem()
	}
	return list
}

// JoinList is the inverse of SplitList. Items that would not survive a
// round trip are double-quoted.
func JoinList(items []string) string {
	out := make([]string, len(items))
	for i, item := range items {
		if item == "" || strings.ContainsAny(item, `,"'\`) || strings.TrimSpace(item) != item {
			out[i] = quote(item)
			continue
		}
		out[i] = item
	}
	return strings.Join(out, ", ")
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}
