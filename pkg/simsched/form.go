package simsched

import (
	"strconv"
	"strings"
)

const (
	// SectionPrefix is the markup that introduces a section header in a request body
	SectionPrefix = "### "
	// NoResponse is the placeholder the issue form writes for fields left empty
	NoResponse = "_No response_"
)

// ParameterSet maps a section header title to the raw text of its section.
type ParameterSet map[string]string

type lineKind int

const (
	bodyLine lineKind = iota
	headerLine
)

type parserState int

const (
	outsideSection parserState = iota
	insideSection
)

// classifyLine reports whether a line opens a new section and, if so, its title
func classifyLine(line string) (lineKind, string) {
	if strings.HasPrefix(line, SectionPrefix) {
		return headerLine, strings.TrimSpace(line[len(SectionPrefix):])
	}
	return bodyLine, ""
}

// ParseForm splits a request body into its sections.
// Lines before the first header and lines under a header without a title are dropped.
// A repeated header starts its section over.
func ParseForm(body string) ParameterSet {
	params := make(ParameterSet)
	sections := make(map[string]*strings.Builder)

	state := outsideSection
	var current string
	for _, line := range strings.Split(body, "\n") {
		kind, title := classifyLine(line)
		switch {
		case kind == headerLine && title == "":
			state = outsideSection
		case kind == headerLine:
			state = insideSection
			current = title
			sections[current] = &strings.Builder{}
		case state == insideSection:
			sections[current].WriteString(line)
			sections[current].WriteByte('\n')
		}
	}

	for title, text := range sections {
		params[title] = strings.TrimRightFunc(text.String(), isSpace)
	}
	return params
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}

// Text returns the trimmed value of a field, or def if the field is missing, empty or left unanswered
func (p ParameterSet) Text(field, def string) string {
	return textValue(p[field], def)
}

// IntList returns the comma separated non-negative integers of a field.
// If no valid integer is present, def is parsed the same way instead.
func (p ParameterSet) IntList(field, def string) []int {
	if list := parseIntList(p.Text(field, def)); len(list) > 0 {
		return list
	}
	return parseIntList(def)
}

// Int returns the integer value of a field, or def if it does not parse
func (p ParameterSet) Int(field string, def int) int {
	raw := p.Text(field, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// Bool returns true if a field reads "yes" and false if it reads "no", ignoring case.
// Anything else yields def.
func (p ParameterSet) Bool(field string, def bool) bool {
	switch strings.ToLower(p.Text(field, "")) {
	case "yes":
		return true
	case "no":
		return false
	default:
		return def
	}
}

func textValue(raw, def string) string {
	v := strings.TrimSpace(raw)
	if v == "" || v == NoResponse {
		return def
	}
	return v
}

func parseIntList(s string) []int {
	var list []int
	for _, token := range strings.Split(s, ",") {
		token = strings.TrimSpace(token)
		if !isDigits(token) {
			continue
		}
		v, err := strconv.Atoi(token)
		if err != nil {
			// Overflow
			continue
		}
		list = append(list, v)
	}
	return list
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// SplitCommand splits a command line on whitespace, keeping "{{ ... }}" template expressions in one token
func SplitCommand(cmd string) []string {
	var tokens []string
	var token strings.Builder
	depth := 0
	flush := func() {
		if token.Len() > 0 {
			tokens = append(tokens, token.String())
			token.Reset()
		}
	}

	for i := 0; i < len(cmd); i++ {
		switch {
		case strings.HasPrefix(cmd[i:], "{{"):
			depth++
			token.WriteString("{{")
			i++
		case depth > 0 && strings.HasPrefix(cmd[i:], "}}"):
			depth--
			token.WriteString("}}")
			i++
		case depth == 0 && isSpace(rune(cmd[i])):
			flush()
		default:
			token.WriteByte(cmd[i])
		}
	}
	flush()

	return tokens
}
