// Package format turns agent outcomes into renderable units.
//
// Every function here is pure: no side effects, no failure modes. Malformed
// input renders as a generic fallback message, never as an error or panic.
// The UI shell (console or HTTP client) decides how to paint the units.
package format

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bqchat/bqchat/internal/warehouse"
)

// FallbackMessage is rendered when the model produced nothing displayable.
const FallbackMessage = "I couldn't generate a response. Please try rephrasing your question."

// Segment kinds.
const (
	KindText  = "text"
	KindCode  = "code"
	KindTable = "table"
	KindError = "error"
)

// Segment is one renderable unit of an assistant message.
// Exactly one of Text, Code, or Table is meaningful, selected by Kind.
type Segment struct {
	Kind  string `json:"kind"`
	Text  string `json:"text,omitempty"`
	Code  *Code  `json:"code,omitempty"`
	Table *Table `json:"table,omitempty"`
}

// Code is a fenced code block with its detected language.
type Code struct {
	Language string `json:"language"`
	Source   string `json:"source"`
}

// Table is a parsed markdown table.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// codeFenceRe matches a fenced code block with an optional language tag.
var codeFenceRe = regexp.MustCompile("(?s)```(\\w+)?\\n(.*?)```")

// Message decomposes a model response into ordered segments: plain text,
// fenced code blocks, and markdown tables. Empty input yields a single
// fallback text segment.
func Message(text string) []Segment {
	if strings.TrimSpace(text) == "" {
		return []Segment{{Kind: KindText, Text: FallbackMessage}}
	}

	var segments []Segment
	rest := text
	for {
		loc := codeFenceRe.FindStringSubmatchIndex(rest)
		if loc == nil {
			segments = append(segments, textSegments(rest)...)
			break
		}

		segments = append(segments, textSegments(rest[:loc[0]])...)

		language := "plaintext"
		if loc[2] >= 0 {
			language = strings.ToLower(rest[loc[2]:loc[3]])
		}
		segments = append(segments, Segment{
			Kind: KindCode,
			Code: &Code{
				Language: language,
				Source:   strings.TrimSpace(rest[loc[4]:loc[5]]),
			},
		})

		rest = rest[loc[1]:]
	}

	if len(segments) == 0 {
		return []Segment{{Kind: KindText, Text: FallbackMessage}}
	}
	return segments
}

// textSegments splits non-code text into plain text and markdown tables,
// preserving order.
func textSegments(text string) []Segment {
	var segments []Segment
	var plain []string

	flushPlain := func() {
		joined := strings.TrimSpace(strings.Join(plain, "\n"))
		plain = plain[:0]
		if joined != "" {
			segments = append(segments, Segment{Kind: KindText, Text: joined})
		}
	}

	lines := strings.Split(text, "\n")
	for i := 0; i < len(lines); i++ {
		if !isTableLine(lines[i]) {
			plain = append(plain, lines[i])
			continue
		}

		start := i
		for i < len(lines) && isTableLine(lines[i]) {
			i++
		}
		table := parseTable(lines[start:i])
		i-- // loop increment compensates

		if table == nil {
			plain = append(plain, lines[start:i+1]...)
			continue
		}
		flushPlain()
		segments = append(segments, Segment{Kind: KindTable, Table: table})
	}
	flushPlain()

	return segments
}

// parseTable converts consecutive pipe-delimited lines into a Table.
// The separator row is skipped and rows whose cell count does not match the
// header are dropped. Returns nil if no valid data rows remain.
func parseTable(lines []string) *Table {
	if len(lines) < 2 {
		return nil
	}

	columns := splitTableRow(lines[0])
	if len(columns) == 0 {
		return nil
	}

	var rows [][]string
	for _, line := range lines[1:] {
		cells := splitTableRow(line)
		if isSeparatorRow(cells) {
			continue
		}
		if len(cells) == len(columns) {
			rows = append(rows, cells)
		}
	}
	if len(rows) == 0 {
		return nil
	}

	return &Table{Columns: columns, Rows: rows}
}

func isTableLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "|") && strings.HasSuffix(trimmed, "|") && len(trimmed) > 1
}

func splitTableRow(line string) []string {
	trimmed := strings.Trim(strings.TrimSpace(line), "|")
	parts := strings.Split(trimmed, "|")
	cells := make([]string, 0, len(parts))
	for _, p := range parts {
		if cell := strings.TrimSpace(p); cell != "" {
			cells = append(cells, cell)
		}
	}
	return cells
}

func isSeparatorRow(cells []string) bool {
	if len(cells) == 0 {
		return false
	}
	for _, cell := range cells {
		if strings.Trim(cell, ":- ") != "" {
			return false
		}
	}
	return true
}

// Schema renders a schema snapshot as a markdown table.
func Schema(schema *warehouse.Schema) string {
	if schema == nil || len(schema.Columns) == 0 {
		return FallbackMessage
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Schema for table %s:\n\n", schema.Table)
	b.WriteString("| Column | Type | Nullable |\n")
	b.WriteString("| --- | --- | --- |\n")
	for _, col := range schema.Columns {
		nullable := "NO"
		if col.Nullable {
			nullable = "YES"
		}
		fmt.Fprintf(&b, "| %s | %s | %s |\n", escapeCell(col.Name), escapeCell(col.Type), nullable)
	}
	return b.String()
}

// Results renders a result set as a markdown table, preserving warehouse
// row order. An empty result set renders as a plain notice.
func Results(rs *warehouse.ResultSet) string {
	if rs == nil || len(rs.Columns) == 0 || len(rs.Rows) == 0 {
		return "No results found."
	}

	var b strings.Builder
	b.WriteString("| " + strings.Join(escapeCells(rs.Columns), " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(rs.Columns)) + "\n")
	for _, row := range rs.Rows {
		b.WriteString("| " + strings.Join(escapeCells(row), " | ") + " |\n")
	}
	return b.String()
}

// ErrorBlock renders a labeled error block. The label names the failure
// class; the message carries the underlying detail verbatim.
func ErrorBlock(label, message string) Segment {
	if label == "" {
		label = "Error"
	}
	if strings.TrimSpace(message) == "" {
		message = "something went wrong, please try again"
	}
	return Segment{Kind: KindError, Text: fmt.Sprintf("%s: %s", label, message)}
}

// TimestampLabel groups a timestamp into a human-friendly bucket relative to
// now: Today, Yesterday, Previous 7 days, Previous 30 days, or the date.
func TimestampLabel(t, now time.Time) string {
	if t.IsZero() {
		return "Unknown"
	}

	day := t.In(now.Location())
	date := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, now.Location())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch diff := int(today.Sub(date).Hours() / 24); {
	case diff <= 0:
		return "Today"
	case diff == 1:
		return "Yesterday"
	case diff <= 7:
		return "Previous 7 days"
	case diff <= 30:
		return "Previous 30 days"
	default:
		return date.Format("2006-01-02")
	}
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func escapeCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = escapeCell(c)
	}
	return out
}
