package cmd

import (
	"fmt"
	"io"
	"time"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"

	"github.com/bqchat/bqchat/internal/format"
	"github.com/bqchat/bqchat/internal/store"
)

// console renders assistant output for the terminal. All styling lives here
// so the REPL loop stays plain.
type console struct {
	out io.Writer

	promptStyle lipgloss.Style
	infoStyle   lipgloss.Style
	errorStyle  lipgloss.Style
	codeStyle   lipgloss.Style
	groupStyle  lipgloss.Style
}

func newConsole(out io.Writer) *console {
	return &console{
		out:         out,
		promptStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		infoStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		errorStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		codeStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		groupStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true),
	}
}

func (c *console) banner(projectID, datasetID string) {
	fmt.Fprintln(c.out, c.infoStyle.Render(
		fmt.Sprintf("bqchat - connected to %s.%s (/help for commands)", projectID, datasetID)))
}

func (c *console) prompt() {
	fmt.Fprint(c.out, c.promptStyle.Render("you> "))
}

// reply renders an assistant answer segment by segment.
func (c *console) reply(text string) {
	fmt.Fprintln(c.out)
	for _, seg := range format.Message(text) {
		switch seg.Kind {
		case format.KindCode:
			fmt.Fprintln(c.out, c.codeStyle.Render(seg.Code.Source))
		case format.KindTable:
			c.table(seg.Table)
		case format.KindError:
			c.errorLine(seg.Text)
		default:
			fmt.Fprintln(c.out, seg.Text)
		}
		fmt.Fprintln(c.out)
	}
}

func (c *console) table(t *format.Table) {
	rendered := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(t.Columns...).
		Rows(t.Rows...)
	fmt.Fprintln(c.out, rendered.String())
}

// sessions prints saved conversations grouped by recency.
func (c *console) sessions(sessions []*store.Session) {
	if len(sessions) == 0 {
		c.infoLine("no saved conversations")
		return
	}

	now := time.Now()
	lastGroup := ""
	for _, s := range sessions {
		group := format.TimestampLabel(s.UpdatedAt, now)
		if group != lastGroup {
			fmt.Fprintln(c.out, c.groupStyle.Render(group))
			lastGroup = group
		}
		topic := s.Topic
		if topic == "" {
			topic = "(untitled)"
		}
		fmt.Fprintf(c.out, "  %s  %s\n", s.ID, topic)
	}
}

func (c *console) help() {
	fmt.Fprintln(c.out, "  /help       Show available commands")
	fmt.Fprintln(c.out, "  /new        Start a new conversation")
	fmt.Fprintln(c.out, "  /sessions   List saved conversations")
	fmt.Fprintln(c.out, "  /exit       Exit")
}

func (c *console) infoLine(s string) {
	fmt.Fprintln(c.out, c.infoStyle.Render(s))
}

func (c *console) errorLine(s string) {
	fmt.Fprintln(c.out, c.errorStyle.Render(s))
}
