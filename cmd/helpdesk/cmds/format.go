package cmds

import (
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/go-go-golems/helpdesk/pkg/helpdesk"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFDF5"))
	cellStyle   = lipgloss.NewStyle().PaddingRight(1)
	statusStyle = map[helpdesk.Status]lipgloss.Style{
		helpdesk.StatusOpen:       lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		helpdesk.StatusInProgress: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		helpdesk.StatusClosed:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
)

func stdoutIsTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd())
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("62"))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

func statusLabel(s helpdesk.Status) string {
	if st, ok := statusStyle[s]; ok && stdoutIsTTY() {
		return st.Render(s.Label())
	}
	return s.Label()
}

func ago(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}
