package tui

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/qrave1/roomspeak-mesh/internal/domain"
	"github.com/qrave1/roomspeak-mesh/internal/domain/output"
	"github.com/qrave1/roomspeak-mesh/internal/usecase"
)

// RosterView рисует список участников комнаты
func RosterView(roster output.Roster) string {
	title := TitleStyle.Render("Voice chat")
	if roster.Room != "" {
		title = TitleStyle.Render("Voice chat: " + roster.Room)
	}

	status := StatusStyle.Render(roster.Status)

	if !roster.Joined {
		return lipgloss.JoinVertical(lipgloss.Left, title, status)
	}

	rows := make([][]string, 0, len(roster.Entries))
	for _, entry := range roster.Entries {
		audio := "on"
		if entry.IsMuted {
			audio = "muted"
		}

		state := entry.State
		if entry.IsLocal {
			state = "-"
		}

		rows = append(rows, []string{entry.Name, audio, state})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Participant", "Audio", "Connection").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return HeaderStyle
			case col == 2 && row < len(roster.Entries):
				return CellStyle.Inherit(stateStyle(roster.Entries[row].State))
			case row < len(roster.Entries) && roster.Entries[row].IsLocal:
				return LocalCellStyle
			default:
				return CellStyle
			}
		})

	return lipgloss.JoinVertical(lipgloss.Left, title, status, tbl.Render())
}

// ErrorView - блокирующее уведомление с подсказкой для пользователя
func ErrorView(err error) string {
	return ErrorBoxStyle.Render(
		lipgloss.JoinVertical(
			lipgloss.Left,
			ErrorTitleStyle.Render("Could not join voice chat"),
			err.Error(),
			"",
			HintStyle.Render(domain.RemediationHint(err)),
		),
	)
}

// Printer печатает список участников при каждом изменении
type Printer struct {
	out io.Writer
}

func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

func (p *Printer) Run(ctx context.Context, presence usecase.PresenceUsecase) {
	updates, unsubscribe := presence.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case roster := <-updates:
			_, _ = fmt.Fprintln(p.out, RosterView(roster))
		}
	}
}

func (p *Printer) PrintError(err error) {
	_, _ = fmt.Fprintln(p.out, ErrorView(err))
}
