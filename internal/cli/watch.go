package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/pulse/internal/client"
)

// watchHistory is how many cycles the TUI keeps on screen.
const watchHistory = 8

var watchPlain bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch cycles stream live",
	Long: `Stream completed heartbeat cycles from the daemon as they happen.

Renders an interactive view on a terminal; --plain (or piping the
output) switches to one line per cycle.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchPlain, "plain", false, "line-based output instead of the interactive view")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchPlain || !term.IsTerminal(int(os.Stdout.Fd())) {
		return runWatchPlain()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := tea.NewProgram(newWatchModel())
	go func() {
		err := apiClient.Watch(ctx, func(rec client.Heartbeat) error {
			p.Send(recordMsg{rec: rec})
			return nil
		})
		p.Send(streamDoneMsg{err: err})
	}()

	finalModel, err := p.Run()
	cancel()
	if err != nil {
		return fmt.Errorf("watch UI error: %w", err)
	}

	if m, ok := finalModel.(watchModel); ok && !m.quitting && m.err != nil {
		return m.err
	}
	return nil
}

// runWatchPlain streams one line per cycle until interrupted.
func runWatchPlain() error {
	return apiClient.Watch(context.Background(), func(rec client.Heartbeat) error {
		fmt.Printf("#%d  %s  energy %.1f→%.1f  valence %+.2f  %s\n",
			rec.Number, rec.EndedAt.Format("15:04:05"),
			rec.EnergyStart, rec.EnergyEnd, rec.EmotionalValence,
			firstLine(rec.Narrative))
		return nil
	})
}

// Theme holds the color scheme for the watch display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) valenceStyle(valence float64) lipgloss.Style {
	if valence < 0 {
		return lipgloss.NewStyle().Foreground(t.Error)
	}
	return lipgloss.NewStyle().Foreground(t.Success)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// recordMsg carries one streamed cycle record.
type recordMsg struct {
	rec client.Heartbeat
}

// streamDoneMsg signals the websocket stream ended.
type streamDoneMsg struct {
	err error
}

// watchModel is the bubbletea model for the live cycle view.
type watchModel struct {
	records   []client.Heartbeat
	energy    progress.Model
	energyMax float64
	theme     Theme
	quitting  bool
	err       error
}

func newWatchModel() watchModel {
	bar := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(30),
	)
	return watchModel{
		energy: bar,
		theme:  defaultTheme,
	}
}

// Init returns the initial command.
func (m watchModel) Init() tea.Cmd {
	return m.energy.Init()
}

// Update handles messages and returns the updated model.
func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case recordMsg:
		m.records = append(m.records, msg.rec)
		if len(m.records) > watchHistory {
			m.records = m.records[len(m.records)-watchHistory:]
		}
		if msg.rec.EnergyStart > m.energyMax {
			m.energyMax = msg.rec.EnergyStart
		}
		if msg.rec.EnergyEnd > m.energyMax {
			m.energyMax = msg.rec.EnergyEnd
		}
		return m, nil

	case streamDoneMsg:
		m.err = msg.err
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.energy, cmd = m.energy.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the live cycle display.
func (m watchModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m watchModel) renderContent() string {
	var b strings.Builder

	b.WriteString(m.theme.statusStyle().Render("Watching cycles"))
	b.WriteString(m.theme.hintStyle().Render("  (q to quit)"))
	b.WriteString("\n\n")

	if len(m.records) == 0 {
		b.WriteString(m.theme.hintStyle().Render("Waiting for the next heartbeat..."))
		b.WriteString("\n")
		return b.String()
	}

	latest := m.records[len(m.records)-1]
	pct := 0.0
	if m.energyMax > 0 {
		pct = latest.EnergyEnd / m.energyMax
	}
	b.WriteString(fmt.Sprintf("Energy %s %.1f/%.1f\n\n", m.energy.ViewAs(pct), latest.EnergyEnd, m.energyMax))

	for _, rec := range m.records {
		valence := m.theme.valenceStyle(rec.EmotionalValence).Render(fmt.Sprintf("%+.2f", rec.EmotionalValence))
		b.WriteString(fmt.Sprintf("#%d  %s  energy %.1f→%.1f  valence %s\n",
			rec.Number, rec.EndedAt.Format("15:04:05"), rec.EnergyStart, rec.EnergyEnd, valence))

		kinds := make([]string, 0, len(rec.Actions))
		for _, a := range rec.Actions {
			kinds = append(kinds, a.Kind)
		}
		if len(kinds) > 0 {
			b.WriteString(fmt.Sprintf("     actions: %s\n", strings.Join(kinds, ", ")))
		}
		if rec.Narrative != "" {
			b.WriteString(m.theme.hintStyle().Render("     "+firstLine(rec.Narrative)) + "\n")
		}
	}

	if m.err != nil {
		b.WriteString(m.theme.errorStyle().Render(fmt.Sprintf("\nStream ended: %v\n", m.err)))
	}

	return b.String()
}
