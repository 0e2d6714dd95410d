package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/anibaldeboni/zero-paper/sensormon/sensor"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#575B7E")).
			Padding(0, 1)

	baseStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	headerStyle   = lipgloss.NewStyle().Bold(true)
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	inactiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	faultStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	eventStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	nameStyle  = lipgloss.NewStyle().Width(26)
	valueStyle = lipgloss.NewStyle().Width(11).Align(lipgloss.Right)
	unitStyle  = lipgloss.NewStyle().Width(6).PaddingLeft(1)
)

var sparks = []rune("▁▂▃▄▅▆▇█")

const sparkWidth = 40

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("sensormon"))
	b.WriteString("  ")
	b.WriteString(m.runLine())
	b.WriteString("\n\n")

	b.WriteString(baseStyle.Render(m.sensorList()))
	b.WriteString("\n")
	b.WriteString(baseStyle.Render(m.channelTable()))
	b.WriteString("\n")

	if m.status != "" {
		b.WriteString(statusStyle.Render(m.status))
		b.WriteString("\n")
	}
	for _, e := range m.events {
		b.WriteString(eventStyle.Render(e))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) runLine() string {
	if !m.info.Running {
		return "idle"
	}
	if !m.tick.Countdown {
		return fmt.Sprintf("running %s  elapsed %s", m.info.RunID, formatDuration(m.tick.Elapsed))
	}

	total := m.tick.Elapsed + m.tick.Remaining
	pct := 0.0
	if total > 0 {
		pct = float64(m.tick.Elapsed) / float64(total)
	}
	return fmt.Sprintf("running %s  remaining %s  %s",
		m.info.RunID, formatDuration(m.tick.Remaining), m.progress.ViewAs(pct))
}

func (m Model) sensorList() string {
	if len(m.sensors) == 0 {
		return inactiveStyle.Render("no sensors configured")
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("Sensors"))
	for i, st := range m.sensors {
		b.WriteString("\n")

		cursor := "  "
		if i == m.cursor {
			cursor = cursorStyle.Render("> ")
		}
		active := "[ ]"
		if st.Descriptor.Active {
			active = "[x]"
		}
		shown := " "
		if st.Selected {
			shown = "*"
		}

		name := nameStyle.Render(st.Descriptor.Name)
		if !st.Descriptor.Active {
			name = inactiveStyle.Render(name)
		}

		line := fmt.Sprintf("%s%s %s %s %s", cursor, active, shown, swatches(st.Descriptor), name)
		if st.Running {
			line += fmt.Sprintf(" %d samples", st.Produced)
		}
		if st.Fault != "" {
			line += " " + faultStyle.Render(st.Fault)
		}
		b.WriteString(line)
	}
	return b.String()
}

func swatches(d sensor.Descriptor) string {
	var b strings.Builder
	for c := range d.Channels {
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(d.Color(c))).Render("■"))
	}
	return b.String()
}

func (m Model) selectedDescriptor() (sensor.Descriptor, bool) {
	for _, st := range m.sensors {
		if st.Descriptor.Name == m.selected {
			return st.Descriptor, true
		}
	}
	return sensor.Descriptor{}, false
}

func (m Model) channelTable() string {
	d, ok := m.selectedDescriptor()
	if !ok {
		return inactiveStyle.Render("no sensor selected")
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(d.Name))
	if m.snap.Empty() {
		b.WriteString(inactiveStyle.Render("  waiting for readings"))
	} else {
		b.WriteString(fmt.Sprintf("  %d readings, last %s", m.snap.Count, m.snap.Timestamp.Format(time.TimeOnly)))
	}
	b.WriteString("\n")

	cols := []string{"", "current", "min", "max", "avg", "p50", "p90", "p99"}
	b.WriteString(lipgloss.NewStyle().Width(4).Render(cols[0]))
	for _, c := range cols[1:] {
		b.WriteString(valueStyle.Render(c))
	}
	b.WriteString("\n")

	for c := range d.Channels {
		swatch := lipgloss.NewStyle().Foreground(lipgloss.Color(d.Color(c))).Render(fmt.Sprintf("c%d", c))
		b.WriteString(lipgloss.NewStyle().Width(4).Render(swatch))
		for _, v := range m.channelValues(c) {
			b.WriteString(valueStyle.Render(formatValue(v)))
		}
		b.WriteString(unitStyle.Render(d.Unit(c)))
		b.WriteString("\n    ")
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(d.Color(c))).Render(m.sparkline(c)))
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// channelValues returns current, min, max, avg and the three quantiles of
// channel c, NaN where the snapshot has nothing.
func (m Model) channelValues(c int) []float64 {
	vals := make([]float64, 7)
	for i := range vals {
		vals[i] = math.NaN()
	}
	if m.snap.Empty() || c >= m.snap.Channels {
		return vals
	}
	at := func(s []float64) float64 {
		if c < len(s) {
			return s[c]
		}
		return math.NaN()
	}
	vals[0], vals[1], vals[2], vals[3] = at(m.snap.Current), at(m.snap.Min), at(m.snap.Max), at(m.snap.Avg)
	if c < len(m.snap.Quantiles) {
		q := m.snap.Quantiles[c]
		vals[4], vals[5], vals[6] = q.P50, q.P90, q.P99
	}
	return vals
}

func (m Model) sparkline(c int) string {
	if c >= len(m.snap.History) {
		return ""
	}
	hist := m.snap.History[c]
	if len(hist) > sparkWidth {
		hist = hist[len(hist)-sparkWidth:]
	}
	return sparkline(hist)
}

// sparkline scales values between their own min and max.
func sparkline(values []float64) string {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo, hi = min(lo, v), max(hi, v)
	}

	var b strings.Builder
	for _, v := range values {
		switch {
		case math.IsNaN(v) || math.IsInf(v, 0):
			b.WriteRune(' ')
		case hi == lo:
			b.WriteRune(sparks[len(sparks)/2])
		default:
			i := int((v - lo) / (hi - lo) * float64(len(sparks)-1))
			b.WriteRune(sparks[i])
		}
	}
	return b.String()
}

func formatValue(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}

func formatDuration(d time.Duration) string {
	return d.Truncate(time.Second).String()
}
