package match

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/deadlock-gc/internal/domain"
)

const durationBarWidth = 20

type RenderOptions struct {
	Now time.Time
}

func RenderMetadata(meta domain.MatchMetadata) (string, error) {
	return run(func(s styles) string {
		return metadataView(meta, s)
	})
}

func RenderHistory(history domain.MatchHistory, opts RenderOptions) (string, error) {
	return run(func(s styles) string {
		return historyView(history, opts, s)
	})
}

func metadataView(meta domain.MatchMetadata, s styles) string {
	lines := []string{
		s.title.Render("Match Metadata"),
		s.matchID.Render(fmt.Sprintf("match %d", meta.MatchID)),
		field(s, "cluster", fmt.Sprintf("%d", meta.ClusterID)),
		field(s, "metadata salt", fmt.Sprintf("%d", meta.MetadataSalt)),
		field(s, "replay salt", fmt.Sprintf("%d", meta.ReplaySalt)),
		s.section.Render(lipgloss.JoinVertical(lipgloss.Left,
			field(s, "metadata", s.link.Render(meta.MetadataURL)),
			field(s, "replay", s.link.Render(meta.ReplayURL)),
		)),
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func historyView(history domain.MatchHistory, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Global Match History"),
		s.header.Render(fmt.Sprintf("matches: %d", len(history.Matches))),
	}

	if len(history.Matches) == 0 {
		lines = append(lines, s.empty.Render("No matches returned."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	longest := uint32(0)
	for _, m := range history.Matches {
		if m.DurationS > longest {
			longest = m.DurationS
		}
	}

	for _, m := range history.Matches {
		lines = append(lines, matchLine(m, longest, opts, s))
	}

	if history.NextCursor != 0 {
		lines = append(lines, s.section.Render(s.header.Render(fmt.Sprintf("next cursor: %d", history.NextCursor))))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func matchLine(m domain.MatchSummary, longest uint32, opts RenderOptions, s styles) string {
	started := time.Unix(int64(m.StartTime), 0).UTC()
	startStyle := lipgloss.NewStyle().Foreground(recencyColor(started, opts.Now))

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.matchID.Render(fmt.Sprintf("%-10d", m.MatchID)),
		" ",
		startStyle.Render(formatStart(started, opts.Now)),
		" ",
		s.detail.Render(fmt.Sprintf("%-12s", gameModeLabel(m.GameMode))),
		" ",
		renderDurationBar(m.DurationS, longest, durationBarWidth, s),
		" ",
		s.detail.Render(formatDuration(m.DurationS)),
		" ",
		teamLabel(m.WinningTeam, s),
	)
}

func field(s styles, key string, value string) string {
	return s.key.Render(key+":") + " " + s.detail.Render(value)
}

func renderDurationBar(duration, longest uint32, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	filled := 0
	if longest > 0 {
		filled = int(math.Round(float64(width) * float64(duration) / float64(longest)))
	}
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", width-filled)),
		s.barBracket.Render("]"),
	)
}

func formatDuration(seconds uint32) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func formatStart(started, now time.Time) string {
	if started.Unix() == 0 {
		return "unknown    "
	}
	if now.IsZero() {
		return started.Format("02 Jan 15:04")
	}

	ago := now.Sub(started)
	switch {
	case ago < 0:
		return started.Format("02 Jan 15:04")
	case ago < time.Hour:
		return fmt.Sprintf("%2dm ago     ", int(ago.Minutes()))
	case ago < 24*time.Hour:
		return fmt.Sprintf("%2dh ago     ", int(ago.Hours()))
	default:
		return started.Format("02 Jan 15:04")
	}
}

func gameModeLabel(mode uint32) string {
	switch mode {
	case 1:
		return "normal"
	case 2:
		return "1v1 test"
	case 3:
		return "sandbox"
	case 4:
		return "street brawl"
	default:
		return fmt.Sprintf("mode %d", mode)
	}
}

func teamLabel(team uint32, s styles) string {
	switch team {
	case 0:
		return s.teamAmber.Render("Amber Hand won")
	case 1:
		return s.teamBlue.Render("Sapphire Flame won")
	default:
		return s.empty.Render("no winner")
	}
}

func interpolateColor(value, min, max float64) lipgloss.Color {
	if max == min {
		return lipgloss.Color("255")
	}

	normalized := (value - min) / (max - min)
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}

	// 240 is faded grey, 255 bright white.
	baseColor := 240.0
	targetColor := 255.0
	colorCode := int(baseColor + (targetColor-baseColor)*normalized)

	return lipgloss.Color(fmt.Sprintf("%d", colorCode))
}

// recencyColor fades from white for a match started now to grey after a day.
func recencyColor(started, now time.Time) lipgloss.Color {
	if now.IsZero() || started.After(now) {
		return lipgloss.Color("255")
	}

	window := 24 * time.Hour
	inverted := window.Seconds() - now.Sub(started).Seconds()
	return interpolateColor(inverted, 0, window.Seconds())
}
