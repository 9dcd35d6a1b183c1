package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/armlink/internal/logging"
	"github.com/gwillem/armlink/pkg/playback"
	"github.com/gwillem/armlink/pkg/robot"
)

type RunCommand struct {
	Hz          int    `long:"hz" default:"60" description:"Control loop frequency"`
	Loop        bool   `long:"loop" description:"Repeat the program instead of returning home"`
	Sim         bool   `long:"sim" description:"Use simulated arms instead of the configured drivers"`
	MetricsAddr string `long:"metrics-addr" description:"Serve Prometheus metrics on this address (e.g. :9100)"`
	LogFile     string `long:"log-file" description:"Write protocol logs to this file"`

	Args struct {
		Program string `positional-arg-name:"program" description:"Pose program (JSON)"`
	} `positional-args:"yes" required:"yes"`
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	statusHeight = 6 // status table
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// Arm colors
var armColors = map[string]string{
	"base":    "208", // orange
	"forearm": "51",  // cyan
}

var armNames = []string{"base", "forearm"}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type runModel struct {
	player   *playback.Player
	program  string
	chart    *streamlinechart.Model
	width    int
	height   int
	logs     []string
	state    playback.State
	hasState bool
	quitting bool
}

func (m *runModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// changed reports whether s differs from the last drawn state in anything
// the chart shows.
func (m *runModel) changed(s playback.State) bool {
	if !m.hasState {
		return true
	}
	return s.BasePose != m.state.BasePose || s.ForearmPose != m.state.ForearmPose
}

// Messages from the player
type stateMsg playback.State
type logMsg string

func waitForState(p *playback.Player) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-p.States())
	}
}

func waitForLog(p *playback.Player) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-p.Logs())
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *runModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 16 // default size before we know terminal size
	}
	width = max(40, m.width-borderSize-2)
	height = max(8, m.height-headerHeight-legendHeight-statusHeight-footerHeight-borderSize)
	return width, height
}

func (m *runModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialRunModel(p *playback.Player, program string) runModel {
	chart := streamlinechart.New(80, 16,
		streamlinechart.WithYRange(0, robot.MaxPoses-1),
	)
	for _, name := range armNames {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(armColors[name]))
		chart.SetDataSetStyles(name, runes.ThinLineStyle, style)
	}

	return runModel{
		player:  p,
		program: program,
		chart:   &chart,
	}
}

func (m runModel) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.player),
		waitForLog(m.player),
	)
}

func (m runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case stateMsg:
		state := playback.State(msg)
		// Only push when a pose changes (freeze when idle)
		if m.changed(state) {
			m.chart.PushDataSet("base", float64(state.BasePose))
			m.chart.PushDataSet("forearm", float64(state.ForearmPose))
			m.chart.DrawAll()
		}
		m.state = state
		m.hasState = true
		return m, waitForState(m.player)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.player)
	}

	return m, nil
}

func (m runModel) View() string {
	if m.quitting {
		return "Playback stopped.\n"
	}

	var sb strings.Builder

	sb.WriteString(titleStyle.Render("armlink run"))
	sb.WriteString(fmt.Sprintf(" - %s @ %d Hz", m.program, m.player.Hz()))
	if m.hasState {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%s]", m.state.Phase)))
	}
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	sb.WriteString(renderLegend())
	sb.WriteString("\n")

	sb.WriteString(renderStatus(m.state))
	sb.WriteString("\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(20, m.width-4)).
		Foreground(lipgloss.Color("9")) // bright red

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'q' to quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func renderLegend() string {
	var items []string
	for _, name := range armNames {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(armColors[name])).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+name+" pose")
	}
	return strings.Join(items, "  ")
}

func renderStatus(s playback.State) string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	flag := func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(statusStyle).
		Headers("Arm", "Pose", "Queued", "Target").
		Rows(
			[]string{"base", fmt.Sprint(s.BasePose), fmt.Sprint(s.BaseQueue), fmt.Sprint(s.Waypoint)},
			[]string{"forearm", fmt.Sprint(s.ForearmPose), fmt.Sprint(s.ForearmQueue), fmt.Sprint(s.Waypoint)},
		).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	return t.Render() + "\n" + statusStyle.Render(fmt.Sprintf("waiting: %s  ready: %s", flag(s.Waiting), flag(s.Ready)))
}

// runLogger logs to the given file, or nowhere: the TUI owns the terminal.
func runLogger(path string) (*slog.Logger, func() error, error) {
	if path == "" {
		return logging.NewNop(), func() error { return nil }, nil
	}
	level, err := logging.ParseLevel(opts.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return logging.New(f, level), f.Close, nil
}

// serveMetrics exposes reg on addr until the returned shutdown func is called.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func (c *RunCommand) Execute(args []string) error {
	program, err := playback.LoadProgram(c.Args.Program)
	if err != nil {
		return err
	}

	cfg := &robot.Config{}
	if !c.Sim {
		if cfg, err = loadConfig(); err != nil {
			return err
		}
	}

	logger, closeLog, err := runLogger(c.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	var metrics *robot.Metrics
	if c.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics = robot.NewMetrics(reg)
		stop := serveMetrics(c.MetricsAddr, reg, logger)
		defer stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("Connecting to arms...")
	ctrl, err := openController(ctx, cfg, c.Sim, logger, metrics)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	player, err := playback.NewPlayer(ctrl, program, playback.Config{Hz: c.Hz, Loop: c.Loop})
	if err != nil {
		return err
	}

	// The player owns ctrl until it returns.
	done := make(chan error, 1)
	go func() {
		done <- player.Start(ctx)
	}()

	p := tea.NewProgram(initialRunModel(player, c.Args.Program), tea.WithAltScreen())
	_, tuiErr := p.Run()

	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("playback failed", "err", err)
	}
	for _, msg := range ctrl.Messages() {
		logger.Debug("protocol", "arm", msg.Source, "line", msg.Text, "at", msg.Time)
	}

	if tuiErr != nil {
		return fmt.Errorf("run TUI: %w", tuiErr)
	}
	return nil
}
