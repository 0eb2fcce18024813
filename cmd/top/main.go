package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	terminal "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"github.com/goccy/go-json"
	"github.com/samber/lo"

	"github.com/omalloc/cellar/download/status"
	"github.com/omalloc/cellar/internal/constants"
	"github.com/omalloc/cellar/metrics"
	"github.com/omalloc/cellar/server"
)

var (
	endpoint     = ""
	tickInterval = time.Second * 1
)

func init() {
	flag.StringVar(&endpoint, "endpoint", "http://localhost:8080", "The cellar server to watch.")
	flag.DurationVar(&tickInterval, "interval", time.Second*1, "The interval to fetch stats.")
}

func main() {
	flag.Parse()

	newDashboard()
}

type snapshot struct {
	stats     *server.Stats
	downloads []status.Entry
}

type poller struct {
	client *http.Client

	connected atomic.Bool
	mu        sync.RWMutex
	latest    snapshot
}

func (p *poller) fetch(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(endpoint, "/")+path, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (p *poller) poll(ctx context.Context) {
	var snap snapshot
	snap.stats = &server.Stats{}

	err := p.fetch(ctx, "/stats", snap.stats)
	if err == nil {
		err = p.fetch(ctx, "/downloads", &snap.downloads)
	}
	if err != nil {
		p.connected.Store(false)
		return
	}

	p.connected.Store(true)
	p.mu.Lock()
	p.latest = snap
	p.mu.Unlock()
}

func (p *poller) snapshot() snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

func newDashboard() {
	if err := terminal.Init(); err != nil {
		log.Fatalf("failed to initialize termui: %v", err)
	}
	defer terminal.Close()

	termWidth, termHeight := terminal.TerminalDimensions()

	p := &poller{client: &http.Client{Timeout: 5 * time.Second}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		tick := time.NewTicker(tickInterval)
		defer tick.Stop()
		for {
			p.poll(ctx)
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
			}
		}
	}()

	banner := widgets.NewParagraph()
	banner.Title = " Cellar    (PRESS q TO QUIT) "
	banner.Border = true

	states := widgets.NewParagraph()
	states.Title = "States"
	states.BorderStyle.Fg = terminal.ColorWhite
	states.TitleStyle.Fg = terminal.ColorCyan

	traffic := widgets.NewParagraph()
	traffic.Title = "Traffic"
	traffic.BorderStyle.Fg = terminal.ColorWhite
	traffic.TitleStyle.Fg = terminal.ColorCyan

	hitRatio := widgets.NewGauge()
	hitRatio.Title = "Cache Hit Ratio"
	hitRatio.BarColor = terminal.ColorGreen
	hitRatio.BorderStyle.Fg = terminal.ColorWhite
	hitRatio.TitleStyle.Fg = terminal.ColorCyan

	cacheInfo := widgets.NewParagraph()
	cacheInfo.Title = "Product Cache"
	cacheInfo.BorderStyle.Fg = terminal.ColorWhite
	cacheInfo.TitleStyle.Fg = terminal.ColorCyan

	active := widgets.NewList()
	active.Title = "Downloads"
	active.BorderStyle.Fg = terminal.ColorWhite
	active.TitleStyle.Fg = terminal.ColorCyan
	active.TextStyle.Fg = terminal.ColorYellow

	hot := widgets.NewList()
	hot.Title = "Hot Products"
	hot.BorderStyle.Fg = terminal.ColorWhite
	hot.TitleStyle.Fg = terminal.ColorCyan
	hot.TextStyle.Fg = terminal.ColorYellow

	grid := terminal.NewGrid()
	grid.Set(
		terminal.NewRow(1.0/3,
			terminal.NewCol(1.0/3, states),
			terminal.NewCol(1.0/3, traffic),
			terminal.NewCol(1.0/3,
				terminal.NewRow(1.0/3, hitRatio),
				terminal.NewRow(2.0/3, cacheInfo),
			),
		),
		terminal.NewRow(2.0/3,
			terminal.NewCol(2.0/3, active),
			terminal.NewCol(1.0/3, hot),
		),
	)

	layout := func() {
		banner.SetRect(0, 0, termWidth, 3)
		grid.SetRect(0, 3, termWidth, termHeight)
	}
	layout()

	draw := func() {
		snap := p.snapshot()

		color, conn := "fg:red", "Disconnected"
		if p.connected.Load() {
			color, conn = "fg:green", "Connected"
		}
		banner.Text = fmt.Sprintf("%s | Sampling @ [%s](fg:blue) | [%s](%s)", endpoint, tickInterval, conn, color)

		stats := snap.stats
		if stats == nil {
			terminal.Render(banner, grid)
			return
		}

		banner.Text += fmt.Sprintf(" | %s %s | Uptime %s", stats.Runtime.AppName, stats.Runtime.Version, stats.Uptime)

		states.Text = drawStates(stats)
		traffic.Text = drawTraffic(stats.Metrics)
		hitRatio.Percent = hitPercent(stats.Metrics)

		if c := stats.Cache; c != nil {
			cacheInfo.Text = fmt.Sprintf("\nDriver: %s\nObjects: %s\nPending: %d\nPath: %s",
				c.Driver, humanize.Comma(int64(c.Objects)), c.Pending, c.Directory)
			hot.Rows = lo.Map(c.Hot, func(key string, i int) string {
				return fmt.Sprintf("[%02d] %s", i+1, key)
			})
		}

		active.Rows = lo.Map(snap.downloads, func(e status.Entry, _ int) string {
			return drawEntry(e)
		})

		terminal.Render(banner, grid)
	}
	draw()

	uiEvents := terminal.PollEvents()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case e := <-uiEvents:
			switch e.ID {
			case "q", "<C-c>":
				return
			case "j", "<Down>":
				active.ScrollDown()
			case "k", "<Up>":
				active.ScrollUp()
			}

			if e.Type == terminal.ResizeEvent {
				payload := e.Payload.(terminal.Resize)
				termWidth, termHeight = payload.Width, payload.Height
				layout()
				terminal.Clear()
			}
			draw()

		case <-ticker.C:
			draw()
		}
	}
}

func drawStates(stats *server.Stats) string {
	rows := lo.MapToSlice(stats.Downloads, func(s status.Status, n int) string {
		return fmt.Sprintf("%-12s %d", s, n)
	})
	sort.Strings(rows)

	sw := stats.Switches
	return fmt.Sprintf("\n%s\n\ncache=%s notification=%s activity=%s",
		strings.Join(rows, "\n"), onOff(sw.Cache), onOff(sw.Notification), onOff(sw.Activity))
}

func drawTraffic(m *metrics.Snapshot) string {
	if m == nil {
		return ""
	}
	requests := lo.Map(m.CacheRequests, func(t *metrics.LabeledTotal, _ int) string {
		return fmt.Sprintf("%-7s %d", t.Label, int64(t.Count))
	})
	return fmt.Sprintf("\nTransferred: %s\nInflight: %d\nRetries: %d\n\n%s",
		humanize.IBytes(uint64(m.Bytes)), int64(m.Inflight), int64(m.Retries), strings.Join(requests, "\n"))
}

func hitPercent(m *metrics.Snapshot) int {
	if m == nil {
		return 0
	}
	var hit, total float64
	for _, t := range m.CacheRequests {
		total += t.Count
		if t.Label == constants.CacheHit {
			hit = t.Count
		}
	}
	if total == 0 {
		return 0
	}
	return int(hit / total * 100)
}

func drawEntry(e status.Entry) string {
	size := "?"
	if e.TotalBytes > 0 {
		size = humanize.IBytes(uint64(e.TotalBytes))
	}
	line := fmt.Sprintf("[%s] %-11s %s %s / %s",
		e.DownloadID[:min(8, len(e.DownloadID))], e.Status, e.FileName, humanize.IBytes(uint64(e.BytesDownloaded)), size)

	if !e.Status.Terminal() {
		line += fmt.Sprintf(" @ %s/s", humanize.IBytes(uint64(e.BytesPerSecond)))
	}
	if e.Retries > 0 {
		line += fmt.Sprintf(" retries=%d", e.Retries)
	}
	if !e.Status.Terminal() {
		return line
	}
	return line + " " + humanize.Time(e.UpdatedAt)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
