// Package dashboard renders the live monitor in a terminal.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/davidbond17/pingpro/internal/insights"
	"github.com/davidbond17/pingpro/internal/monitor"
	"github.com/davidbond17/pingpro/internal/quality"
)

// Controller is the slice of the monitor loop the dashboard drives.
type Controller interface {
	Subscribe() (<-chan monitor.Snapshot, func())
	Start(ctx context.Context)
	Stop(ctx context.Context) error
	State() monitor.State
}

type Dashboard struct {
	app        *tview.Application
	controller Controller
	status     *tview.TextView
	activities *tview.TextView
	footer     *tview.TextView
}

func New(controller Controller) *Dashboard {
	return &Dashboard{
		app:        tview.NewApplication(),
		controller: controller,
	}
}

// Run blocks until the user quits or ctx is done.
func (d *Dashboard) Run(ctx context.Context) error {
	d.setupUI(ctx)

	updates, cancel := d.controller.Subscribe()
	defer cancel()

	go func() {
		for {
			select {
			case <-ctx.Done():
				d.app.Stop()
				return
			case snap, ok := <-updates:
				if !ok {
					return
				}
				d.app.QueueUpdateDraw(func() {
					d.status.SetText(Format(snap))
					d.activities.SetText(FormatRecommendations(insights.Recommend(snap.AvgLatency, snap.PacketLoss)))
				})
			}
		}
	}()

	return d.app.Run()
}

func (d *Dashboard) setupUI(ctx context.Context) {
	d.status = tview.NewTextView().
		SetDynamicColors(true)
	d.status.SetBorder(true).
		SetTitle(" Connection ")

	d.activities = tview.NewTextView().
		SetDynamicColors(true)
	d.activities.SetBorder(true).
		SetTitle(" Activities ")

	d.footer = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText("[yellow]s[white] start/stop  [yellow]q[white] quit")

	body := tview.NewFlex().
		AddItem(d.status, 0, 2, false).
		AddItem(d.activities, 0, 1, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, false).
		AddItem(d.footer, 1, 0, false)

	d.app.SetRoot(root, true).
		SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
			switch event.Key() {
			case tcell.KeyEsc:
				d.app.Stop()
				return nil
			case tcell.KeyRune:
				switch event.Rune() {
				case 'q':
					d.app.Stop()
					return nil
				case 's':
					go d.toggle(ctx)
					return nil
				}
			}
			return event
		})
}

func (d *Dashboard) toggle(ctx context.Context) {
	if d.controller.State() == monitor.StateRunning {
		_ = d.controller.Stop(ctx)
		return
	}
	d.controller.Start(ctx)
}

// Format renders a snapshot as tview-tagged text.
func Format(snap monitor.Snapshot) string {
	var b strings.Builder
	state := "[gray]idle[white]"
	if snap.IsMonitoring {
		state = "[green]monitoring[white]"
	}
	fmt.Fprintf(&b, "Status:   %s\n", state)
	fmt.Fprintf(&b, "Host:     %s every %s\n", snap.Host, snap.Interval)
	network := string(snap.NetworkType)
	if !snap.Connected {
		network += " [red](disconnected)[white]"
	}
	fmt.Fprintf(&b, "Network:  %s\n\n", network)

	fmt.Fprintf(&b, "Current:  %s\n", ms(snap.CurrentLatency))
	fmt.Fprintf(&b, "Average:  %s\n", ms(snap.AvgLatency))
	fmt.Fprintf(&b, "Min/Max:  %s / %s\n", ms(snap.MinLatency), ms(snap.MaxLatency))
	fmt.Fprintf(&b, "Loss:     %.1f%%\n\n", snap.PacketLoss)

	fmt.Fprintf(&b, "Quality:  [%s]%d %s[white]\n", tierColor(snap.QualityTier), snap.QualityScore, snap.QualityTier)
	fmt.Fprintf(&b, "  latency %d  loss %d  stability %d\n",
		snap.Breakdown.LatencyScore, snap.Breakdown.PacketLossScore, snap.Breakdown.StabilityScore)
	if snap.IsMonitoring {
		fmt.Fprintf(&b, "\nSamples:  %d in window, %d in session\n", snap.WindowSamples, snap.SessionSamples)
		if !snap.LastCycle.IsZero() {
			fmt.Fprintf(&b, "Updated:  %s\n", snap.LastCycle.Local().Format(time.TimeOnly))
		}
	}
	return b.String()
}

// FormatRecommendations renders one line per activity.
func FormatRecommendations(recs []insights.Recommendation) string {
	if len(recs) == 0 {
		return "[gray]waiting for measurements[white]"
	}
	var b strings.Builder
	for _, r := range recs {
		color := "red"
		switch r.Status {
		case insights.StatusExcellent:
			color = "green"
		case insights.StatusGood:
			color = "yellow"
		}
		fmt.Fprintf(&b, "[%s]%-19s[white] %s\n", color, r.Activity.Name, r.Message)
	}
	return b.String()
}

func ms(v *float64) string {
	if v == nil {
		return "--"
	}
	return fmt.Sprintf("%.0f ms", *v)
}

func tierColor(t quality.Tier) string {
	switch t {
	case quality.TierExcellent:
		return "green"
	case quality.TierGood:
		return "blue"
	case quality.TierFair:
		return "yellow"
	default:
		return "red"
	}
}
