package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// pane is a bordered TextView that can take focus and scroll.
type pane struct {
	tv        *tview.TextView
	baseTitle string
	// follow keeps the view pinned to the newest line until the user scrolls.
	follow bool
}

func newPane(title string) *pane {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(false)
	tv.SetBorder(true)
	p := &pane{tv: tv, baseTitle: title, follow: true}
	p.SetFocused(false)
	return p
}

func (p *pane) SetFocused(focused bool) {
	title := " " + p.baseTitle + " "
	color := tcell.ColorGray
	if focused {
		title = " [::b]" + p.baseTitle + "[::-] "
		color = tcell.ColorYellow
	}
	p.tv.SetTitle(title).SetTitleAlign(tview.AlignLeft)
	p.tv.SetBorderColor(color)
}

// SetText replaces the content and keeps following the tail when pinned.
func (p *pane) SetText(text string) {
	p.tv.SetText(text)
	if p.follow {
		p.tv.ScrollToEnd()
	}
}

// HandleScroll applies paging keys; End re-pins the view to the tail.
func (p *pane) HandleScroll(event *tcell.EventKey) bool {
	row, col := p.tv.GetScrollOffset()
	_, _, _, height := p.tv.GetInnerRect()
	if height <= 0 {
		height = 1
	}
	switch event.Key() {
	case tcell.KeyUp:
		p.follow = false
		p.tv.ScrollTo(max(row-1, 0), col)
	case tcell.KeyDown:
		p.tv.ScrollTo(row+1, col)
	case tcell.KeyPgUp:
		p.follow = false
		p.tv.ScrollTo(max(row-height, 0), col)
	case tcell.KeyPgDn:
		p.tv.ScrollTo(row+height, col)
	case tcell.KeyHome:
		p.follow = false
		p.tv.ScrollToBeginning()
	case tcell.KeyEnd:
		p.follow = true
		p.tv.ScrollToEnd()
	default:
		return false
	}
	return true
}

// focusGroup cycles focus between panes with Tab.
type focusGroup struct {
	items []*pane
	index int
}

func newFocusGroup(items ...*pane) focusGroup {
	filtered := make([]*pane, 0, len(items))
	for _, item := range items {
		if item != nil {
			filtered = append(filtered, item)
		}
	}
	return focusGroup{items: filtered}
}

func (g *focusGroup) set(app *tview.Application, idx int) {
	if len(g.items) == 0 {
		return
	}
	if idx < 0 || idx >= len(g.items) {
		idx = 0
	}
	g.index = idx
	for i, item := range g.items {
		item.SetFocused(i == idx)
	}
	if app != nil {
		app.SetFocus(g.items[idx].tv)
	}
}

func (g *focusGroup) cycle(app *tview.Application, delta int) {
	if len(g.items) == 0 {
		return
	}
	next := g.index + delta
	if next < 0 {
		next = len(g.items) - 1
	} else if next >= len(g.items) {
		next = 0
	}
	g.set(app, next)
}

func (g *focusGroup) current() *pane {
	if len(g.items) == 0 {
		return nil
	}
	return g.items[g.index]
}
