package deploy

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	progressLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))
	progressOkStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	progressSkipStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	progressFailStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

// Progress reports the orchestrator's operation-by-operation state to a
// terminal stream as it runs, one line per transition.
type Progress struct {
	mu sync.Mutex
	w  io.Writer
}

// NewProgress returns a Progress writing to w.
func NewProgress(w io.Writer) *Progress {
	return &Progress{w: w}
}

// Start reports that op has begun.
func (p *Progress) Start(op Operation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s %s\n", progressLabelStyle.Render("->"), op.Name)
}

// Done reports that op completed successfully.
func (p *Progress) Done(op Operation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s %s\n", progressOkStyle.Render("ok"), op.Name)
}

// Skip reports that op was not run: an ensure that had already converged,
// or an action whose `when` discipline (never, or a once-action already
// recorded) says not to run it.
func (p *Progress) Skip(op Operation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s %s\n", progressSkipStyle.Render("skip"), op.Name)
}

// Fail reports that op aborted the deployment.
func (p *Progress) Fail(op Operation, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s %s: %v\n", progressFailStyle.Render("fail"), op.Name, err)
}
