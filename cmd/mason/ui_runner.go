package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"mason/internal/eval"
	"mason/internal/ui"
)

// runWithUI drives work behind a live progress view. The work runs on
// its own goroutine and streams events through the sink; the bubbletea
// model exits once the event channel closes.
func runWithUI(ctx context.Context, title string, pieces []string, work func(ctx context.Context, sink eval.ProgressSink) error) error {
	events := make(chan eval.Event, 256)
	errCh := make(chan error, 1)

	go func() {
		errCh <- work(ctx, eval.ChannelSink{Ch: events})
		close(events)
	}()

	model := ui.NewProgressModel(title, pieces, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	workErr := <-errCh
	if uiErr != nil {
		return uiErr
	}
	return workErr
}
