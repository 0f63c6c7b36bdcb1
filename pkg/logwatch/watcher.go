package logwatch

import (
	"context"
	"log"
	"os"

	"github.com/ShanpreetSingh/cyber-siege/pkg/blocker"
	"github.com/ShanpreetSingh/cyber-siege/pkg/clock"
	"github.com/pkg/errors"
)

// Sink receives every parsed authentication event.
type Sink func(blocker.AuthEvent)

// Watcher follows one log source and feeds its events to a sink.
type Watcher struct {
	source string
	path   string
	parser *Parser
	sink   Sink
}

// New builds a watcher for the given source: "file" tails path,
// "journal" follows journalctl, and "auto" picks whichever is
// available, preferring the file.
func New(source, path string, clk clock.Clock, sink Sink) (*Watcher, error) {
	switch source {
	case "file", "journal":
	case "auto":
		detected, err := detectSource(path)
		if err != nil {
			return nil, err
		}
		source = detected
	default:
		return nil, errors.Errorf("unknown log source %v", source)
	}

	return &Watcher{
		source: source,
		path:   path,
		parser: NewParser(clk),
		sink:   sink,
	}, nil
}

func detectSource(path string) (string, error) {
	if f, err := os.Open(path); err == nil {
		f.Close()
		return "file", nil
	}
	if journalAvailable() {
		return "journal", nil
	}

	return "", errors.Errorf("no readable auth log at %v and no journalctl found", path)
}

// Source returns the resolved log source.
func (w *Watcher) Source() string {
	return w.source
}

// Run follows the log until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	log.Printf("watching %v for authentication events\n", w.describe())

	if w.source == "journal" {
		return followJournal(ctx, w.handle)
	}
	return tailFile(ctx, w.path, w.handle)
}

func (w *Watcher) describe() string {
	if w.source == "journal" {
		return "the systemd journal"
	}
	return w.path
}

func (w *Watcher) handle(line string) {
	if event, ok := w.parser.Parse(line); ok {
		w.sink(event)
	}
}
