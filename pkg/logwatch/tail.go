package logwatch

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const pollInterval = 500 * time.Millisecond

// tailFile follows path from its current end, emitting complete lines.
// Rotation shows up as the file at path shrinking or disappearing, the
// replacement is then read from its start.
func tailFile(ctx context.Context, path string, emit func(string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %v", path)
	}

	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to seek to the end of %v", path)
	}

	reader := bufio.NewReader(f)

	for {
		if f == nil {
			if f, err = os.Open(path); err == nil {
				offset = 0
				reader = bufio.NewReader(f)
			}
		}

		if f != nil {
			offset = drain(f, reader, offset, emit)

			if info, err := os.Stat(path); err != nil || info.Size() < offset {
				f.Close()
				f = nil
			}
		}

		select {
		case <-ctx.Done():
			if f != nil {
				f.Close()
			}
			return nil
		case <-time.After(pollInterval):
		}
	}
}

// drain reads complete lines until EOF, rewinding past a trailing
// partial line so it is read again once the writer finishes it.
func drain(f *os.File, reader *bufio.Reader, offset int64, emit func(string)) int64 {
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if len(line) > 0 {
				f.Seek(offset, io.SeekStart)
				reader.Reset(f)
			}
			return offset
		}

		offset += int64(len(line))
		emit(strings.TrimRight(line, "\n"))
	}
}
