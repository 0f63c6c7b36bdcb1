package logwatch

import (
	"bufio"
	"context"
	"log"
	"os/exec"

	"github.com/pkg/errors"
)

// followJournal streams sshd entries from journalctl, one line per
// message in short-iso format.
func followJournal(ctx context.Context, emit func(string)) error {
	cmd := exec.CommandContext(ctx, "journalctl",
		"-f", "-n", "0", "-u", "ssh", "-u", "sshd", "-o", "short-iso", "--no-pager")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "failed to attach to journalctl output")
	}

	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "failed to start journalctl")
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		emit(scanner.Text())
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		log.Printf("journalctl stream broke: %v\n", err)
	}

	if err := cmd.Wait(); err != nil && ctx.Err() == nil {
		return errors.Wrap(err, "journalctl exited")
	}

	return nil
}

func journalAvailable() bool {
	_, err := exec.LookPath("journalctl")
	return err == nil
}
