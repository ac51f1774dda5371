package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/manifoldco/promptui"

	"github.com/jeanpaulrichter/phasorviz/config"
	"github.com/jeanpaulrichter/phasorviz/host"
)

// terminal answers confirmations and file selection for platforms without
// native dialogs.
type terminal struct {
	auto config.ConfirmMode

	// One prompt at a time; promptui owns the tty while it runs.
	mu sync.Mutex
}

func newTerminal(auto config.ConfirmMode) *terminal {
	return &terminal{auto: auto}
}

type promptResult struct {
	value string
	err   error
}

// run shows p and gives up when ctx ends. The prompt itself keeps waiting for
// input in that case.
func (t *terminal) run(ctx context.Context, p promptui.Prompt) (string, error) {
	done := make(chan promptResult, 1)
	go func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		v, err := p.Run()
		done <- promptResult{v, err}
	}()
	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Confirm asks a yes/no question unless confirm.auto answers it.
func (t *terminal) Confirm(ctx context.Context, title, message string) (bool, error) {
	switch t.auto {
	case config.ConfirmYes:
		return true, nil
	case config.ConfirmNo:
		return false, nil
	}
	_, err := t.run(ctx, promptui.Prompt{
		Label:     fmt.Sprintf("%s: %s", title, message),
		IsConfirm: true,
	})
	if errors.Is(err, promptui.ErrAbort) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SelectFile asks for the path of a document to load.
func (t *terminal) SelectFile(ctx context.Context) (string, int64, error) {
	if t.auto != config.ConfirmAsk {
		return "", 0, host.ErrNoSelection
	}
	path, err := t.run(ctx, promptui.Prompt{
		Label:    "Drawing to load (.json, empty to cancel)",
		Validate: validateDocumentPath,
	})
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		return "", 0, host.ErrNoSelection
	}
	if err != nil {
		return "", 0, err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return "", 0, host.ErrNoSelection
	}
	path, err = filepath.Abs(expandHome(path))
	if err != nil {
		return "", 0, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return "", 0, err
	}
	return path, fi.Size(), nil
}

func validateDocumentPath(input string) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}
	fi, err := os.Stat(expandHome(input))
	if err != nil {
		return errors.New("no such file")
	}
	if fi.IsDir() {
		return errors.New("is a directory")
	}
	return nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
