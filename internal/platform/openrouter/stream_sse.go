package openrouter

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// streamSSE hands every "data:" line to onEvent as its own frame. Frames may
// be separated by a blank line or by a single newline; OpenRouter never
// splits one JSON payload across data lines. Comment lines
// (": OPENROUTER PROCESSING") are ignored.
func streamSSE(r io.Reader, onEvent func(event string, data string) error) error {
	br := bufio.NewReader(r)
	var eventName string

	handle := func(line string) error {
		switch {
		case line == "":
			eventName = ""
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if onEvent == nil {
				return nil
			}
			return onEvent(eventName, data)
		}
		return nil
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				// last line may arrive without a terminator
				if tail := strings.TrimRight(line, "\r\n"); tail != "" {
					return handle(tail)
				}
				return nil
			}
			return err
		}
		if err := handle(strings.TrimRight(line, "\r\n")); err != nil {
			return err
		}
	}
}
