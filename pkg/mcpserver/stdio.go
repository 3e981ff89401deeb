package mcpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

const maxMessageSize = 10 * 1024 * 1024

// ServeStdio reads newline-delimited JSON-RPC messages from r and writes
// responses to w, one per line. Requests run concurrently; writes are
// serialized. It returns when r reaches EOF, after in-flight requests
// finish, or when ctx is cancelled.
func (h *Handler) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	logger := h.logger.With().Str("transport", "stdio").Logger()
	logger.Info().Msg("Serving MCP over stdio")

	lines := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	var (
		writeMu  sync.Mutex
		inFlight sync.WaitGroup
	)
	encoder := json.NewEncoder(w)

	write := func(resp *Response) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := encoder.Encode(resp); err != nil {
			logger.Error().Err(err).Msg("Failed to write response")
		}
	}

	for {
		select {
		case <-ctx.Done():
			inFlight.Wait()
			return ctx.Err()

		case line, ok := <-lines:
			if !ok {
				inFlight.Wait()
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("failed to read stdin: %w", err)
					}
				default:
				}
				logger.Info().Msg("Input closed, stopping")
				return nil
			}
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}

			inFlight.Add(1)
			go func() {
				defer inFlight.Done()
				if resp := h.HandleMessage(ctx, line); resp != nil {
					write(resp)
				}
			}()
		}
	}
}
