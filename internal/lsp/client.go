package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// ErrSessionClosed is returned for requests issued against a client whose
// underlying process has exited or been shut down.
var ErrSessionClosed = errors.New("language server session closed")

// Client owns one language server subprocess and multiplexes JSON-RPC
// requests over its stdio. Safe for concurrent use.
type Client struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Reader
	stderr io.ReadCloser

	writeMu sync.Mutex

	pendingMu sync.Mutex
	nextID    int
	pending   map[int]chan *Message

	loopsWg  sync.WaitGroup
	done     chan struct{}
	doneOnce sync.Once
}

// StartClient launches the server command with the project root as its
// working directory and begins dispatching its output. The protocol
// initialize handshake is the caller's responsibility.
func StartClient(command []string, rootPath string) (*Client, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("empty language server command")
	}

	cmd := exec.Command(command[0], command[1:]...)
	cmd.Dir = rootPath

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", command[0], err)
	}

	c := &Client{
		cmd:     cmd,
		stdin:   stdin,
		reader:  bufio.NewReader(stdout),
		stderr:  stderr,
		pending: make(map[int]chan *Message),
		done:    make(chan struct{}),
	}

	c.loopsWg.Add(2)
	go c.readLoop()
	go c.drainStderr()
	go func() {
		// Reap the process only after both pipe readers have drained.
		c.loopsWg.Wait()
		_ = c.cmd.Wait()
		c.markDone()
	}()

	return c, nil
}

// Call sends a request and decodes the response result into result (which may
// be nil). It returns when the response arrives, the context is done, or the
// session dies.
func (c *Client) Call(ctx context.Context, method string, params, result interface{}) error {
	if !c.Alive() {
		return fmt.Errorf("%s: %w", method, ErrSessionClosed)
	}

	c.pendingMu.Lock()
	c.nextID++
	id := c.nextID
	ch := make(chan *Message, 1)
	c.pending[id] = ch
	c.pendingMu.Unlock()

	req := Request{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	if err := c.write(req); err != nil {
		c.removePending(id)
		return fmt.Errorf("%s: %w", method, err)
	}

	select {
	case msg, ok := <-ch:
		if !ok {
			return fmt.Errorf("%s: %w", method, ErrSessionClosed)
		}
		if msg.Error != nil {
			return fmt.Errorf("%s: %w", method, msg.Error)
		}
		if result != nil && len(msg.Result) > 0 {
			if err := json.Unmarshal(msg.Result, result); err != nil {
				return fmt.Errorf("%s: failed to decode result: %v", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		c.removePending(id)
		return ctx.Err()
	case <-c.done:
		return fmt.Errorf("%s: %w", method, ErrSessionClosed)
	}
}

// Notify sends a notification (no response expected).
func (c *Client) Notify(method string, params interface{}) error {
	if !c.Alive() {
		return fmt.Errorf("%s: %w", method, ErrSessionClosed)
	}
	return c.write(Notification{JSONRPC: "2.0", Method: method, Params: params})
}

// Shutdown runs the protocol shutdown handshake and waits for the process to
// exit until the context is done.
func (c *Client) Shutdown(ctx context.Context) error {
	_ = c.Call(ctx, "shutdown", nil, nil)
	_ = c.Notify("exit", nil)
	c.writeMu.Lock()
	_ = c.stdin.Close()
	c.writeMu.Unlock()

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Kill terminates the process immediately.
func (c *Client) Kill() {
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
}

// Alive reports whether the underlying process is still running.
func (c *Client) Alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Done is closed once the process has exited and been reaped.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) write(msg interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteMessage(c.stdin, msg)
}

func (c *Client) readLoop() {
	defer c.loopsWg.Done()
	for {
		msg, err := DecodeMessage(c.reader)
		if err != nil {
			// EOF or a broken pipe means the server is gone; anything
			// undecodable means the stream cannot be trusted further.
			return
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg *Message) {
	switch {
	case msg.ID != nil && msg.Method == "":
		c.pendingMu.Lock()
		ch, ok := c.pending[*msg.ID]
		if ok {
			delete(c.pending, *msg.ID)
		}
		c.pendingMu.Unlock()
		if ok {
			ch <- msg
		}
	case msg.ID != nil:
		// Server-initiated request (workspace/configuration,
		// client/registerCapability and friends). Reply with a null result
		// so the server does not stall waiting on us.
		_ = c.write(struct {
			JSONRPC string      `json:"jsonrpc"`
			ID      int         `json:"id"`
			Result  interface{} `json:"result"`
		}{JSONRPC: "2.0", ID: *msg.ID})
	default:
		// Notification (diagnostics, progress); nothing consumes these.
	}
}

func (c *Client) drainStderr() {
	defer c.loopsWg.Done()
	_, _ = io.Copy(io.Discard, c.stderr)
}

func (c *Client) removePending(id int) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// markDone closes the done channel and fails every request still in flight.
func (c *Client) markDone() {
	c.doneOnce.Do(func() {
		close(c.done)
	})
	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}
