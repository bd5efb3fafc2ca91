package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"refmap/util"
)

// Configuration errors are fatal at construction; the caller must fix its
// inputs and rebuild the session.
var (
	ErrProjectPathNotFound = errors.New("project path does not exist")
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

const (
	// DefaultSymbolTimeout bounds one documentSymbol request. A file that
	// exceeds it is dropped from the sweep, not the whole sweep.
	DefaultSymbolTimeout = 10 * time.Second
	// DefaultCloseTimeout bounds the graceful half of a forced shutdown.
	DefaultCloseTimeout = 5 * time.Second

	handshakeTimeout = 30 * time.Second
)

// SessionOptions tune a session. The zero value (or nil) selects defaults.
type SessionOptions struct {
	// Command overrides server command resolution entirely.
	Command []string
	// ServerPath is a custom server binary hint for command resolution.
	ServerPath string

	SymbolTimeout time.Duration
	CloseTimeout  time.Duration
}

// CommandResolver produces the launch command for the session's language
// server. Resolution runs lazily on first start.
type CommandResolver func(ctx context.Context) ([]string, error)

// Session owns one language server subprocess for one project and exposes the
// symbol and reference queries the sweep needs. All requests transparently
// start the server first, so callers never have to sequence lifecycle calls.
type Session struct {
	rootPath string
	tag      string
	language Language

	symbolTimeout time.Duration
	closeTimeout  time.Duration
	resolveCmd    CommandResolver

	mu     sync.Mutex
	client *Client
}

// NewSession validates the project root and language tag and prepares a
// session. The server is not launched until the first request or Start.
func NewSession(rootPath, language string, opts *SessionOptions) (*Session, error) {
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrProjectPathNotFound, abs)
	}

	tag := strings.ToLower(language)
	lang, ok := LookupLanguage(tag)
	if !ok {
		return nil, fmt.Errorf("%w %q, supported: %s",
			ErrUnsupportedLanguage, language, strings.Join(SupportedLanguages(), ", "))
	}

	if opts == nil {
		opts = &SessionOptions{}
	}

	s := &Session{
		rootPath:      abs,
		tag:           tag,
		language:      lang,
		symbolTimeout: opts.SymbolTimeout,
		closeTimeout:  opts.CloseTimeout,
	}
	if s.symbolTimeout <= 0 {
		s.symbolTimeout = DefaultSymbolTimeout
	}
	if s.closeTimeout <= 0 {
		s.closeTimeout = DefaultCloseTimeout
	}

	if len(opts.Command) > 0 {
		command := opts.Command
		s.resolveCmd = func(context.Context) ([]string, error) { return command, nil }
	} else {
		serverPath := opts.ServerPath
		s.resolveCmd = func(ctx context.Context) ([]string, error) {
			return resolveServerCommand(ctx, tag, serverPath)
		}
	}

	return s, nil
}

// SetCommandResolver replaces how the server launch command is found.
func (s *Session) SetCommandResolver(r CommandResolver) {
	s.mu.Lock()
	s.resolveCmd = r
	s.mu.Unlock()
}

// Start launches the language server and performs the initialize handshake.
// Idempotent: calling it on a running session does nothing.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx)
}

func (s *Session) startLocked(ctx context.Context) error {
	if s.client != nil && s.client.Alive() {
		return nil
	}

	command, err := s.resolveCmd(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve %s language server: %w", s.tag, err)
	}

	client, err := StartClient(command, s.rootPath)
	if err != nil {
		return err
	}

	initParams := InitializeParams{
		ProcessID: os.Getpid(),
		RootURI:   util.PathToURI(s.rootPath),
		Capabilities: ClientCapabilities{
			TextDocument: &TextDocumentClientCapabilities{
				DocumentSymbol: &DocumentSymbolClientCapabilities{
					HierarchicalDocumentSymbolSupport: true,
				},
			},
		},
	}

	initCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	var initResult InitializeResult
	if err := client.Call(initCtx, "initialize", initParams, &initResult); err != nil {
		client.Kill()
		return fmt.Errorf("initialize handshake failed: %w", err)
	}
	if err := client.Notify("initialized", struct{}{}); err != nil {
		client.Kill()
		return fmt.Errorf("initialized notification failed: %w", err)
	}

	s.client = client
	log.Printf("[%s] language server started for %s", s.tag, s.rootPath)
	return nil
}

// ensureClient implicitly bootstraps the session for any request path.
func (s *Session) ensureClient(ctx context.Context) (*Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.startLocked(ctx); err != nil {
		return nil, err
	}
	return s.client, nil
}

// DocumentSymbols returns a file's symbol outline. The request is bounded by
// the session's symbol timeout; timeouts and protocol errors surface as
// errors for the caller to treat as "no data" for that file.
func (s *Session) DocumentSymbols(ctx context.Context, relPath string) ([]DocumentSymbol, error) {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	closeFile, err := s.openScoped(client, relPath)
	if err != nil {
		return nil, err
	}
	defer closeFile()

	reqCtx, cancel := context.WithTimeout(ctx, s.symbolTimeout)
	defer cancel()

	params := DocumentSymbolParams{
		TextDocument: TextDocumentIdentifier{URI: s.fileURI(relPath)},
	}
	var raw json.RawMessage
	if err := client.Call(reqCtx, "textDocument/documentSymbol", params, &raw); err != nil {
		return nil, err
	}
	return decodeDocumentSymbols(raw)
}

// References returns every location where the symbol at the given position is
// used, excluding the declaration itself. The file is opened for the duration
// of the query and closed again on every exit path.
func (s *Session) References(ctx context.Context, relPath string, pos Position) ([]Location, error) {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	closeFile, err := s.openScoped(client, relPath)
	if err != nil {
		return nil, err
	}
	defer closeFile()

	params := ReferenceParams{
		TextDocument: TextDocumentIdentifier{URI: s.fileURI(relPath)},
		Position:     pos,
		Context:      ReferenceContext{IncludeDeclaration: false},
	}
	var locations []Location
	if err := client.Call(ctx, "textDocument/references", params, &locations); err != nil {
		return nil, err
	}
	return locations, nil
}

// Close shuts the session down and never fails; whatever the server does, the
// session ends up marked closed. A graceful shutdown is attempted first,
// bounded by the close timeout; with force the process is killed if it is
// still alive after that. Idempotent.
func (s *Session) Close(force bool) {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if client == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.closeTimeout)
	defer cancel()

	if err := client.Shutdown(ctx); err == nil {
		log.Printf("[%s] language server stopped", s.tag)
		return
	}

	if force {
		client.Kill()
		select {
		case <-client.Done():
		case <-time.After(s.closeTimeout):
		}
		log.Printf("[%s] language server process killed", s.tag)
		return
	}
	log.Printf("[%s] language server did not stop in time, leaving it to exit on its own", s.tag)
}

// Restart force-closes the current server process and starts a fresh one.
func (s *Session) Restart(ctx context.Context) error {
	s.Close(true)
	return s.Start(ctx)
}

func (s *Session) fileURI(relPath string) string {
	return util.PathToURI(filepath.Join(s.rootPath, filepath.FromSlash(relPath)))
}

// openScoped sends didOpen for the file and returns the matching didClose.
func (s *Session) openScoped(client *Client, relPath string) (func(), error) {
	abs := filepath.Join(s.rootPath, filepath.FromSlash(relPath))
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", relPath, err)
	}

	uri := util.PathToURI(abs)
	err = client.Notify("textDocument/didOpen", DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{
			URI:        uri,
			LanguageID: s.language.ID,
			Version:    1,
			Text:       string(content),
		},
	})
	if err != nil {
		return nil, err
	}

	return func() {
		_ = client.Notify("textDocument/didClose", DidCloseTextDocumentParams{
			TextDocument: TextDocumentIdentifier{URI: uri},
		})
	}, nil
}

// decodeDocumentSymbols accepts both answer shapes for documentSymbol: the
// hierarchical DocumentSymbol[] we ask for, and the flat SymbolInformation[]
// some servers send regardless. Flat results are lifted into hierarchy-less
// DocumentSymbols with the selection range mirroring the full range.
func decodeDocumentSymbols(raw json.RawMessage) ([]DocumentSymbol, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("unexpected documentSymbol result: %v", err)
	}
	if len(elems) == 0 {
		return nil, nil
	}

	var probe struct {
		Location *Location `json:"location"`
	}
	if err := json.Unmarshal(elems[0], &probe); err == nil && probe.Location != nil {
		var flat []SymbolInformation
		if err := json.Unmarshal(raw, &flat); err != nil {
			return nil, fmt.Errorf("failed to decode symbol information: %v", err)
		}
		symbols := make([]DocumentSymbol, 0, len(flat))
		for _, si := range flat {
			symbols = append(symbols, DocumentSymbol{
				Name:           si.Name,
				Kind:           si.Kind,
				Range:          si.Location.Range,
				SelectionRange: si.Location.Range,
			})
		}
		return symbols, nil
	}

	var symbols []DocumentSymbol
	if err := json.Unmarshal(raw, &symbols); err != nil {
		return nil, fmt.Errorf("failed to decode document symbols: %v", err)
	}
	return symbols, nil
}
