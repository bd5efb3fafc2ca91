package lsp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	req := Request{
		JSONRPC: "2.0",
		ID:      7,
		Method:  "textDocument/documentSymbol",
		Params: DocumentSymbolParams{
			TextDocument: TextDocumentIdentifier{URI: "file:///tmp/app.py"},
		},
	}
	if err := WriteMessage(&buf, req); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	if !strings.HasPrefix(buf.String(), "Content-Length: ") {
		t.Fatalf("missing Content-Length header: %q", buf.String())
	}

	body, err := ReadMessage(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}

	var decoded Request
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if decoded.ID != 7 || decoded.Method != "textDocument/documentSymbol" {
		t.Errorf("unexpected decoded request: %+v", decoded)
	}
}

func TestReadMessageMissingLength(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("X-Other: 1\r\n\r\n{}"))
	if _, err := ReadMessage(r); err == nil {
		t.Error("expected error for missing Content-Length")
	}
}

func TestDecodeMessageKinds(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantID   bool
		wantMeth string
	}{
		{"response", `{"jsonrpc":"2.0","id":1,"result":[]}`, true, ""},
		{"server request", `{"jsonrpc":"2.0","id":2,"method":"workspace/configuration","params":{}}`, true, "workspace/configuration"},
		{"notification", `{"jsonrpc":"2.0","method":"textDocument/publishDiagnostics","params":{}}`, false, "textDocument/publishDiagnostics"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			framed := fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(tt.body), tt.body)

			msg, err := DecodeMessage(bufio.NewReader(strings.NewReader(framed)))
			if err != nil {
				t.Fatalf("DecodeMessage failed: %v", err)
			}
			if (msg.ID != nil) != tt.wantID {
				t.Errorf("ID presence = %v, want %v", msg.ID != nil, tt.wantID)
			}
			if msg.Method != tt.wantMeth {
				t.Errorf("Method = %q, want %q", msg.Method, tt.wantMeth)
			}
		})
	}
}
