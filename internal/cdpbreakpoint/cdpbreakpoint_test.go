package cdpbreakpoint

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/workspace/cdp-debugger/internal/breakpoint"
	"github.com/workspace/cdp-debugger/internal/cdp"
)

type wireRequest struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type wireReply struct {
	ID     int64       `json:"id,omitempty"`
	Method string      `json:"method,omitempty"`
	Params interface{} `json:"params,omitempty"`
	Result interface{} `json:"result,omitempty"`
}

// dialFakeServer starts a WebSocket server that hands each connection to
// handle, and returns a client already connected to it.
func dialFakeServer(t *testing.T, handle func(conn *websocket.Conn)) *cdp.Client {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handle(conn)
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client := cdp.New()
	if err := client.Connect(context.Background(), wsURL, time.Second); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { client.Disconnect() })
	return client
}

func TestSetBreakpointStandardUsesSetBreakpointByUrl(t *testing.T) {
	var gotMethod string
	var gotParams setBreakpointByURLParams

	client := dialFakeServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req wireRequest
		json.Unmarshal(data, &req)
		gotMethod = req.Method
		json.Unmarshal(req.Params, &gotParams)

		resp := wireReply{ID: req.ID, Result: setBreakpointByURLResult{BreakpointID: "bp-handle-1"}}
		payload, _ := json.Marshal(resp)
		conn.WriteMessage(websocket.TextMessage, payload)
		time.Sleep(50 * time.Millisecond)
	})

	ops := New(client, time.Second)
	bp := &breakpoint.Breakpoint{Type: breakpoint.Standard, File: "/app/index.js", Line: 10}

	cdpID, err := ops.SetBreakpoint(context.Background(), bp)
	if err != nil {
		t.Fatalf("SetBreakpoint: %v", err)
	}
	if cdpID != "bp-handle-1" {
		t.Errorf("cdpID = %q, want bp-handle-1", cdpID)
	}
	if gotMethod != "Debugger.setBreakpointByUrl" {
		t.Errorf("method = %q, want Debugger.setBreakpointByUrl", gotMethod)
	}
	if gotParams.LineNumber != 9 {
		t.Errorf("LineNumber = %d, want 9 (line 10 converted to 0-indexed)", gotParams.LineNumber)
	}
	if gotParams.URL != "file:///app/index.js" {
		t.Errorf("URL = %q, want file:///app/index.js", gotParams.URL)
	}
}

func TestSetBreakpointFallsBackToSetBreakpointWithScriptID(t *testing.T) {
	var methods []string

	client := dialFakeServer(t, func(conn *websocket.Conn) {
		defer conn.Close()

		// Announce scriptParsed first so the fallback can resolve a scriptId.
		evt := wireReply{Method: "Debugger.scriptParsed", Params: scriptParsedParams{ScriptID: "42", URL: "file:///app/index.js"}}
		payload, _ := json.Marshal(evt)
		conn.WriteMessage(websocket.TextMessage, payload)
		time.Sleep(50 * time.Millisecond)

		for i := 0; i < 2; i++ {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req wireRequest
			json.Unmarshal(data, &req)
			methods = append(methods, req.Method)

			var resp wireReply
			switch req.Method {
			case "Debugger.setBreakpointByUrl":
				resp = wireReply{ID: req.ID, Result: setBreakpointByURLResult{}} // empty: simulates failure to resolve
			case "Debugger.setBreakpoint":
				resp = wireReply{ID: req.ID, Result: setBreakpointResult{BreakpointID: "bp-handle-2"}}
			}
			payload, _ := json.Marshal(resp)
			conn.WriteMessage(websocket.TextMessage, payload)
		}
		time.Sleep(50 * time.Millisecond)
	})

	ops := New(client, time.Second)
	time.Sleep(100 * time.Millisecond) // let scriptParsed land before we call SetBreakpoint

	bp := &breakpoint.Breakpoint{Type: breakpoint.Standard, File: "/app/index.js", Line: 5}
	cdpID, err := ops.SetBreakpoint(context.Background(), bp)
	if err != nil {
		t.Fatalf("SetBreakpoint: %v", err)
	}
	if cdpID != "bp-handle-2" {
		t.Errorf("cdpID = %q, want bp-handle-2", cdpID)
	}
	if len(methods) != 2 || methods[0] != "Debugger.setBreakpointByUrl" || methods[1] != "Debugger.setBreakpoint" {
		t.Errorf("methods = %v, want [setBreakpointByUrl, setBreakpoint]", methods)
	}
}

func TestCompileLogMessageInterpolatesPlaceholders(t *testing.T) {
	condition := compileLogMessage("value is {x} and {y}")
	if !strings.Contains(condition, "console.log(") {
		t.Errorf("compiled condition missing console.log: %q", condition)
	}
	if !strings.HasSuffix(strings.TrimSpace(condition), "false)") {
		t.Errorf("compiled condition should end in false): %q", condition)
	}
	if !strings.Contains(condition, "x") || !strings.Contains(condition, "y") {
		t.Errorf("compiled condition missing placeholder args: %q", condition)
	}
}

func TestRemoveBreakpointEmptyIDIsNoop(t *testing.T) {
	client := cdp.New()
	ops := New(client, time.Second)
	if err := ops.RemoveBreakpoint(context.Background(), ""); err != nil {
		t.Errorf("RemoveBreakpoint(\"\") = %v, want nil", err)
	}
}

func TestResolveScriptIDBySuffix(t *testing.T) {
	client := cdp.New()
	ops := New(client, time.Second)
	ops.scriptIDByURL["file:///long/path/to/app.js"] = "99"

	id, ok := ops.resolveScriptID("file:///app.js")
	if !ok || id != "99" {
		t.Errorf("resolveScriptID by suffix = %q, %v, want 99, true", id, ok)
	}
}
