package variable

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/workspace/cdp-debugger/internal/cdp"
	"github.com/workspace/cdp-debugger/internal/debugerr"
)

type wireRequest struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type wireReply struct {
	ID     int64       `json:"id,omitempty"`
	Result interface{} `json:"result,omitempty"`
}

func dialFakeServer(t *testing.T, handle func(conn *websocket.Conn, req wireRequest) interface{}) *cdp.Client {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req wireRequest
			json.Unmarshal(data, &req)
			result := handle(conn, req)
			resp := wireReply{ID: req.ID, Result: result}
			payload, _ := json.Marshal(resp)
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
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

func TestEvaluateExpressionUnwrapsPrimitive(t *testing.T) {
	client := dialFakeServer(t, func(conn *websocket.Conn, req wireRequest) interface{} {
		return evaluateOnCallFrameResult{Result: Value{Type: "number", Value: float64(42)}}
	})
	vi := New(client, time.Second)

	v, err := vi.EvaluateExpression(context.Background(), "x + 1", "frame-1")
	if err != nil {
		t.Fatalf("EvaluateExpression: %v", err)
	}
	if v.Value != float64(42) {
		t.Errorf("v.Value = %v, want 42", v.Value)
	}
}

func TestEvaluateExpressionReturnsEvaluationErrorOnException(t *testing.T) {
	client := dialFakeServer(t, func(conn *websocket.Conn, req wireRequest) interface{} {
		return evaluateOnCallFrameResult{
			ExceptionDetails: &exceptionDetails{
				Text:      "Uncaught ReferenceError",
				Exception: &Value{Description: "ReferenceError: y is not defined"},
			},
		}
	})
	vi := New(client, time.Second)

	_, err := vi.EvaluateExpression(context.Background(), "y", "frame-1")
	if err == nil {
		t.Fatal("expected EvaluationError, got nil")
	}
	kind, ok := debugerr.KindOf(err)
	if !ok || kind != debugerr.EvaluationError {
		t.Errorf("KindOf(err) = %v, %v, want EvaluationError, true", kind, ok)
	}
	if !strings.Contains(err.Error(), "ReferenceError") {
		t.Errorf("error message = %q, want it to contain the remote description", err.Error())
	}
}

func TestEvaluateExpressionDefaultsToUnknownError(t *testing.T) {
	client := dialFakeServer(t, func(conn *websocket.Conn, req wireRequest) interface{} {
		return evaluateOnCallFrameResult{ExceptionDetails: &exceptionDetails{}}
	})
	vi := New(client, time.Second)

	_, err := vi.EvaluateExpression(context.Background(), "boom()", "frame-1")
	if err == nil || !strings.Contains(err.Error(), "Unknown error") {
		t.Errorf("err = %v, want it to contain \"Unknown error\"", err)
	}
}

func TestGetObjectPropertiesMissingResultIsEmpty(t *testing.T) {
	client := dialFakeServer(t, func(conn *websocket.Conn, req wireRequest) interface{} {
		return struct{}{}
	})
	vi := New(client, time.Second)

	props, err := vi.GetObjectProperties(context.Background(), "obj-1")
	if err != nil {
		t.Fatalf("GetObjectProperties: %v", err)
	}
	if len(props) != 0 {
		t.Errorf("props = %v, want empty", props)
	}
}

func TestInspectObjectMaxDepthZeroReturnsMarkerImmediately(t *testing.T) {
	calls := 0
	client := dialFakeServer(t, func(conn *websocket.Conn, req wireRequest) interface{} {
		calls++
		return getPropertiesResult{}
	})
	vi := New(client, time.Second)

	out, err := vi.InspectObject(context.Background(), "obj-1", 0)
	if err != nil {
		t.Fatalf("InspectObject: %v", err)
	}
	if out["_truncated"] != "Max depth reached" {
		t.Errorf("out = %v, want truncated marker", out)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0 (no network call at depth 0)", calls)
	}
}

func TestInspectObjectRecursesUntilDepthExhausted(t *testing.T) {
	depth := 0
	client := dialFakeServer(t, func(conn *websocket.Conn, req wireRequest) interface{} {
		depth++
		return getPropertiesResult{Result: []PropertyDescriptor{
			{Name: "child", Value: Value{Type: "object", ObjectID: "nested-obj"}},
		}}
	})
	vi := New(client, time.Second)

	out, err := vi.InspectObject(context.Background(), "obj-1", 2)
	if err != nil {
		t.Fatalf("InspectObject: %v", err)
	}
	level1, ok := out["child"].(map[string]interface{})
	if !ok {
		t.Fatalf("out[child] = %T, want map[string]interface{}", out["child"])
	}
	level2, ok := level1["child"].(map[string]interface{})
	if !ok {
		t.Fatalf("level1[child] = %T, want map[string]interface{}", level1["child"])
	}
	if level2["_truncated"] != "Max depth reached" {
		t.Errorf("level2 = %v, want truncated marker at boundary", level2)
	}
}
