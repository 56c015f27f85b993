// Package variable evaluates expressions in a paused call frame and
// inspects remote object graphs via the Runtime domain.
package variable

import (
	"context"
	"time"

	"github.com/workspace/cdp-debugger/internal/cdp"
	"github.com/workspace/cdp-debugger/internal/debugerr"
)

// Value is the unwrapped result of an expression evaluation or property
// read: primitives carry Value directly, objects/functions carry only
// ObjectID plus metadata.
type Value struct {
	Type        string      `json:"type"`
	Subtype     string      `json:"subtype,omitempty"`
	Value       interface{} `json:"value,omitempty"`
	ObjectID    string      `json:"objectId,omitempty"`
	Description string      `json:"description,omitempty"`
	ClassName   string      `json:"className,omitempty"`
}

// PropertyDescriptor mirrors Runtime.getProperties' per-property result
// shape.
type PropertyDescriptor struct {
	Name         string `json:"name"`
	Value        Value  `json:"value"`
	Writable     bool   `json:"writable"`
	Enumerable   bool   `json:"enumerable"`
	Configurable bool   `json:"configurable"`
}

// Inspector evaluates expressions and walks remote object graphs over a
// connected InspectorClient.
type Inspector struct {
	client  *cdp.Client
	timeout time.Duration
}

// New constructs an Inspector bound to client.
func New(client *cdp.Client, timeout time.Duration) *Inspector {
	return &Inspector{client: client, timeout: timeout}
}

type evaluateOnCallFrameParams struct {
	CallFrameID      string `json:"callFrameId"`
	Expression       string `json:"expression"`
	ReturnByValue    bool   `json:"returnByValue"`
	GeneratePreview  bool   `json:"generatePreview"`
}

type exceptionDetails struct {
	Text      string `json:"text"`
	Exception *Value `json:"exception,omitempty"`
}

type evaluateOnCallFrameResult struct {
	Result           Value             `json:"result"`
	ExceptionDetails *exceptionDetails `json:"exceptionDetails,omitempty"`
}

// EvaluateExpression evaluates expr in the context of callFrameID. If the
// target raises while evaluating, the error is an EvaluationError
// carrying the remote exception's description, falling back to "Unknown
// error" when none is present.
func (vi *Inspector) EvaluateExpression(ctx context.Context, expr, callFrameID string) (Value, error) {
	var result evaluateOnCallFrameResult
	err := vi.client.Send(ctx, "Debugger.evaluateOnCallFrame", evaluateOnCallFrameParams{
		CallFrameID:     callFrameID,
		Expression:      expr,
		ReturnByValue:   false,
		GeneratePreview: true,
	}, vi.timeout, &result)
	if err != nil {
		return Value{}, err
	}

	if result.ExceptionDetails != nil {
		desc := result.ExceptionDetails.Text
		if result.ExceptionDetails.Exception != nil && result.ExceptionDetails.Exception.Description != "" {
			desc = result.ExceptionDetails.Exception.Description
		}
		if desc == "" {
			desc = "Unknown error"
		}
		return Value{}, debugerr.New(debugerr.EvaluationError, desc)
	}

	return result.Result, nil
}

type getPropertiesParams struct {
	ObjectID              string `json:"objectId"`
	OwnProperties         bool   `json:"ownProperties"`
	AccessorPropertiesOnly bool  `json:"accessorPropertiesOnly"`
}

type getPropertiesResult struct {
	Result []PropertyDescriptor `json:"result"`
}

// GetObjectProperties fetches the own, enumerable-and-not properties of a
// remote object. A missing "result" field yields an empty slice, not an
// error.
func (vi *Inspector) GetObjectProperties(ctx context.Context, objectID string) ([]PropertyDescriptor, error) {
	var result getPropertiesResult
	err := vi.client.Send(ctx, "Runtime.getProperties", getPropertiesParams{
		ObjectID:               objectID,
		OwnProperties:          true,
		AccessorPropertiesOnly: false,
	}, vi.timeout, &result)
	if err != nil {
		return nil, err
	}
	return result.Result, nil
}

// InspectObject recursively expands object-typed properties starting
// from objectID, down to maxDepth levels. At the depth boundary, nested
// objects are replaced with a {"_truncated": "Max depth reached"} marker.
// maxDepth=0 returns that marker immediately without any network call.
func (vi *Inspector) InspectObject(ctx context.Context, objectID string, maxDepth int) (map[string]interface{}, error) {
	if maxDepth <= 0 {
		return truncatedMarker(), nil
	}

	props, err := vi.GetObjectProperties(ctx, objectID)
	if err != nil {
		return nil, err
	}

	out := make(map[string]interface{}, len(props))
	for _, p := range props {
		if p.Value.ObjectID != "" && isExpandable(p.Value.Type) {
			nested, err := vi.InspectObject(ctx, p.Value.ObjectID, maxDepth-1)
			if err != nil {
				return nil, err
			}
			out[p.Name] = nested
			continue
		}
		out[p.Name] = unwrapPrimitive(p.Value)
	}
	return out, nil
}

func isExpandable(valueType string) bool {
	return valueType == "object" || valueType == "function"
}

func truncatedMarker() map[string]interface{} {
	return map[string]interface{}{"_truncated": "Max depth reached"}
}

func unwrapPrimitive(v Value) interface{} {
	if v.Value != nil {
		return v.Value
	}
	if v.Description != "" {
		return v.Description
	}
	return nil
}
