package protocol

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/tidwall/gjson"

	"lsp-proxy/src/internal/errors"
)

// JSON-RPC protocol constants
const (
	JSONRPCVersion = "2.0"
)

// JSON-RPC error codes
const (
	ParseError     = errors.ParseError
	InvalidRequest = errors.InvalidRequest
	MethodNotFound = errors.MethodNotFound
	InvalidParams  = errors.InvalidParams
	InternalError  = errors.InternalError
)

// JSONRPCMessage represents an outgoing JSON-RPC 2.0 message
type JSONRPCMessage struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id,omitempty"`
	Method  string      `json:"method,omitempty"`
	Params  interface{} `json:"params,omitempty"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Kind is the classification of a parsed frame.
type Kind int

const (
	KindInvalid Kind = iota
	KindResponse
	KindRequest
	KindNotification
)

func (k Kind) String() string {
	switch k {
	case KindResponse:
		return "response"
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	default:
		return "invalid"
	}
}

// Frame is one classified message body read from a language server.
type Frame struct {
	Kind   Kind
	Body   []byte
	ID     json.RawMessage // raw id as sent, absent for notifications
	Method string
}

// NumericID reports the id as int64 when it is a JSON number.
func (f *Frame) NumericID() (int64, bool) {
	if len(f.ID) == 0 {
		return 0, false
	}
	res := gjson.ParseBytes(f.ID)
	if res.Type != gjson.Number {
		return 0, false
	}
	return res.Int(), true
}

// Result returns the raw result of a response frame, nil when absent.
func (f *Frame) Result() json.RawMessage {
	res := gjson.GetBytes(f.Body, "result")
	if !res.Exists() {
		return nil
	}
	return json.RawMessage(res.Raw)
}

// RPCError returns the error object of a response frame, nil when absent.
func (f *Frame) RPCError() *RPCError {
	res := gjson.GetBytes(f.Body, "error")
	if !res.Exists() || res.Type == gjson.Null {
		return nil
	}
	rpcErr := &RPCError{
		Code:    int(res.Get("code").Int()),
		Message: res.Get("message").String(),
	}
	if data := res.Get("data"); data.Exists() {
		rpcErr.Data = json.RawMessage(data.Raw)
	}
	return rpcErr
}

// Params returns the raw params of a request or notification.
func (f *Frame) Params() json.RawMessage {
	res := gjson.GetBytes(f.Body, "params")
	if !res.Exists() {
		return nil
	}
	return json.RawMessage(res.Raw)
}

// Classify parses body and sorts it into response, request or notification.
func Classify(body []byte) (*Frame, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("malformed JSON-RPC body (%d bytes)", len(body))
	}
	fields := gjson.GetManyBytes(body, "id", "method", "result", "error")
	id, method, result, rpcErr := fields[0], fields[1], fields[2], fields[3]

	frame := &Frame{Body: body}
	if id.Exists() && id.Type != gjson.Null {
		frame.ID = json.RawMessage(id.Raw)
	}
	switch {
	case frame.ID != nil && (result.Exists() || rpcErr.Exists()):
		frame.Kind = KindResponse
	case method.Type == gjson.String && frame.ID != nil:
		frame.Kind = KindRequest
		frame.Method = method.String()
	case method.Type == gjson.String:
		frame.Kind = KindNotification
		frame.Method = method.String()
	default:
		return nil, fmt.Errorf("malformed JSON-RPC message: no id and no method")
	}
	return frame, nil
}

// EncodeFrame prefixes body with its Content-Length header.
func EncodeFrame(body []byte) []byte {
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))
	out := make([]byte, 0, len(header)+len(body))
	out = append(out, header...)
	return append(out, body...)
}

// WriteMessage sends a JSON-RPC message with proper Content-Length header formatting
func WriteMessage(writer io.Writer, msg JSONRPCMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = writer.Write(EncodeFrame(data))
	return err
}

// CreateMessage creates a JSON-RPC request message
func CreateMessage(method string, id interface{}, params interface{}) JSONRPCMessage {
	return JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// CreateNotification creates a JSON-RPC notification (no ID)
func CreateNotification(method string, params interface{}) JSONRPCMessage {
	return JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		Method:  method,
		Params:  params,
	}
}

// CreateResponse creates a JSON-RPC response message. A response always
// carries result or error, so a missing result is sent as null.
func CreateResponse(id interface{}, result interface{}, err *RPCError) JSONRPCMessage {
	if result == nil && err == nil {
		result = json.RawMessage("null")
	}
	return JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  result,
		Error:   err,
	}
}

// NewRPCError creates a new RPCError with the specified code and message
func NewRPCError(code int, message string, data interface{}) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// NewMethodNotFoundError creates a method not found error (-32601)
func NewMethodNotFoundError(data interface{}) *RPCError {
	return NewRPCError(MethodNotFound, "Method not found", data)
}

// NewInternalError creates an internal error (-32603)
func NewInternalError(data interface{}) *RPCError {
	return NewRPCError(InternalError, "Internal error", data)
}
