// Package sageerr implements the error taxonomy: a single sum-typed error
// with contextual fields, plus the retry/fallback classifier that sits
// between it and the execution loop's backoff policy.
package sageerr

import (
	"errors"
	"fmt"
)

// Kind discriminates the taxonomy's error categories. It intentionally uses
// a flat set of kinds rather than a hierarchy of Go types, so a single Error
// struct can carry any of them plus a sub-kind where one
// applies (McpKind, PluginKind).
type Kind string

const (
	KindConfig    Kind = "config"
	KindIO        Kind = "io"
	KindJSON      Kind = "json"
	KindHTTP      Kind = "http"
	KindLLM       Kind = "llm"
	KindTool      Kind = "tool"
	KindAgent     Kind = "agent"
	KindMCP       Kind = "mcp"
	KindCancelled Kind = "cancelled"
	KindPlugin    Kind = "plugin"
)

// McpKind discriminates the sub-variants of a KindMCP error.
type McpKind string

const (
	McpConnection        McpKind = "connection"
	McpProtocol          McpKind = "protocol"
	McpTransport         McpKind = "transport"
	McpServer            McpKind = "server"
	McpToolNotFound      McpKind = "tool_not_found"
	McpResourceNotFound  McpKind = "resource_not_found"
	McpInvalidRequest    McpKind = "invalid_request"
	McpTimeout           McpKind = "timeout"
	McpSerialization     McpKind = "serialization"
	McpNotInitialized    McpKind = "not_initialized"
	McpAlreadyInitialized McpKind = "already_initialized"
	McpCancelled         McpKind = "cancelled"
	McpOther             McpKind = "other"
)

// PluginKind discriminates the sub-variants of a KindPlugin error.
type PluginKind string

const (
	PluginLoad            PluginKind = "load"
	PluginInit            PluginKind = "init"
	PluginExecution       PluginKind = "execution"
	PluginMissingDep      PluginKind = "missing_dep"
	PluginVersionMismatch PluginKind = "version_mismatch"
	PluginPermission      PluginKind = "permission"
	PluginInvalidManifest PluginKind = "invalid_manifest"
	PluginDisabled        PluginKind = "disabled"
	PluginInternal        PluginKind = "internal"
)

// Error is the single sum-typed error every layer of the core wraps
// provider/transport/storage failures into before handing them to the
// classifier or the execution loop.
type Error struct {
	Kind Kind

	// ToolName is set for KindTool.
	ToolName string
	// McpKind/ServerCode are set for KindMCP; ServerCode is the server{code}
	// variant's numeric code when McpKind == McpServer.
	McpKind    McpKind
	ServerCode int
	// TimeoutSecs is set when McpKind == McpTimeout.
	TimeoutSecs int
	// PluginKind is set for KindPlugin.
	PluginKind PluginKind
	// HTTPStatus is set for KindHTTP when a status code is known.
	HTTPStatus int

	Message string
	Cause   error
}

func (e *Error) Error() string {
	var kindDetail string
	switch e.Kind {
	case KindTool:
		kindDetail = fmt.Sprintf("tool:%s", e.ToolName)
	case KindMCP:
		if e.McpKind == McpServer {
			kindDetail = fmt.Sprintf("mcp:server(%d)", e.ServerCode)
		} else if e.McpKind == McpTimeout {
			kindDetail = fmt.Sprintf("mcp:timeout(%ds)", e.TimeoutSecs)
		} else {
			kindDetail = fmt.Sprintf("mcp:%s", e.McpKind)
		}
	case KindPlugin:
		kindDetail = fmt.Sprintf("plugin:%s", e.PluginKind)
	case KindHTTP:
		if e.HTTPStatus != 0 {
			kindDetail = fmt.Sprintf("http:%d", e.HTTPStatus)
		} else {
			kindDetail = "http"
		}
	default:
		kindDetail = string(e.Kind)
	}

	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if msg == "" {
		return fmt.Sprintf("[%s]", kindDetail)
	}
	return fmt.Sprintf("[%s] %s", kindDetail, msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is against another *Error by Kind (and sub-kind where
// applicable), ignoring Message/Cause so sentinel-style comparisons work.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	if e.Kind != other.Kind {
		return false
	}
	switch e.Kind {
	case KindMCP:
		return other.McpKind == "" || e.McpKind == other.McpKind
	case KindPlugin:
		return other.PluginKind == "" || e.PluginKind == other.PluginKind
	default:
		return true
	}
}

// New builds an Error of the given kind wrapping cause, with an explicit
// message.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Tool builds a KindTool error naming the failing tool.
func Tool(toolName, message string, cause error) *Error {
	return &Error{Kind: KindTool, ToolName: toolName, Message: message, Cause: cause}
}

// HTTP builds a KindHTTP error carrying a status code.
func HTTP(status int, message string, cause error) *Error {
	return &Error{Kind: KindHTTP, HTTPStatus: status, Message: message, Cause: cause}
}

// MCP builds a KindMCP error of the given sub-kind.
func MCP(kind McpKind, message string, cause error) *Error {
	return &Error{Kind: KindMCP, McpKind: kind, Message: message, Cause: cause}
}

// MCPServer builds a KindMCP/McpServer error carrying the server's error code.
func MCPServer(code int, message string, cause error) *Error {
	return &Error{Kind: KindMCP, McpKind: McpServer, ServerCode: code, Message: message, Cause: cause}
}

// MCPTimeout builds a KindMCP/McpTimeout error carrying the timeout bound.
func MCPTimeout(secs int, message string) *Error {
	return &Error{Kind: KindMCP, McpKind: McpTimeout, TimeoutSecs: secs, Message: message}
}

// Plugin builds a KindPlugin error of the given sub-kind.
func Plugin(kind PluginKind, message string, cause error) *Error {
	return &Error{Kind: KindPlugin, PluginKind: kind, Message: message, Cause: cause}
}

// Cancelled is the sentinel for user/cooperative cancellation.
var Cancelled = &Error{Kind: KindCancelled, Message: "operation cancelled"}

// As extracts an *Error from err's chain, if present.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it wraps an *Error, and ok=false
// otherwise.
func KindOf(err error) (Kind, bool) {
	e, ok := As(err)
	if !ok {
		return "", false
	}
	return e.Kind, true
}
