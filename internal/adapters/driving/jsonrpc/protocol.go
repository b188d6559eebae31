// Package jsonrpc implements the Tool Server: a newline-framed JSON-RPC
// 2.0 server over stdin/stdout exposing document operations to AI
// assistants. It deliberately dispatches through a closed, static
// table of tool names rather than the teacher's mcp.AddTool reflection
// registration — see the package-level notes on Server for why.
package jsonrpc

import "github.com/relaylabs/pdfqa-server/internal/rpcwire"

// The wire types are shared with the proxy's Supervisor, which speaks
// the same protocol from the other end of the pipe.
type (
	Request  = rpcwire.Request
	Response = rpcwire.Response
	Error    = rpcwire.Error
)

const (
	CodeParseError     = rpcwire.CodeParseError
	CodeInvalidRequest = rpcwire.CodeInvalidRequest
	CodeMethodNotFound = rpcwire.CodeMethodNotFound
	CodeInvalidParams  = rpcwire.CodeInvalidParams
	CodeServerError    = rpcwire.CodeServerError
)

var newResult = rpcwire.NewResult
var newError = rpcwire.NewError
