package mcpserver

import (
	"errors"
	"fmt"

	"github.com/policyqa/policyqa/internal/errkit"
)

// Standard JSON-RPC and custom error codes.
const (
	codeInvalidParams      = -32602
	codeInternalError      = -32603
	codePreconditionFailed = -32001
	codeTransportVector    = -32002
	codeTransportMetadata  = -32003
	codeTransportLLM       = -32004
	codeTransportWeb       = -32005
	codeNotFound           = -32006
)

// mcpError represents an MCP protocol error with code and message.
type mcpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *mcpError) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

// mapError converts an engine error (almost always an *errkit.PolicyError)
// into an mcpError with a stable, kind-derived code.
func mapError(err error) *mcpError {
	if err == nil {
		return nil
	}

	var pe *errkit.PolicyError
	if errors.As(err, &pe) {
		return mapPolicyError(pe)
	}

	return &mcpError{Code: codeInternalError, Message: err.Error()}
}

func mapPolicyError(pe *errkit.PolicyError) *mcpError {
	switch pe.Kind {
	case errkit.KindPrecondition:
		return &mcpError{Code: codePreconditionFailed, Message: pe.Error() + " " + pe.Suggestion}
	case errkit.KindTransportVec:
		return &mcpError{Code: codeTransportVector, Message: pe.Error()}
	case errkit.KindTransportMeta:
		return &mcpError{Code: codeTransportMetadata, Message: pe.Error()}
	case errkit.KindTransportLLM:
		return &mcpError{Code: codeTransportLLM, Message: pe.Error()}
	case errkit.KindTransportWeb:
		return &mcpError{Code: codeTransportWeb, Message: pe.Error()}
	case errkit.KindValidation:
		return &mcpError{Code: codeInvalidParams, Message: pe.Error()}
	case errkit.KindNotFound:
		return &mcpError{Code: codeNotFound, Message: pe.Error()}
	default:
		return &mcpError{Code: codeInternalError, Message: pe.Error()}
	}
}
