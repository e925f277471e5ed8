package tools

import "fmt"

// JSON-RPC error codes; CodeNotFound is an application code.
const (
	CodeInvalidParams = -32602
	CodeMethodMissing = -32601
	CodeInternal      = -32603
	CodeNotFound      = -32004
)

type ToolError struct {
	Code    int
	Message string
}

func (e *ToolError) Error() string {
	return e.Message
}

func NewToolNotFoundError(name string) *ToolError {
	return &ToolError{
		Code:    CodeMethodMissing,
		Message: fmt.Sprintf("Tool not found: %s", name),
	}
}

func NewToolExecutionError(name string, err error) *ToolError {
	return &ToolError{
		Code:    CodeInternal,
		Message: fmt.Sprintf("Error executing tool %s: %v", name, err),
	}
}

func NewInvalidParamsError(format string, args ...interface{}) *ToolError {
	return &ToolError{
		Code:    CodeInvalidParams,
		Message: fmt.Sprintf(format, args...),
	}
}

func NewNotFoundError(format string, args ...interface{}) *ToolError {
	return &ToolError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf(format, args...),
	}
}
