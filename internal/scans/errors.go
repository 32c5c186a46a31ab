package scans

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrNotReady      = errors.New("scan has no result yet")
	ErrNotRescorable = errors.New("document has no quality result")
)

const (
	ErrorCodeLLMTimeout   = "LLM_TIMEOUT"
	ErrorCodeLLMThrottled = "LLM_THROTTLED"
	ErrorCodeLLMSchema    = "LLM_SCHEMA_MISMATCH"
	ErrorCodeContent      = "CONTENT_ERROR"
	ErrorCodeStorage      = "STORAGE_ERROR"
	ErrorCodeInternal     = "INTERNAL_ERROR"
)
