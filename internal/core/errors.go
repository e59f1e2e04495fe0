package core

import "fmt"

// ProviderError reports a failed or empty response from the completion
// provider: transport failure, non-success status, or no text.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return "llm provider: " + e.Op
	}
	return fmt.Sprintf("llm provider: %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// FormatError reports model output that could not be interpreted as the
// required JSON shape, including interpretable JSON that violates the
// cardinality or required-field rules. Both cases are recovered the same
// way (one repair pass), so they share a type.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "unparseable model output: " + e.Reason
}

// GenerationError is terminal: both the first pass and the repair pass
// failed. It retains both failure reasons and both raw texts for diagnostics.
type GenerationError struct {
	FirstErr  error
	RepairErr error
	FirstRaw  string
	RepairRaw string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("recommendation generation failed: %v (repair also failed: %v)", e.FirstErr, e.RepairErr)
}

func (e *GenerationError) Unwrap() error { return e.RepairErr }
