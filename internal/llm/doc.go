// Package llm contains adapters for invoking large language models to turn
// natural language trading instructions into structured swap actions. It
// abstracts away provider-specific APIs and normalizes request/response
// lifecycles for use within the swap runtime.
package llm
