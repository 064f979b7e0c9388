// Package exec provides TaskExecutor and ServiceCaller implementations for
// the flow engine: LLM-backed executors for Anthropic, OpenAI, and Google
// Gemini, an HTTP service caller for MCP_CALL and WEBHOOK nodes, and
// scriptable mocks for tests.
package exec
