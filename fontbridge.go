// Package fontbridge builds icon fonts in an isolated worker process and
// relays the structured result back to the host.
package fontbridge

// Version is the fontbridge release, reported by the CLI and the MCP server.
const Version = "0.3.0"
