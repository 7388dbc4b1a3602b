// Package engine is the composition root of silk. It loads configuration,
// builds the model provider through a registry of factories, and wires the
// archive builder, dispatcher and preference service together. Frontends
// (the HTTP server, the MCP server and the CLI) get their collaborators from
// an Engine and never construct them directly.
package engine
