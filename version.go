// Package foreach runs a command once for every file matching a glob pattern.
package foreach

// Version is the release version reported by "foreach version" and the MCP server.
const Version = "0.3.0"
