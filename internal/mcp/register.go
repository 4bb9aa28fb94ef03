package mcp

import mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

// RegisterAllTools wires every polyrefactor tool into the MCP server.
func RegisterAllTools(s *mcpsdk.Server, state *Server) {
	registerRenameTools(s, state)
	registerExtractTools(s, state)
	registerInlineTools(s, state)
	registerEncapsulateTools(s, state)
	registerHistoryTools(s, state)
}
