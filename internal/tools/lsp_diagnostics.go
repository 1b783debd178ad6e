package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pi-cli/pi/internal/chat"
	"github.com/pi-cli/pi/internal/lsp"
)

// LSPDiagnosticsTool provides diagnostics for files via LSP
// LSPDiagnosticsTool 通过 LSP 提供文件的诊断信息
type LSPDiagnosticsTool struct {
	manager *lsp.Manager
}

// NewLSPDiagnosticsTool creates a new LSP diagnostics tool
// NewLSPDiagnosticsTool 创建一个新的 LSP 诊断工具
func NewLSPDiagnosticsTool(manager *lsp.Manager) *LSPDiagnosticsTool {
	return &LSPDiagnosticsTool{manager: manager}
}

// Name returns the tool name
func (t *LSPDiagnosticsTool) Name() string {
	return "lsp_diagnostics"
}

// Definition returns the tool definition
func (t *LSPDiagnosticsTool) Definition() chat.ToolDef {
	return chat.ToolDef{
		Type: "function",
		Function: chat.ToolFunction{
			Name:        t.Name(),
			Description: "Get diagnostics (errors and warnings) for a file using Language Server Protocol. Supports Python (.py) and Shell (.sh) files.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Path to the file to analyze",
					},
				},
				"required": []string{"path"},
			},
		},
	}
}

// Execute runs the diagnostics tool
func (t *LSPDiagnosticsTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("lsp_diagnostics args: %w", err)
	}

	if strings.TrimSpace(in.Path) == "" {
		return "", fmt.Errorf("path is required")
	}

	// Check if file exists
	absPath, err := filepath.Abs(in.Path)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	if _, err := os.Stat(absPath); err != nil {
		return mustJSON(map[string]any{
			"ok":            false,
			"error":         fmt.Sprintf("file not found: %s", in.Path),
			"server_status": "unavailable",
		}), nil
	}

	// Check if LSP is available for this file
	lang := t.manager.GetLanguageFromPath(in.Path)
	if lang == "" {
		return mustJSON(map[string]any{
			"ok":            false,
			"error":         fmt.Sprintf("file type not supported by LSP: %s", in.Path),
			"fallback":      "Use 'read' tool to examine the file manually",
			"server_status": "unsupported",
		}), nil
	}

	if !t.manager.IsAvailable(lang) {
		missing := t.manager.GetMissingServers()
		var hint string
		for _, m := range missing {
			if m.Lang == lang {
				hint = m.InstallHint
				break
			}
		}

		return mustJSON(map[string]any{
			"ok":            false,
			"error":         fmt.Sprintf("LSP server for %s is not installed", lang),
			"install_hint":  hint,
			"fallback":      "Use 'grep' or 'read' to analyze the file",
			"server_status": "not_installed",
		}), nil
	}

	// Get client and open the file
	client, err := t.manager.GetClient(lang)
	if err != nil {
		return mustJSON(map[string]any{
			"ok":            false,
			"error":         fmt.Sprintf("failed to start LSP client: %v", err),
			"fallback":      "Use 'grep' or 'read' to analyze the file",
			"server_status": "error",
		}), nil
	}

	// Read file content
	content, err := os.ReadFile(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	// Send didOpen notification
	uri := "file://" + absPath
	if err := client.DidOpen(uri, lang, string(content), 1); err != nil {
		return mustJSON(map[string]any{
			"ok":            false,
			"error":         fmt.Sprintf("failed to open file in LSP: %v", err),
			"fallback":      "Use 'grep' or 'read' to analyze the file",
			"server_status": "error",
		}), nil
	}

	// Note: Diagnostics are typically pushed by the server via publishDiagnostics notification
	// For simplicity, we return a message indicating that the file was opened and the server is analyzing it
	// A more complete implementation would store diagnostics received from the server

	return mustJSON(map[string]any{
		"ok":            true,
		"path":          in.Path,
		"language":      lang,
		"message":       "File opened in LSP. Diagnostics are typically published asynchronously by the server.",
		"server_status": "active",
		"note":          "For immediate error checking, consider using 'bash -n' for shell scripts or 'python -m py_compile' for Python files",
	}), nil
}
