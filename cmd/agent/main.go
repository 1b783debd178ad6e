package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/pi-cli/pi/internal/bootstrap"
	"github.com/pi-cli/pi/internal/config"
	"github.com/pi-cli/pi/internal/repl"
)

func main() {
	var (
		configPath string
		workspace  string
	)
	flag.StringVar(&configPath, "config", "", "Path to config JSON/JSONC")
	flag.StringVar(&workspace, "cwd", "", "Workspace root override")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}

	root, err := resolveWorkspaceRoot(workspace, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve cwd failed: %v\n", err)
		os.Exit(1)
	}

	res, err := bootstrap.Build(cfg, root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap failed: %v\n", err)
		os.Exit(1)
	}
	defer res.Store.Close()

	fmt.Printf("pi started in workspace: %s\n", res.WorkspaceRoot)
	fmt.Printf("session: %s agent=%s\n", res.SessionID, res.AgentName)

	loop := repl.NewLoop(res)
	if err := repl.Run(loop); err != nil {
		fmt.Fprintf(os.Stderr, "repl exited: %v\n", err)
		os.Exit(1)
	}
}

// resolveWorkspaceRoot picks the workspace root: an explicit override wins,
// then the config file's value, then the process's current directory.
func resolveWorkspaceRoot(override string, cfg config.Config) (string, error) {
	root := strings.TrimSpace(override)
	if root == "" {
		root = strings.TrimSpace(cfg.Runtime.WorkspaceRoot)
	}
	if root == "" {
		return os.Getwd()
	}
	return root, nil
}
