// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quibli Contributors

package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/quibli-dev/quibli/internal/config"
)

// NewRootCmd creates the root quibli command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "quibli",
		Short:         "Quibli — content platform with semantic discovery",
		Long:          "Quibli serves posts and questions with embedding-based search, suggestions, generated avatars, and a streaming chat relay.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newStartCmd(),
		newVersionCmd(),
	)

	return root
}

// resolveConfigPath returns the config file to load: the explicit flag
// value if set, otherwise the first quibli.yaml found in the standard
// locations. When none exists a default config is bootstrapped to
// ~/.config/quibli/. An empty return means run on defaults and env only.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}

	candidates := []string{"quibli.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "quibli", "quibli.yaml"))
	}
	candidates = append(candidates, filepath.Join("/etc", "quibli", "quibli.yaml"))

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	// No config found anywhere — bootstrap a default to ~/.config/quibli/.
	return config.BootstrapConfig()
}
