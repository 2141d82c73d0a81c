package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/chimeyao/ghrelay/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and environment health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("ghrelay doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, defaults apply)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	check := func(name string, ok bool, hint string) {
		if ok {
			fmt.Printf("  %-22s OK\n", name+":")
		} else {
			fmt.Printf("  %-22s MISSING (%s)\n", name+":", hint)
		}
	}

	check("GitHub token", cfg.GitHub.Token != "", "set github.token or GHRELAY_GITHUB_TOKEN")
	check("Chat websocket", cfg.Chat.WSURL != "", "set chat.ws_url")
	check("AI provider", !cfg.AI.Enabled || cfg.AI.APIKey != "", "ai.enabled without ai.api_key")
	check("Repositories", len(cfg.Repos) > 0, "no repo_mappings configured")

	dataDir := cfg.DataDir()
	fmt.Printf("  Data dir: %s", dataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		fmt.Printf(" (NOT WRITABLE: %s)\n", err)
	} else {
		fmt.Println(" (OK)")
	}

	for name, rc := range cfg.Repos {
		if rc.VerifySignature && rc.WebhookSecret == "" {
			fmt.Printf("  WARNING: %s verifies signatures but has no webhook_secret\n", name)
		}
		if rc.AllowReview.Enabled && rc.AllowReview.BotUsername == "" {
			fmt.Printf("  WARNING: %s enables review without bot_username\n", name)
		}
	}
}
