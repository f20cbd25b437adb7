// Package cmd provides the CLI commands.
//
// Commands:
//   - chat: interactive console conversation (default)
//   - serve: JSON HTTP API server
//   - sessions: list or delete saved conversations
//
// Signal handling and graceful shutdown are implemented for all commands via
// context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/bqchat/bqchat/internal/log"
)

// Execute is the main entry point for the CLI.
func Execute() error {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(log.New(log.Config{Level: level}))

	if len(os.Args) < 2 {
		return runChat()
	}

	switch os.Args[1] {
	case "chat":
		return runChat()
	case "serve":
		return runServe()
	case "sessions":
		return runSessions(os.Args[2:])
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("bqchat - Conversational interface to your BigQuery warehouse")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  bqchat [chat]             Start an interactive conversation")
	fmt.Println("  bqchat serve              Start the JSON HTTP API server")
	fmt.Println("  bqchat sessions           List saved conversations")
	fmt.Println("  bqchat sessions delete <topic|id>")
	fmt.Println("  bqchat --version          Show version information")
	fmt.Println("  bqchat --help             Show this help")
	fmt.Println()
	fmt.Println("Chat commands (in interactive mode):")
	fmt.Println("  /help                     Show available commands")
	fmt.Println("  /new                      Start a new conversation")
	fmt.Println("  /sessions                 List saved conversations")
	fmt.Println("  /exit, /quit              Exit")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  GEMINI_API_KEY            Required: model API key")
	fmt.Println("  PROJECT_ID                Required: GCP project holding the dataset")
	fmt.Println("  DATASET_ID                Required: default BigQuery dataset")
	fmt.Println("  DEBUG                     Optional: enable debug logging")
}
