// Package main provides a minimal CLI demo for agent conversations over
// the reliable WebSocket transport.
//
// Usage:
//
//	go run cmd/voxkit-chat/main.go
//
// Environment variables:
//
//	VOXKIT_AGENT_ID     - Required, the remote agent to talk to
//	VOXKIT_BASE_URL     - Agent service base URL (default http://localhost:8080)
//	VOXKIT_API_KEY      - Optional API key
//	VOXKIT_CONFIG       - Optional options file (YAML or JSON)
//	VOXKIT_METRICS_ADDR - Optional address to serve /metrics on
//
// Controls:
//
//	<text>   - Send a text message
//	/retry   - Retry the last failed connect
//	/history - Print the transcript
//	q        - Quit
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/voxkit-go/voxkit/pkg/core/live"
	"github.com/voxkit-go/voxkit/pkg/core/transport/wsock"
	"github.com/voxkit-go/voxkit/pkg/storage"
)

func main() {
	_ = godotenv.Load()

	agentID := os.Getenv("VOXKIT_AGENT_ID")
	if agentID == "" {
		log.Fatal("VOXKIT_AGENT_ID required")
	}
	baseURL := os.Getenv("VOXKIT_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	opts, err := live.LoadOptions(os.Getenv("VOXKIT_CONFIG"))
	if err != nil {
		log.Fatalf("load options: %v", err)
	}
	opts.AgentID = agentID
	opts.Reliable = &wsock.Dialer{
		BaseURL: baseURL,
		APIKey:  os.Getenv("VOXKIT_API_KEY"),
	}

	metrics := live.NewMetrics("voxkit")
	opts.Metrics = metrics
	if addr := os.Getenv("VOXKIT_METRICS_ADDR"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
	}

	store, err := storage.NewFileStore(filepath.Join(os.TempDir(), "voxkit-chat.json"))
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	opts.Storage = storage.NewNamespace(store, "voxkit-chat")

	session := live.NewSession(opts)
	defer session.Close()

	fmt.Println("voxkit chat - type a message, /history for the transcript, q to quit")
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	go func() {
		for ev := range session.Events() {
			switch e := ev.(type) {
			case *live.MessageEvent:
				fmt.Printf("[%s] %s\n", e.Message.Role, e.Message.Content)
			case *live.StateChangedEvent:
				fmt.Printf("-- %s\n", e.To)
			case *live.ErrorEvent:
				fmt.Printf("!! %s\n", e.Message)
			case *live.SessionEndedEvent:
				fmt.Printf("-- session %s ended (%s)\n", e.SessionID, e.Reason)
			case *live.InactivityWarningEvent:
				fmt.Printf("-- idle, disconnecting in %dms\n", e.RemainingMs)
			}
		}
	}()

	if err := session.Connect(ctx); err != nil {
		fmt.Printf("!! connect: %v\n", err)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "q":
			_ = session.Disconnect(ctx)
			return
		case line == "/retry":
			if err := session.Retry(ctx); err != nil {
				fmt.Printf("!! retry: %v\n", err)
			}
		case line == "/history":
			for _, msg := range session.Messages() {
				fmt.Printf("[%s] %s\n", msg.Role, msg.Content)
			}
		default:
			if err := session.SendText(line); err != nil {
				fmt.Printf("!! send: %v\n", err)
			}
		}
	}
}
