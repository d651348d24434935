package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"taskchat/internal/client"
)

const (
	exitOk = iota
	exitConfig
	exitRuntime
)

var (
	serverUrl   string
	sessionFile string
	email       string
	password    string
	roomId      int
)

func main() {
	flag.StringVar(&serverUrl, "server", "http://localhost:8080", "server base URL")
	flag.StringVar(&sessionFile, "session-file", defaultSessionPath(), "path to the session state file")
	flag.StringVar(&email, "email", "", "login email")
	flag.StringVar(&password, "password", "", "login password")
	flag.IntVar(&roomId, "room", 0, "room id to join")
	flag.Parse()

	code, err := run()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(code)
}

func defaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskchat-session.json"
	}
	return filepath.Join(home, ".taskchat", "session.json")
}

func run() (int, error) {
	logger := log.New(os.Stderr, "[taskchat-client] ", log.LstdFlags)

	if roomId == 0 {
		return exitConfig, fmt.Errorf("a room id is required")
	}

	store, err := client.NewSessionStore(sessionFile)
	if err != nil {
		return exitConfig, fmt.Errorf("session store: %w", err)
	}

	apiClient := client.NewAPIClient(serverUrl, store, logger)

	if email != "" {
		if _, err := apiClient.Login(email, password); err != nil {
			return exitConfig, fmt.Errorf("login: %w", err)
		}
	}

	session := store.Current()
	if !session.IsAuthenticated {
		return exitConfig, fmt.Errorf("not logged in; pass -email and -password")
	}
	fmt.Printf("logged in as %s\n", session.User.Username)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// session upkeep: refresh proactively, bail out when the session dies
	monitor := client.NewMonitor(store, apiClient, logger,
		func() string { return fmt.Sprintf("/rooms/%d", roomId) },
		func(string) {
			fmt.Fprintln(os.Stderr, "session expired, please log in again")
			cancel()
		},
	)
	go monitor.Run()
	defer monitor.Stop()

	var mu sync.Mutex
	printed := 0
	var chatStore *client.ChatStore
	chatStore = client.NewChatStore(func() {
		mu.Lock()
		defer mu.Unlock()

		msgs := chatStore.Messages(roomId)
		for ; printed < len(msgs); printed++ {
			m := msgs[printed]
			marker := ""
			if m.IsOptimistic {
				marker = " (sending)"
			}
			fmt.Printf("[%s] %s%s\n", m.Username, m.Content, marker)
		}
	})
	chatStore.SetCurrentRoom(roomId)

	wsUrl := "ws" + strings.TrimPrefix(serverUrl, "http") + "/ws"
	socket, err := client.DialSocket(wsUrl, store.Current(), chatStore, logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("connect: %w", err)
	}
	defer socket.Close()

	if err := socket.JoinRoom(roomId); err != nil {
		return exitRuntime, fmt.Errorf("join room: %w", err)
	}

	// backfill recent history through the HTTP API
	history, err := apiClient.Messages(roomId, 0, 50)
	if err != nil {
		logger.Println("load history:", err)
	}
	for i := len(history) - 1; i >= 0; i-- {
		chatStore.AddMessage(history[i])
	}

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- socket.Listen()
	}()

	go readInput(socket)

	select {
	case <-ctx.Done():
		return exitOk, nil
	case err := <-listenErr:
		if err != nil {
			return exitRuntime, err
		}
		return exitOk, nil
	}
}

func readInput(socket *client.SocketClient) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			socket.Close()
			return
		}

		if err := socket.SendMessage(roomId, line); err != nil {
			fmt.Fprintln(os.Stderr, "send:", err)
		}
	}
}
