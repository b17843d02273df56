// Command chatclient is a terminal chat client for exercising the PetPulse
// chat stack end to end: it loads history over the REST API, subscribes on
// the realtime channel and sends with optimistic local echo.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"petpulse/internal/auth"
	"petpulse/internal/chatclient"
	"petpulse/internal/config"
)

func main() {
	userID := flag.String("user", "", "your user id")
	targetID := flag.String("to", "", "user id of the chat partner")
	flag.Parse()

	if *userID == "" || *targetID == "" {
		fmt.Fprintln(os.Stderr, "usage: chatclient -user <uid> -to <uid>")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Self-issued dev token; in production the auth provider issues it.
	token, err := auth.GenerateToken(*userID, cfg.Auth)
	if err != nil {
		log.Fatalf("failed to issue token: %v", err)
	}

	loader := chatclient.NewHTTPHistoryLoader(cfg.Client.APIBaseURL, token)
	socket := chatclient.NewSocket(cfg.Client.WebSocketURL, token)

	// Print each message once as the visible list grows; the session has
	// already filtered events to this conversation.
	var session *chatclient.Session
	var renderMu sync.Mutex
	seen := 0
	render := func() {
		renderMu.Lock()
		defer renderMu.Unlock()
		if session == nil {
			return
		}
		msgs := session.Messages()
		for ; seen < len(msgs); seen++ {
			printMessage(*userID, msgs[seen].SenderID, msgs[seen].Content)
		}
	}

	session = chatclient.OpenSession(context.Background(), *userID, *targetID, loader, socket, render)
	defer session.Close()
	render()

	fmt.Printf("-- chatting with %s, ^D to quit --\n", *targetID)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := session.Send(line); err != nil {
			log.Printf("send failed: %v", err)
		}
	}
}

func printMessage(selfID, senderID, content string) {
	who := senderID
	if senderID == selfID {
		who = "you"
	}
	fmt.Printf("[%s] %s\n", who, content)
}
