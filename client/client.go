package main

import (
	"bufio"
	"chat-relay/domain"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerURL string `envconfig:"CHAT_SERVER_URL" default:"ws://localhost:8080"`
	Token     string `envconfig:"CHAT_TOKEN" required:"true"`
	// CHAT_PEER_ID opens a chat with that user; 0 watches the chat list instead.
	PeerID  int64 `envconfig:"CHAT_PEER_ID" default:"0"`
	Colours bool  `envconfig:"CHAT_COLOURS" default:"true"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	color.Enable = config.Colours

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	path := "/ws/chat-list"
	if config.PeerID != 0 {
		path = "/ws/" + strconv.FormatInt(config.PeerID, 10)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, config.ServerURL+path, nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to %s: %w", config.ServerURL, err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(config.Token)); err != nil {
		return exitRuntime, fmt.Errorf("could not authenticate: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	if config.PeerID != 0 {
		if err := printHistory(conn); err != nil {
			return exitRuntime, err
		}
		go readInput(conn)
	}
	color.Info.Printf(">>> Connected to %s%s (Ctrl+C to quit)\n", config.ServerURL, path)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return exitOK, nil
			}
			if closeErr, ok := err.(*websocket.CloseError); ok && closeErr.Code == websocket.ClosePolicyViolation {
				return exitRuntime, fmt.Errorf("rejected by server: check CHAT_TOKEN and CHAT_PEER_ID")
			}
			return exitRuntime, fmt.Errorf("connection lost: %w", err)
		}
		printFrame(data)
	}
}

// printHistory reads the first frame of a chat session and renders it oldest first.
func printHistory(conn *websocket.Conn) error {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("could not read history: %w", err)
	}
	var views []domain.MessageView
	if err := json.Unmarshal(data, &views); err != nil {
		printFrame(data)
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"User", "Username", "Text"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for i := len(views) - 1; i >= 0; i-- {
		v := views[i]
		table.Append([]string{strconv.FormatInt(int64(v.UserID), 10), v.Username, v.Text})
	}
	table.Render()
	return nil
}

func printFrame(data []byte) {
	var frame struct {
		Type        domain.EventType `json:"type"`
		Text        string           `json:"text"`
		Username    string           `json:"username"`
		UserID      domain.UserID    `json:"user_id"`
		RoomID      domain.RoomID    `json:"room_id"`
		LastMessage string           `json:"last_message"`
		Message     string           `json:"message"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		fmt.Println(string(data))
		return
	}
	switch frame.Type {
	case domain.ChatMessageType:
		fmt.Printf("%s %s\n", color.New(color.FgGreen, color.OpBold).Sprintf("[%s#%d]", frame.Username, frame.UserID), frame.Text)
	case domain.ChatUpdateType:
		fmt.Printf("%s %s\n", color.FgCyan.Sprintf("[room %d]", frame.RoomID), frame.LastMessage)
	case domain.ErrorType:
		color.Error.Println(frame.Message)
	default:
		fmt.Println(string(data))
	}
}

func readInput(conn *websocket.Conn) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := conn.WriteMessage(websocket.TextMessage, scanner.Bytes()); err != nil {
			return
		}
	}
}
