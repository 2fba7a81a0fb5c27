// Starbus: CLI entry point.
//
// One device hosts a chat session, any number of players join it. Players
// reach the host through its WebSocket signaling server and then talk over
// the WebSocket itself or over a WebRTC DataChannel. The host relays every
// broadcast and whisper between players.
//
// It can be launched interactively (no flags) or non-interactively via CLI
// flags (-role, -name, -port, -lan, -max, -url, -pin, -transport, -history).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"github.com/1ureka/starbus/internal/config"
	"github.com/1ureka/starbus/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// CLI flags.
	role := flag.String("role", "", "Role: host or player")
	name := flag.String("name", "", "Display name announced to other devices")
	id := flag.String("id", "", "Device id (MAC-like); generated when empty")
	portFlag := flag.Int("port", 0, "WebSocket signaling server port (host only)")
	lanFlag := flag.Bool("lan", false, "Listen on all network interfaces (host only, for LAN access)")
	maxFlag := flag.Int("max", 0, "Maximum concurrent WebSocket connections (host only); 0 is unlimited")
	urlFlag := flag.String("url", "", "Host WebSocket URL to connect to (player only)")
	pinFlag := flag.String("pin", "", "Session PIN; generated by the host when empty")
	transportFlag := flag.String("transport", "ws", "Player stream: ws or webrtc")
	historyFlag := flag.String("history", "", "Chat history database file; empty disables persistence")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Starbus v%s", version))
	pterm.Println()

	cfg := config.Config{
		Name:        *name,
		ID:          *id,
		PIN:         *pinFlag,
		MaxConns:    *maxFlag,
		HistoryPath: *historyFlag,
		Debug:       *debugMode,
	}

	if *role == "" {
		// No -role flag → interactive mode.
		runInteractive(ctx, cfg)
		return
	}

	r, err := config.ParseRole(*role)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	cfg.Role = r
	cfg.Name = defaultName(cfg.Name)

	switch cfg.Role {
	case config.RoleHost:
		cfg.Listen = listenAddr(*portFlag, *lanFlag)
		runHost(ctx, cfg)

	case config.RolePlayer:
		if *urlFlag == "" {
			util.LogError("missing -url for player role")
			os.Exit(1)
		}
		wsURL, err := normalizeWSURL(*urlFlag)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		kind, err := config.ParseTransport(*transportFlag)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		cfg.URL = wsURL
		cfg.Transport = kind
		runPlayer(ctx, cfg)
	}

	util.LogInfo("session closed")
}

// runInteractive asks for whatever the flags did not provide.
func runInteractive(ctx context.Context, cfg config.Config) {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Host   - Start a session others can join", "Player - Join a session"}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	if cfg.Name == "" {
		cfg.Name = askName()
	}

	if strings.HasPrefix(role, "Host") {
		cfg.Role = config.RoleHost
		cfg.Listen = ":0"
		runHost(ctx, cfg)
		return
	}

	cfg.Role = config.RolePlayer
	cfg.URL = askURL()
	if cfg.PIN == "" {
		cfg.PIN = askText("Session PIN")
	}
	kind, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{string(config.TransportWS), string(config.TransportWebRTC)}).
		WithDefaultText("Transport").
		Show()
	pterm.Println()
	cfg.Transport = config.TransportKind(kind)
	runPlayer(ctx, cfg)
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// listenAddr maps the -port / -lan flags to a listen address.
func listenAddr(port int, lan bool) string {
	switch {
	case lan:
		return fmt.Sprintf(":%d", port)
	case port > 0:
		return fmt.Sprintf("127.0.0.1:%d", port)
	default:
		return ":0"
	}
}

// normalizeWSURL validates and normalizes a raw WebSocket URL string.
func normalizeWSURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid WebSocket URL: %s", raw)
	}
	scheme := "wss"
	switch u.Scheme {
	case "ws", "wss":
		scheme = u.Scheme
	case "http":
		scheme = "ws"
	}
	out := url.URL{Scheme: scheme, Host: u.Host, Path: "/ws", RawQuery: u.RawQuery}
	return out.String(), nil
}

// defaultName falls back to the machine's hostname.
func defaultName(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "player"
}

// askName prompts for a display name, defaulting to the hostname.
func askName() string {
	raw := askText(fmt.Sprintf("Display name (empty for %q)", defaultName("")))
	return defaultName(raw)
}

// askURL prompts the user for a valid WebSocket URL until one is entered.
func askURL() string {
	for {
		raw := askText("Host WebSocket URL (e.g. ws://192.168.1.20:7275/ws)")

		wsURL, err := normalizeWSURL(raw)
		if err == nil {
			return wsURL
		}

		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}

func askText(prompt string) string {
	raw, _ := pterm.DefaultInteractiveTextInput.
		WithDefaultText(prompt).
		Show()
	pterm.Println()
	return strings.TrimSpace(raw)
}

// portOf extracts the port of a listen address for display.
func portOf(addr string) int {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return 0
	}
	port, _ := strconv.Atoi(addr[i+1:])
	return port
}
