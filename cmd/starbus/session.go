package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/pterm/pterm"

	"github.com/1ureka/starbus/internal/chat"
	"github.com/1ureka/starbus/internal/config"
	"github.com/1ureka/starbus/internal/hub"
	"github.com/1ureka/starbus/internal/signaling"
	"github.com/1ureka/starbus/internal/transport"
	"github.com/1ureka/starbus/internal/util"
)

const replayLines = 20

// ---------------------------------------------------------------------------
// Run modes
// ---------------------------------------------------------------------------

// runHost serves players until Ctrl+C.
func runHost(ctx context.Context, cfg config.Config) {
	if cfg.ID == "" {
		cfg.ID = util.NewDeviceID()
	}
	if cfg.PIN == "" {
		cfg.PIN = signaling.GeneratePIN(4)
	}

	h := newHub(ctx, cfg)
	defer h.Close()

	room, closeRoom := openRoom(h, cfg)
	defer closeRoom()

	srv := signaling.NewServer(signaling.ServerConfig{
		Listen:      cfg.Listen,
		PIN:         cfg.PIN,
		HostID:      cfg.ID,
		HostName:    cfg.Name,
		STUNServers: transport.DefaultSTUNServers,
		MaxConns:    cfg.MaxConns,
	}, func(stream io.ReadWriteCloser, id, name string) error {
		return h.OpenConnection(stream, id, name, false)
	})

	addr, err := srv.Start(ctx)
	if err != nil {
		util.LogError("failed to start signaling server: %v", err)
		os.Exit(1)
	}
	defer srv.Close()

	pterm.DefaultBox.WithTitle("Starbus host").Println(
		pterm.Sprintf("Name : %s\nID   : %s\nPort : %d\nPIN  : %s", cfg.Name, cfg.ID, portOf(addr.String()), cfg.PIN),
	)
	pterm.Println()
	util.LogInfo("waiting for players (share the port and PIN)")

	util.StartStatsReporter(ctx)
	chatLoop(ctx, h, room)
}

// runPlayer joins a host and chats until Ctrl+C or the host goes away.
func runPlayer(ctx context.Context, cfg config.Config) {
	if cfg.ID == "" {
		cfg.ID = util.NewDeviceID()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	util.LogInfo("connecting to host...")
	sess, err := signaling.Dial(ctx, signaling.DialConfig{
		URL:         cfg.URL,
		PIN:         cfg.PIN,
		ID:          cfg.ID,
		Name:        cfg.Name,
		Transport:   cfg.Transport,
		STUNServers: transport.DefaultSTUNServers,
	})
	if err != nil {
		util.LogError("failed to join session: %v", err)
		os.Exit(1)
	}

	h := newHub(ctx, cfg)
	defer h.Close()

	// Losing the host ends the session.
	h.RegisterListener(func(e hub.Event) {
		if e.Type == hub.EventDisconnected && e.Peer == hub.HostLabel {
			cancel()
		}
	})

	room, closeRoom := openRoom(h, cfg)
	defer closeRoom()

	if err := h.OpenConnection(sess.Stream, sess.HostID, sess.HostName, true); err != nil {
		util.LogError("failed to attach host link: %v", err)
		os.Exit(1)
	}

	util.LogSuccess("joined %q over %s", sess.HostName, cfg.Transport)
	util.StartStatsReporter(ctx)
	chatLoop(ctx, h, room)
}

// ---------------------------------------------------------------------------
// Session helpers
// ---------------------------------------------------------------------------

func newHub(ctx context.Context, cfg config.Config) *hub.Hub {
	hc := config.DefaultHubConfig()
	hc.Role = cfg.Role
	hc.SelfID = cfg.ID
	hc.SelfName = cfg.Name
	return hub.New(ctx, hc)
}

// openRoom joins the chat, replaying stored history first.
func openRoom(h *hub.Hub, cfg config.Config) (*chat.Room, func()) {
	var history *chat.History
	if cfg.HistoryPath != "" {
		hs, err := chat.OpenHistory(cfg.HistoryPath)
		if err != nil {
			util.LogWarning("chat history disabled: %v", err)
		} else {
			history = hs
		}
	}

	room := chat.NewRoom(h, cfg.Name, history, chat.Print)
	if err := room.Replay(replayLines); err != nil {
		util.LogWarning("cannot replay chat history: %v", err)
	}

	return room, func() {
		room.Close()
		if history != nil {
			_ = history.Close()
		}
	}
}

// chatLoop feeds stdin lines to the room until ctx ends or stdin closes.
func chatLoop(ctx context.Context, h *hub.Hub, room *chat.Room) {
	pterm.Info.Println(`type to chat, "/w name text" to whisper, "/peers" to list, "/quit" to leave`)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case line, ok := <-lines:
			if !ok {
				return
			}
			switch strings.TrimSpace(line) {
			case "/quit":
				return
			case "/peers":
				printPeers(h)
				continue
			}
			if err := room.Handle(line); err != nil && !errors.Is(err, chat.ErrEmpty) {
				util.LogWarning("%v", err)
			}
		}
	}
}

func printPeers(h *hub.Hub) {
	peers := h.Peers()
	if len(peers) == 0 {
		pterm.Info.Println("no live connections")
		return
	}

	data := pterm.TableData{{"ID", "Name", "Link"}}
	for _, p := range peers {
		link := "player"
		if p.HostLink {
			link = "host"
		}
		data = append(data, []string{p.ID, p.Name, link})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
