package host

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// LogBroadcaster fans shell log records and relayed engine output out to
// `logs` clients and keeps the most recent lines for late subscribers
type LogBroadcaster struct {
	clients map[chan string]bool
	history []string
	maxHist int
	mu      sync.RWMutex
}

// NewLogBroadcaster creates a broadcaster keeping historySize lines
func NewLogBroadcaster(historySize int) *LogBroadcaster {
	if historySize <= 0 {
		historySize = 1000
	}
	return &LogBroadcaster{
		clients: make(map[chan string]bool),
		history: make([]string, 0, historySize),
		maxHist: historySize,
	}
}

// Subscribe adds a client and returns up to historyLines of recent history.
// History is returned separately so a slow client never blocks a broadcast.
func (lb *LogBroadcaster) Subscribe(historyLines int) (chan string, []string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	ch := make(chan string, 100)
	lb.clients[ch] = true
	return ch, lb.tail(historyLines)
}

// Unsubscribe removes a client and closes its channel
func (lb *LogBroadcaster) Unsubscribe(ch chan string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if lb.clients[ch] {
		delete(lb.clients, ch)
		close(ch)
	}
}

// Broadcast records message in history and sends it to every client
func (lb *LogBroadcaster) Broadcast(message string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if len(lb.history) >= lb.maxHist {
		lb.history = lb.history[1:]
	}
	lb.history = append(lb.history, message)

	for ch := range lb.clients {
		select {
		case ch <- message:
		default:
			// Client is not keeping up, drop the line for it
		}
	}
}

// History returns the last n lines
func (lb *LogBroadcaster) History(n int) []string {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return lb.tail(n)
}

func (lb *LogBroadcaster) tail(n int) []string {
	if n <= 0 || len(lb.history) == 0 {
		return nil
	}
	start := max(len(lb.history)-n, 0)
	out := make([]string, len(lb.history)-start)
	copy(out, lb.history[start:])
	return out
}

// LogWriter is an io.Writer that broadcasts everything written to it
type LogWriter struct {
	broadcaster *LogBroadcaster
}

func (lw *LogWriter) Write(p []byte) (n int, err error) {
	lw.broadcaster.Broadcast(string(p))
	return len(p), nil
}

// setupLogging installs a tint handler writing to stderr and the broadcaster
func (h *Host) setupLogging() {
	level := slog.LevelInfo
	if h.cfg.Verbose > 0 {
		level = slog.LevelDebug
	}

	multiWriter := io.MultiWriter(h.stderr, &LogWriter{broadcaster: h.logBroadcast})
	handler := tint.NewHandler(multiWriter, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    !isTerminal(h.stderr),
	})

	slog.SetDefault(slog.New(handler))
}

// outputSink is where relayed engine output goes: stdout and the broadcaster
func (h *Host) outputSink() io.Writer {
	return io.MultiWriter(h.stdout, &LogWriter{broadcaster: h.logBroadcast})
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// handleLogs streams logs to the client until it disconnects or the shell stops
func (h *Host) handleLogs(conn net.Conn, historyLines int) {
	defer conn.Close()

	logChan, history := h.logBroadcast.Subscribe(historyLines)
	defer h.logBroadcast.Unsubscribe(logChan)

	if _, err := conn.Write([]byte("Connected to evalshell logs. Press Ctrl+C to exit.\n")); err != nil {
		slog.Warn("Failed to send initial message to logs client", "error", err)
		return
	}

	for _, msg := range history {
		if _, err := conn.Write([]byte(msg)); err != nil {
			return
		}
	}

	done := make(chan struct{})
	go func() {
		io.Copy(io.Discard, bufio.NewReader(conn))
		close(done)
	}()

	for {
		select {
		case msg, ok := <-logChan:
			if !ok {
				return
			}
			if _, err := conn.Write([]byte(msg)); err != nil {
				return
			}
		case <-done:
			return
		case <-h.ctx.Done():
			return
		}
	}
}
