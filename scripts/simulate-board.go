package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/vogiaan1904/clinic-queueboard/internal/domain"
	"github.com/vogiaan1904/clinic-queueboard/internal/models"
	"github.com/vogiaan1904/clinic-queueboard/internal/transport"
)

var (
	addr         = flag.String("addr", ":8000", "Listen address for push and poll endpoints")
	department   = flag.String("department", "Derma", "Department served by the simulated queue")
	cabinets     = flag.Int("cabinets", 3, "Number of cabinets calling patients")
	callInterval = flag.Duration("call-interval", 8*time.Second, "Time between patient calls")
	arrivalRate  = flag.Float64("arrival-rate", 0.6, "Probability of a new arrival per call interval (0.0-1.0)")
	announceRate = flag.Float64("announce-rate", 0.05, "Probability of an announcement per call interval (0.0-1.0)")
	tokenSecret  = flag.String("token-secret", "", "Require a handshake token signed with this secret")
	dropRate     = flag.Float64("drop-rate", 0, "Probability of dropping a push connection per call interval")
)

var names = []string{
	"Karimova Dilnoza", "Rakhimov Aziz", "Usmonova Madina", "Tursunov Bekzod",
	"Yusupova Nilufar", "Ismoilov Jasur", "Abdullaeva Shahnoza", "Nazarov Timur",
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clinic is the simulated queue of one department for today.
type clinic struct {
	mu        sync.Mutex
	date      string
	seq       int64
	next      int
	entries   []domain.EntryPayload
	current   *domain.EntryPayload
	done      int
	clients   map[*websocket.Conn]string
	clientsMu sync.Mutex
}

func main() {
	flag.Parse()

	if *cabinets <= 0 {
		fmt.Println("Error: --cabinets must be positive")
		flag.Usage()
		os.Exit(1)
	}

	c := &clinic{
		date:    time.Now().Format("2006-01-02"),
		next:    1,
		clients: make(map[*websocket.Conn]string),
	}
	for i := 0; i < 5; i++ {
		c.arrive()
	}

	r := chi.NewRouter()
	r.Get("/ws/board/{topic}", c.serveWS)
	r.Get("/api/queue/stats", c.serveStats)
	r.Get("/api/board/state", c.serveBoardState)
	r.Get("/api/board/windows", c.serveWindows)

	srv := &http.Server{Addr: *addr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Server failed: %v\n", err)
			os.Exit(1)
		}
	}()

	fmt.Printf("✅ Simulating %s on %s\n", c.topic(), *addr)
	fmt.Printf("   push: ws://localhost%s/ws/board/%s\n", *addr, c.topic())
	fmt.Printf("   poll: http://localhost%s/api\n", *addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*callInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\n🛑 Stopping simulation...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
			c.closeAll()
			return
		case <-ticker.C:
			c.step()
		}
	}
}

func (c *clinic) topic() string {
	return *department + "+" + c.date
}

func (c *clinic) step() {
	if rand.Float64() < *arrivalRate {
		e := c.arrive()
		c.broadcast(domain.TypeQueueUpdate, domain.EventTypeQueueCreated, e)
		fmt.Printf("➕ Ticket %d joined the queue\n", *e.Number)
	}

	if prev := c.complete(); prev != nil {
		c.broadcast(domain.TypeCallCompleted, "", map[string]int{"number": prev.number})
		fmt.Printf("✔️  Ticket %d completed\n", prev.number)
	}

	if e := c.call(); e != nil {
		c.broadcast(domain.TypePatientCall, "", e)
		fmt.Printf("📣 Ticket %d called to cabinet %s\n", *e.Number, *e.CabinetOrWindow)
	}

	if rand.Float64() < *announceRate {
		text := "Please keep your ticket until the end of your visit"
		kind := string(models.AnnouncementInfo)
		c.broadcast(domain.TypeAnnouncement, "", domain.AnnouncementPayload{Text: &text, Type: kind})
		fmt.Println("📢 Announcement sent")
	}

	if *dropRate > 0 && rand.Float64() < *dropRate {
		c.dropOne()
	}
}

func (c *clinic) arrive() domain.EntryPayload {
	c.mu.Lock()
	defer c.mu.Unlock()

	number := c.next
	c.next++
	name := names[rand.Intn(len(names))]
	status := string(models.EntryStatusWaiting)
	created := time.Now().Format(time.RFC3339)
	e := domain.EntryPayload{
		Number:             &number,
		PatientDisplayName: &name,
		Status:             &status,
		Source:             "reception",
		Department:         *department,
		CreatedAt:          &created,
	}
	c.entries = append(c.entries, e)
	return e
}

type completed struct {
	number int
}

func (c *clinic) complete() *completed {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return nil
	}
	number := *c.current.Number
	c.current = nil
	c.done++
	for i, e := range c.entries {
		if *e.Number == number {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			break
		}
	}
	return &completed{number: number}
}

func (c *clinic) call() *domain.EntryPayload {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.entries {
		if *c.entries[i].Status != string(models.EntryStatusWaiting) {
			continue
		}
		status := string(models.EntryStatusCalled)
		called := time.Now().Format(time.RFC3339)
		cabinet := fmt.Sprintf("%d", 100+rand.Intn(*cabinets)+1)
		c.entries[i].Status = &status
		c.entries[i].CalledAt = &called
		c.entries[i].CabinetOrWindow = &cabinet
		e := c.entries[i]
		c.current = &e
		return &e
	}
	return nil
}

func (c *clinic) snapshot() domain.SnapshotPayload {
	c.mu.Lock()
	defer c.mu.Unlock()

	last := c.next - 1
	waiting, serving := 0, 0
	for _, e := range c.entries {
		switch *e.Status {
		case string(models.EntryStatusWaiting):
			waiting++
		case string(models.EntryStatusCalled):
			serving++
		}
	}
	done := c.done
	return domain.SnapshotPayload{LastTicket: &last, Waiting: &waiting, Serving: &serving, Done: &done}
}

func (c *clinic) initialState() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make([]domain.EntryPayload, len(c.entries))
	copy(entries, c.entries)
	return map[string]any{
		"queue_entries": entries,
		"current_call":  c.current,
		"announcements": []domain.AnnouncementPayload{},
	}
}

func (c *clinic) nextSeq() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

func (c *clinic) serveWS(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")
	if topic != c.topic() {
		http.Error(w, "unknown topic", http.StatusNotFound)
		return
	}

	clientID := "anonymous"
	if *tokenSecret != "" {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		id, err := transport.VerifyHandshakeToken(*tokenSecret, token, topic)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		clientID = id
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		fmt.Printf("Upgrade failed: %v\n", err)
		return
	}

	c.clientsMu.Lock()
	c.clients[conn] = clientID
	c.clientsMu.Unlock()
	fmt.Printf("🔌 Board %s connected\n", clientID)

	if err := c.send(conn, domain.TypeInitialState, "", c.initialState()); err != nil {
		c.drop(conn)
		return
	}

	go c.readPump(conn)
}

// readPump answers pings and notices when the board goes away.
func (c *clinic) readPump(conn *websocket.Conn) {
	defer c.drop(conn)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg domain.Message
		if json.Unmarshal(data, &msg) == nil && msg.Type == domain.TypePing {
			frame, _ := domain.EncodeMessage(domain.TypePong, "", 0, nil)
			c.clientsMu.Lock()
			_ = conn.WriteMessage(websocket.TextMessage, frame)
			c.clientsMu.Unlock()
		}
	}
}

func (c *clinic) send(conn *websocket.Conn, msgType, eventType string, data any) error {
	frame, err := domain.EncodeMessage(msgType, eventType, c.nextSeq(), data)
	if err != nil {
		return err
	}
	c.clientsMu.Lock()
	defer c.clientsMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *clinic) broadcast(msgType, eventType string, data any) {
	frame, err := domain.EncodeMessage(msgType, eventType, c.nextSeq(), data)
	if err != nil {
		fmt.Printf("Encode failed: %v\n", err)
		return
	}

	c.clientsMu.Lock()
	defer c.clientsMu.Unlock()
	for conn := range c.clients {
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			fmt.Printf("Write to %s failed: %v\n", c.clients[conn], err)
		}
	}
}

func (c *clinic) drop(conn *websocket.Conn) {
	c.clientsMu.Lock()
	id, ok := c.clients[conn]
	delete(c.clients, conn)
	c.clientsMu.Unlock()

	_ = conn.Close()
	if ok {
		fmt.Printf("👋 Board %s disconnected\n", id)
	}
}

// dropOne closes a connection abnormally to exercise the board's reconnect path.
func (c *clinic) dropOne() {
	c.clientsMu.Lock()
	var victim *websocket.Conn
	for conn := range c.clients {
		victim = conn
		break
	}
	c.clientsMu.Unlock()

	if victim != nil {
		fmt.Println("💥 Dropping a push connection")
		c.drop(victim)
	}
}

func (c *clinic) closeAll() {
	c.clientsMu.Lock()
	defer c.clientsMu.Unlock()
	for conn := range c.clients {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "simulation stopped"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
}

func (c *clinic) serveStats(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("department") != *department {
		http.Error(w, "unknown department", http.StatusNotFound)
		return
	}
	writeJSON(w, c.snapshot())
}

func (c *clinic) serveBoardState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, models.BoardState{
		ClinicName: "Simulated Clinic",
		Theme:      models.Theme{Primary: "#0b5394", Background: "#ffffff"},
		Defaults:   map[string]models.LanguageDefaults{"ru": {Sound: true}},
	})
}

func (c *clinic) serveWindows(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	windows := []models.Window{}
	if c.current != nil {
		windows = append(windows, models.Window{
			Window: *c.current.CabinetOrWindow,
			Ticket: fmt.Sprintf("%d", *c.current.Number),
			Label:  *department,
		})
	}
	c.mu.Unlock()
	writeJSON(w, windows)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
