package scribe

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func TestJoinTranscript(t *testing.T) {
	tests := []struct {
		acc, text, want string
	}{
		{"", "", ""},
		{"", "hello", "hello"},
		{"hello", "", "hello"},
		{"hello", "world", "hello world"},
		{"hello world", "again", "hello world again"},
	}

	for _, tt := range tests {
		if got := joinTranscript(tt.acc, tt.text); got != tt.want {
			t.Errorf("joinTranscript(%q, %q) = %q, want %q", tt.acc, tt.text, got, tt.want)
		}
	}
}

func TestJoinTranscriptNoSpaceArtifacts(t *testing.T) {
	// Empty commits interleaved with real ones must not leave stray spaces.
	acc := ""
	for _, text := range []string{"", "one", "", "two", ""} {
		acc = joinTranscript(acc, text)
	}
	if acc != "one two" {
		t.Fatalf("expected %q, got %q", "one two", acc)
	}
}

// fakeService is a scripted scribe WebSocket endpoint.
type fakeService struct {
	t      *testing.T
	srv    *httptest.Server
	mu     sync.Mutex
	conn   *websocket.Conn
	query  map[string]string
	inbox  chan []byte
	ready  chan struct{}
}

func newFakeService(t *testing.T) *fakeService {
	f := &fakeService{
		t:     t,
		inbox: make(chan []byte, 16),
		ready: make(chan struct{}),
	}
	upgrader := websocket.Upgrader{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		f.mu.Lock()
		f.conn = conn
		f.query = map[string]string{}
		for k, v := range r.URL.Query() {
			f.query[k] = v[0]
		}
		f.mu.Unlock()
		close(f.ready)

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			f.inbox <- data
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeService) url() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeService) send(v interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.conn.WriteJSON(v); err != nil {
		f.t.Errorf("fake service write failed: %v", err)
	}
}

func (f *fakeService) sendRaw(data string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.conn.WriteMessage(websocket.TextMessage, []byte(data)); err != nil {
		f.t.Errorf("fake service write failed: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestSession(t *testing.T, f *fakeService, cfg Config) *Session {
	cfg.URL = f.url()
	if cfg.ModelID == "" {
		cfg.ModelID = "scribe_v1"
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	cfg.Logger = zerolog.Nop()
	s := NewSession(cfg)
	t.Cleanup(s.Disconnect)
	return s
}

func TestConnectScenario(t *testing.T) {
	f := newFakeService(t)

	var mu sync.Mutex
	type received struct {
		text  string
		final bool
	}
	var calls []received
	s := newTestSession(t, f, Config{
		OnTranscript: func(text string, final bool) {
			mu.Lock()
			calls = append(calls, received{text, final})
			mu.Unlock()
		},
	})

	if err := s.Connect("abc"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	<-f.ready

	// Socket open alone is not enough to be connected.
	if s.IsConnected() {
		t.Error("session should not be connected before session_started")
	}
	if !s.IsConnecting() {
		t.Error("session should be connecting after dial")
	}

	f.send(map[string]string{"message_type": "session_started", "session_id": "s1"})
	waitFor(t, "session start", s.IsConnected)
	if s.IsConnecting() {
		t.Error("connecting flag should drop once connected")
	}

	f.send(map[string]string{"message_type": "partial_transcript", "text": "hel"})
	waitFor(t, "interim", func() bool { return s.InterimTranscript() == "hel" })
	if s.Transcript() != "" {
		t.Errorf("partial must not touch transcript, got %q", s.Transcript())
	}

	// The next partial overwrites, never appends.
	f.send(map[string]string{"message_type": "partial_transcript", "text": "hell"})
	waitFor(t, "interim overwrite", func() bool { return s.InterimTranscript() == "hell" })

	f.send(map[string]string{"message_type": "committed_transcript", "text": "hello"})
	waitFor(t, "commit", func() bool { return s.Transcript() == "hello" })
	if s.InterimTranscript() != "" {
		t.Errorf("commit must clear interim, got %q", s.InterimTranscript())
	}

	f.send(map[string]string{"message_type": "committed_transcript_with_timestamps", "text": "world"})
	waitFor(t, "second commit", func() bool { return s.Transcript() == "hello world" })

	mu.Lock()
	defer mu.Unlock()
	want := []received{{"hel", false}, {"hell", false}, {"hello", true}, {"world", true}}
	if len(calls) != len(want) {
		t.Fatalf("expected %d callbacks, got %d: %v", len(want), len(calls), calls)
	}
	for i, w := range want {
		if calls[i] != w {
			t.Errorf("callback %d = %v, want %v", i, calls[i], w)
		}
	}
}

func TestConnectQueryParameters(t *testing.T) {
	f := newFakeService(t)
	s := newTestSession(t, f, Config{ModelID: "scribe_v1", LanguageCode: "en"})

	if err := s.Connect("tok-123"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	<-f.ready

	f.mu.Lock()
	defer f.mu.Unlock()
	for key, want := range map[string]string{
		"model_id":        "scribe_v1",
		"token":           "tok-123",
		"language_code":   "en",
		"audio_format":    "pcm_16000_16",
		"commit_strategy": "vad",
	} {
		if got := f.query[key]; got != want {
			t.Errorf("query %s = %q, want %q", key, got, want)
		}
	}
}

func TestSendAudioChunk(t *testing.T) {
	f := newFakeService(t)
	s := newTestSession(t, f, Config{})

	if err := s.Connect("abc"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	<-f.ready
	f.send(map[string]string{"message_type": "session_started", "session_id": "s1"})
	waitFor(t, "session start", s.IsConnected)

	payload := []byte{0x01, 0x02, 0x03, 0x04}
	s.SendAudioChunk(payload)

	select {
	case data := <-f.inbox:
		var msg inputAudioChunk
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("failed to parse chunk message: %v", err)
		}
		if msg.MessageType != "input_audio_chunk" {
			t.Errorf("message_type = %q", msg.MessageType)
		}
		if msg.Commit {
			t.Error("chunk must be non-committing")
		}
		if msg.SampleRate != 16000 {
			t.Errorf("sample_rate = %d, want 16000", msg.SampleRate)
		}
		decoded, err := base64.StdEncoding.DecodeString(msg.AudioBase64)
		if err != nil {
			t.Fatalf("payload is not valid base64: %v", err)
		}
		if string(decoded) != string(payload) {
			t.Errorf("payload round-trip mismatch: %v", decoded)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chunk message")
	}
}

func TestSendAudioChunkWhileDisconnected(t *testing.T) {
	s := NewSession(Config{URL: "ws://127.0.0.1:1", Logger: zerolog.Nop()})

	// Must not panic and must not alter any session state.
	s.SendAudioChunk([]byte{1, 2, 3})

	if s.IsConnected() || s.IsConnecting() {
		t.Error("dropped chunk must not change connection state")
	}
	if s.Transcript() != "" || s.InterimTranscript() != "" {
		t.Error("dropped chunk must not change transcript state")
	}
	if s.Err() != nil {
		t.Errorf("dropped chunk must not record an error, got %v", s.Err())
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	f := newFakeService(t)
	s := newTestSession(t, f, Config{})

	if err := s.Connect("abc"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	<-f.ready
	f.send(map[string]string{"message_type": "session_started", "session_id": "s1"})
	waitFor(t, "session start", s.IsConnected)

	s.Disconnect()
	if s.IsConnected() || s.IsConnecting() {
		t.Error("disconnect must drop connection flags")
	}

	// Second disconnect must be a no-op with the same end state.
	s.Disconnect()
	if s.IsConnected() || s.IsConnecting() {
		t.Error("repeated disconnect must keep flags down")
	}
}

func (s *Session) keepAliveRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keepAliveStop != nil
}

func TestKeepAliveOnlyWhileConnected(t *testing.T) {
	f := newFakeService(t)
	s := newTestSession(t, f, Config{KeepAliveInterval: 25 * time.Millisecond})

	if err := s.Connect("abc"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	<-f.ready

	// Socket open but not yet connected: the timer must not exist and
	// nothing may be sent.
	if s.keepAliveRunning() {
		t.Error("keep-alive must not run before session_started")
	}
	select {
	case data := <-f.inbox:
		t.Fatalf("unexpected message before session start: %s", data)
	case <-time.After(100 * time.Millisecond):
	}

	f.send(map[string]string{"message_type": "session_started", "session_id": "s1"})
	waitFor(t, "session start", s.IsConnected)
	if !s.keepAliveRunning() {
		t.Error("keep-alive timer must exist while connected")
	}

	// The keep-alive frame is a zero-payload, non-committing chunk.
	select {
	case data := <-f.inbox:
		var msg inputAudioChunk
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("failed to parse keep-alive message: %v", err)
		}
		if msg.MessageType != "input_audio_chunk" {
			t.Errorf("keep-alive message_type = %q", msg.MessageType)
		}
		if msg.AudioBase64 != "" {
			t.Errorf("keep-alive payload must be empty, got %q", msg.AudioBase64)
		}
		if msg.Commit {
			t.Error("keep-alive must be non-committing")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for keep-alive message")
	}
}

func TestKeepAliveCancelledOnDisconnect(t *testing.T) {
	f := newFakeService(t)
	s := newTestSession(t, f, Config{KeepAliveInterval: 25 * time.Millisecond})

	if err := s.Connect("abc"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	<-f.ready
	f.send(map[string]string{"message_type": "session_started", "session_id": "s1"})
	waitFor(t, "keep-alive start", s.keepAliveRunning)

	s.Disconnect()
	if s.keepAliveRunning() {
		t.Error("disconnect must cancel the keep-alive timer")
	}

	// Drain anything in flight, then verify silence.
	for {
		select {
		case <-f.inbox:
			continue
		case <-time.After(150 * time.Millisecond):
		}
		break
	}
	select {
	case data := <-f.inbox:
		t.Fatalf("keep-alive sent after disconnect: %s", data)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestKeepAliveCancelledOnSocketClose(t *testing.T) {
	f := newFakeService(t)
	s := newTestSession(t, f, Config{KeepAliveInterval: 25 * time.Millisecond})

	if err := s.Connect("abc"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	<-f.ready
	f.send(map[string]string{"message_type": "session_started", "session_id": "s1"})
	waitFor(t, "keep-alive start", s.keepAliveRunning)

	f.mu.Lock()
	f.conn.Close()
	f.mu.Unlock()

	waitFor(t, "flags dropped", func() bool { return !s.IsConnected() && !s.IsConnecting() })
	if s.keepAliveRunning() {
		t.Error("socket close must cancel the keep-alive timer")
	}
}

func TestServiceErrorDoesNotDisconnect(t *testing.T) {
	f := newFakeService(t)

	var mu sync.Mutex
	var errs []error
	s := newTestSession(t, f, Config{
		OnError: func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		},
	})

	if err := s.Connect("abc"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	<-f.ready
	f.send(map[string]string{"message_type": "session_started", "session_id": "s1"})
	waitFor(t, "session start", s.IsConnected)

	f.send(map[string]string{"message_type": "internal_error", "message": "boom"})
	waitFor(t, "error surfaced", func() bool { return s.Err() != nil })

	// Deliberate leniency: an error event leaves the session connected.
	if !s.IsConnected() {
		t.Error("service-reported error must not force a disconnect")
	}

	// The session keeps reconciling events afterwards.
	f.send(map[string]string{"message_type": "committed_transcript", "text": "still here"})
	waitFor(t, "commit after error", func() bool { return s.Transcript() == "still here" })

	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 1 {
		t.Fatalf("expected 1 error callback, got %d", len(errs))
	}
}

func TestUnknownAndMalformedEventsIgnored(t *testing.T) {
	f := newFakeService(t)
	s := newTestSession(t, f, Config{})

	if err := s.Connect("abc"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	<-f.ready
	f.send(map[string]string{"message_type": "session_started", "session_id": "s1"})
	waitFor(t, "session start", s.IsConnected)

	f.sendRaw("this is not json{{")
	f.send(map[string]string{"message_type": "some_future_thing", "text": "ignored"})
	f.send(map[string]string{"message_type": "committed_transcript", "text": "ok"})

	waitFor(t, "commit after noise", func() bool { return s.Transcript() == "ok" })
	if !s.IsConnected() {
		t.Error("unknown events must not drop the session")
	}
	if s.Err() != nil {
		t.Errorf("unknown events must not record errors, got %v", s.Err())
	}
}

func TestConnectWhileConnectedIsNoop(t *testing.T) {
	f := newFakeService(t)
	s := newTestSession(t, f, Config{})

	if err := s.Connect("abc"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	<-f.ready
	f.send(map[string]string{"message_type": "session_started", "session_id": "s1"})
	waitFor(t, "session start", s.IsConnected)

	f.send(map[string]string{"message_type": "committed_transcript", "text": "kept"})
	waitFor(t, "commit", func() bool { return s.Transcript() == "kept" })

	if err := s.Connect("other"); err != nil {
		t.Fatalf("second Connect failed: %v", err)
	}
	if s.Transcript() != "kept" {
		t.Errorf("no-op reconnect must not clear transcript, got %q", s.Transcript())
	}
}

func TestSocketCloseDropsFlags(t *testing.T) {
	f := newFakeService(t)
	s := newTestSession(t, f, Config{})

	if err := s.Connect("abc"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	<-f.ready
	f.send(map[string]string{"message_type": "session_started", "session_id": "s1"})
	waitFor(t, "session start", s.IsConnected)

	f.mu.Lock()
	f.conn.Close()
	f.mu.Unlock()

	waitFor(t, "flags dropped", func() bool { return !s.IsConnected() && !s.IsConnecting() })
}
