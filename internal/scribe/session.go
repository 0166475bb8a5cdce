// Package scribe maintains a realtime transcription session against an
// ElevenLabs-style scribe WebSocket service: it streams base64 PCM16
// chunks out and reconciles partial/committed transcript events coming
// back.
package scribe

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// audioFormat is the only encoding the pipeline produces.
	audioFormat = "pcm_16000_16"
	// commitStrategy delegates segment finalization to service-side VAD.
	commitStrategy = "vad"
	// defaultKeepAliveInterval spaces the empty chunks that hold an
	// idle socket open between utterances.
	defaultKeepAliveInterval = 10 * time.Second
)

// Config configures a transcription session.
type Config struct {
	// URL is the scribe WebSocket endpoint, without query parameters.
	URL          string
	ModelID      string
	LanguageCode string
	// SampleRate is stamped on every outbound audio chunk.
	SampleRate int
	// KeepAliveInterval spaces the idle-timeout keep-alive chunks.
	// Defaults to 10 seconds.
	KeepAliveInterval time.Duration

	// OnTranscript receives every partial (final=false) and committed
	// (final=true) transcript text, in socket-receive order. Optional.
	OnTranscript func(text string, final bool)
	// OnError receives service-reported and socket-level errors. Optional.
	OnError func(err error)

	Logger zerolog.Logger
}

// Session owns one WebSocket connection and one keep-alive timer.
//
// The session is Connecting from Connect until the service's
// session_started event arrives; a raw socket open is not enough to
// consider it usable. All state transitions are serialized by mu.
type Session struct {
	cfg Config
	log zerolog.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	connected  bool
	connecting bool
	lastErr    error

	transcript string
	interim    string

	keepAliveStop chan struct{}
}

// NewSession creates a disconnected session.
func NewSession(cfg Config) *Session {
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = defaultKeepAliveInterval
	}
	return &Session{
		cfg: cfg,
		log: cfg.Logger.With().Str("component", "scribe").Logger(),
	}
}

// Connect tears down any previous socket, clears prior transcript
// state, and dials the service with the given single-use token. It is a
// no-op when already connected. The session stays in Connecting until
// session_started arrives.
func (s *Session) Connect(token string) error {
	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return nil
	}
	s.teardownLocked()

	s.transcript = ""
	s.interim = ""
	s.lastErr = nil
	s.connecting = true
	s.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(s.dialURL(token), nil)
	if err != nil {
		err = fmt.Errorf("failed to connect to scribe service: %w", err)
		s.mu.Lock()
		s.connecting = false
		s.lastErr = err
		s.mu.Unlock()
		s.emitError(err)
		return err
	}

	s.mu.Lock()
	if !s.connecting {
		// Disconnect won the race while the dial was in flight.
		s.mu.Unlock()
		conn.Close()
		return nil
	}
	s.conn = conn
	s.mu.Unlock()

	s.log.Info().Str("model", s.cfg.ModelID).Str("language", s.cfg.LanguageCode).Msg("Scribe socket open, waiting for session start")
	go s.readLoop(conn)
	return nil
}

// SetLanguage changes the language code used by subsequent Connects.
// The active session, if any, is unaffected.
func (s *Session) SetLanguage(code string) {
	s.mu.Lock()
	s.cfg.LanguageCode = code
	s.mu.Unlock()
}

// dialURL builds the connection URL carrying token, model, language,
// audio format and commit strategy as query parameters.
func (s *Session) dialURL(token string) string {
	s.mu.Lock()
	language := s.cfg.LanguageCode
	s.mu.Unlock()

	q := url.Values{}
	q.Set("model_id", s.cfg.ModelID)
	q.Set("token", token)
	q.Set("language_code", language)
	q.Set("audio_format", audioFormat)
	q.Set("commit_strategy", commitStrategy)
	return s.cfg.URL + "?" + q.Encode()
}

// Disconnect cancels keep-alive, closes the socket if open, and resets
// the connection flags. Safe to call at any time, any number of times.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.teardownLocked()
	s.mu.Unlock()
}

// teardownLocked releases the socket and keep-alive timer. Caller holds mu.
func (s *Session) teardownLocked() {
	s.stopKeepAliveLocked()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
		s.conn = nil
	}
	s.connected = false
	s.connecting = false
}

// SendAudioChunk streams one encoded PCM chunk to the service. Chunks
// sent while the socket is not open are dropped silently; audio
// produced outside an active session is discarded, not queued.
func (s *Session) SendAudioChunk(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return
	}

	msg := inputAudioChunk{
		MessageType: "input_audio_chunk",
		AudioBase64: base64.StdEncoding.EncodeToString(chunk),
		Commit:      false,
		SampleRate:  s.cfg.SampleRate,
	}
	if err := s.conn.WriteJSON(msg); err != nil {
		s.log.Warn().Err(err).Msg("Failed to send audio chunk")
	}
}

// sendKeepAlive writes a zero-length, non-committing chunk to prevent
// the service's idle timeout.
func (s *Session) sendKeepAlive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || !s.connected {
		return
	}

	msg := inputAudioChunk{
		MessageType: "input_audio_chunk",
		AudioBase64: "",
		Commit:      false,
	}
	if err := s.conn.WriteJSON(msg); err != nil {
		s.log.Warn().Err(err).Msg("Failed to send keep-alive")
	}
}

// startKeepAliveLocked spins up the keep-alive ticker. Exists iff the
// session is connected. Caller holds mu.
func (s *Session) startKeepAliveLocked() {
	if s.keepAliveStop != nil {
		return
	}
	stop := make(chan struct{})
	s.keepAliveStop = stop

	go func() {
		ticker := time.NewTicker(s.cfg.KeepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sendKeepAlive()
			case <-stop:
				return
			}
		}
	}()
}

func (s *Session) stopKeepAliveLocked() {
	if s.keepAliveStop != nil {
		close(s.keepAliveStop)
		s.keepAliveStop = nil
	}
}

// readLoop consumes inbound events until the socket dies. It runs once
// per successful dial; a socket close from any cause drops the
// connection flags and cancels keep-alive.
func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.handleSocketClose(conn, err)
			return
		}
		s.handleEvent(data)
	}
}

// handleSocketClose reconciles state after the read loop exits. Normal
// closes just drop the flags; anything else also surfaces an error.
func (s *Session) handleSocketClose(conn *websocket.Conn, err error) {
	s.mu.Lock()
	// A newer Connect may already own a different socket.
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.stopKeepAliveLocked()
	s.conn = nil
	s.connected = false
	s.connecting = false

	abnormal := !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
	if abnormal {
		s.lastErr = fmt.Errorf("scribe socket error: %w", err)
		err = s.lastErr
	}
	s.mu.Unlock()

	if abnormal {
		s.log.Error().Err(err).Msg("Scribe socket closed abnormally")
		s.emitError(err)
	} else {
		s.log.Info().Msg("Scribe socket closed")
	}
}

// handleEvent parses and dispatches one inbound message. Malformed or
// unrecognized payloads are logged and ignored; the session never dies
// on bad input.
func (s *Session) handleEvent(data []byte) {
	var ev serviceEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.log.Warn().Err(err).Msg("Ignoring malformed scribe event")
		return
	}

	switch ev.MessageType {
	case typeSessionStarted:
		s.mu.Lock()
		s.connected = true
		s.connecting = false
		s.lastErr = nil
		s.startKeepAliveLocked()
		s.mu.Unlock()
		s.log.Info().Str("session_id", ev.SessionID).Msg("Scribe session started")

	case typePartialTranscript:
		s.mu.Lock()
		s.interim = ev.Text
		s.mu.Unlock()
		s.emitTranscript(ev.Text, false)

	case typeCommittedTranscript, typeCommittedWithTimings:
		s.mu.Lock()
		s.transcript = joinTranscript(s.transcript, ev.Text)
		s.interim = ""
		s.mu.Unlock()
		s.emitTranscript(ev.Text, true)

	default:
		if strings.Contains(ev.MessageType, "error") {
			// Service-reported errors are surfaced but deliberately do
			// not force a disconnect; the stream may still recover.
			err := fmt.Errorf("scribe service error: %s", ev.errorText())
			s.mu.Lock()
			s.lastErr = err
			s.mu.Unlock()
			s.log.Error().Str("type", ev.MessageType).Msg("Scribe service reported an error")
			s.emitError(err)
			return
		}
		s.log.Debug().Str("type", ev.MessageType).Msg("Ignoring unknown scribe event")
	}
}

// joinTranscript appends a committed segment, inserting a single space
// only when both sides are non-empty.
func joinTranscript(acc, text string) string {
	switch {
	case acc == "":
		return text
	case text == "":
		return acc
	default:
		return acc + " " + text
	}
}

func (s *Session) emitTranscript(text string, final bool) {
	if s.cfg.OnTranscript != nil {
		s.cfg.OnTranscript(text, final)
	}
}

func (s *Session) emitError(err error) {
	if s.cfg.OnError != nil {
		s.cfg.OnError(err)
	}
}

// IsConnected reports whether session_started has been received.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// IsConnecting reports whether a dial is in flight or awaiting
// session_started.
func (s *Session) IsConnecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connecting
}

// Transcript returns the accumulated finalized text.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

// InterimTranscript returns the latest unstable partial text.
func (s *Session) InterimTranscript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interim
}

// Err returns the last recorded error, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
