package ws

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/scribe/internal/audio"
	"github.com/obiente/translate/scribe/internal/session"
)

const readTimeout = 60 * time.Second

// Server upgrades transcription clients and maps their messages onto the
// session registry. Binary messages carry PCM16 frames; text messages carry
// JSON control messages.
type Server struct {
	registry     *session.Registry
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	sampleRate   int
}

// NewServer builds the handler. sampleRate is the rate recognition streams
// are configured for; WAV chunks are resampled to it.
func NewServer(registry *session.Registry, writeTimeout time.Duration, sampleRate int) *Server {
	return &Server{
		registry: registry,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024 * 16,
			WriteBufferSize: 1024 * 16,
		},
		writeTimeout: writeTimeout,
		sampleRate:   sampleRate,
	}
}

type message struct {
	Type     string `json:"type"`
	Data     string `json:"data"`
	MimeType string `json:"mime_type"`
	TS       any    `json:"ts"`
}

func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	c := &client{conn: conn, writeTimeout: s.writeTimeout, logger: log.With().Str("conn_id", id).Logger()}
	if _, err := s.registry.Connect(id, c); err != nil {
		c.logger.Warn().Err(err).Msg("connection rejected")
		_ = c.write(map[string]any{"type": "error", "detail": err.Error()})
		return
	}
	defer s.registry.Disconnect(id)
	c.logger.Info().Str("remote", r.RemoteAddr).Msg("client connected")

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(readTimeout)); return nil })

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info().Msg("client disconnected")
			} else {
				c.logger.Warn().Err(err).Msg("ws read error")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		switch mt {
		case websocket.BinaryMessage:
			s.feed(id, c, data)
		case websocket.TextMessage:
			var msg message
			if err := json.Unmarshal(data, &msg); err != nil {
				_ = c.write(map[string]any{"type": "error", "detail": "invalid json"})
				continue
			}
			s.control(id, c, msg)
		}
	}
}

func (s *Server) control(id string, c *client, msg message) {
	switch msg.Type {
	case "ping":
		_ = c.write(map[string]any{"type": "pong", "ts": msg.TS})
	case "start":
		if err := s.registry.Start(id); err != nil {
			c.logger.Warn().Err(err).Msg("start rejected")
			_ = c.write(map[string]any{"type": "error", "detail": err.Error()})
			return
		}
		_ = c.write(map[string]any{"type": "started"})
	case "stop":
		s.registry.Stop(id)
		_ = c.write(map[string]any{"type": "stopped"})
	case "chunk":
		if msg.Data == "" {
			return
		}
		raw, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil {
			_ = c.write(map[string]any{"type": "error", "detail": "invalid base64 audio"})
			return
		}
		pcm, err := audio.DecodeChunk(raw, msg.MimeType, s.sampleRate)
		if err != nil {
			c.logger.Warn().Err(err).Str("mime_type", msg.MimeType).Msg("audio decode failed")
			_ = c.write(map[string]any{"type": "error", "detail": "decode audio failed"})
			return
		}
		s.feed(id, c, pcm)
	default:
		_ = c.write(map[string]any{"type": "error", "detail": "unknown message type"})
	}
}

func (s *Server) feed(id string, c *client, frame []byte) {
	if len(frame) == 0 {
		return
	}
	err := s.registry.Feed(id, frame)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrNotStreaming), errors.Is(err, session.ErrNoSession):
		c.logger.Debug().Err(err).Int("bytes", len(frame)).Msg("frame dropped")
	default:
		c.logger.Warn().Err(err).Msg("feed failed")
	}
}

// client is the session.Emitter for one websocket. Writes come from both the
// read loop and the session worker, so they are serialized.
type client struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	logger       zerolog.Logger

	mu sync.Mutex
}

func (c *client) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteJSON(v)
}

func (c *client) TranscriptUpdate(text string, isFinal bool) error {
	return c.write(map[string]any{"type": "transcript_update", "text": text, "isFinal": isFinal})
}

func (c *client) TranscriptError(message string) error {
	return c.write(map[string]any{"type": "transcript_error", "message": message})
}

func (c *client) ReportSaved(name string) error {
	return c.write(map[string]any{"type": "transcript_saved", "report": name})
}
