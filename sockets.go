package main

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"hearme/internal/audio"
	"hearme/internal/domain"
	"hearme/internal/usecase"
)

// command is a JSON message sent by a browser client.
type command struct {
	Type     string `json:"type"`
	Language string `json:"language,omitempty"`
	Text     string `json:"text,omitempty"`
	PostID   string `json:"postId,omitempty"`
}

// socketWriter serializes writes to one websocket connection; sinks are
// called from several goroutines.
type socketWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
	log  zerolog.Logger
}

func (w *socketWriter) send(v any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.WriteJSON(v); err != nil {
		w.log.Debug().Err(err).Msg("websocket write failed")
	}
}

func (w *socketWriter) sendError(code domain.ErrorCode, detail string) {
	w.send(map[string]string{
		"type":    "error",
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

// captionSink pushes caption session events to the connection.
type captionSink struct{ out *socketWriter }

func (s captionSink) CaptionStateChanged(state domain.CaptionState, reason domain.CaptionStateReason) {
	s.out.send(map[string]string{
		"type":    "state",
		"state":   string(state),
		"reason":  string(reason),
		"message": captionReasonMessage(reason),
	})
}

func (s captionSink) InterimCaption(text string) {
	s.out.send(map[string]string{"type": "interim", "text": text})
}

func (s captionSink) CaptionChanged(text string) {
	s.out.send(map[string]string{"type": "caption", "text": text})
}

func (s captionSink) TranslationChanged(text string) {
	s.out.send(map[string]string{"type": "translation", "text": text})
}

func (s captionSink) CaptionError(code domain.ErrorCode, detail string) {
	s.out.sendError(code, detail)
}

type feedSink struct{ out *socketWriter }

func (s feedSink) FeedChanged(posts []domain.Post) {
	s.out.send(map[string]any{"type": "feed", "posts": posts})
}

func (s feedSink) FeedError(code domain.ErrorCode, detail string) {
	s.out.sendError(code, detail)
}

func (a *App) newWriter(conn *websocket.Conn, channel string) *socketWriter {
	identity := identityValue(conn.Locals(localIdentity))
	return &socketWriter{
		conn: conn,
		log:  a.log.With().Str("socket", channel).Str("uid", identity.UserID).Logger(),
	}
}

func parseCommand(payload []byte) (command, error) {
	var cmd command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return command{}, domain.NewValidationError("command", "invalid command")
	}
	return cmd, nil
}

// captionSocket runs one live caption session per connection. Binary frames
// carry 16-bit PCM; text frames carry commands.
func (a *App) captionSocket(conn *websocket.Conn) {
	identity := identityValue(conn.Locals(localIdentity))
	out := a.newWriter(conn, "captions")
	stream := audio.NewStreamCapture()
	controller := a.services.NewCaptionController(identity, captionSink{out: out}, stream)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		controller.Close()
		_ = stream.Close()
	}()

	out.send(map[string]any{"type": "status", "status": controller.Status()})

	for {
		kind, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if kind == websocket.BinaryMessage {
			if _, err := stream.Write(payload); errors.Is(err, audio.ErrBacklogFull) {
				out.log.Warn().Msg("caption audio backlog full; dropping frame")
			}
			continue
		}

		cmd, err := parseCommand(payload)
		if err == nil {
			err = a.runCaptionCommand(ctx, controller, out, cmd)
		}
		if err != nil {
			out.sendError(errorCode(err, domain.ErrorCodeRecognition), errorDetail(err))
		}
	}
}

func (a *App) runCaptionCommand(ctx context.Context, controller *usecase.CaptionController, out *socketWriter, cmd command) error {
	switch cmd.Type {
	case "start":
		return controller.Start(ctx, cmd.Language)
	case "stop":
		result, err := controller.Stop(ctx)
		if err != nil {
			return err
		}
		out.send(map[string]any{"type": "result", "result": result})
	case "clear":
		controller.Clear()
	case "target":
		return controller.SetTargetLanguage(cmd.Language)
	case "source":
		return controller.SetSourceLanguage(cmd.Language)
	case "status":
		out.send(map[string]any{"type": "status", "status": controller.Status()})
	default:
		return domain.NewValidationError("type", "unknown command "+cmd.Type)
	}
	return nil
}

// feedSocket mirrors the community feed to the connection and applies the
// caller's posts and likes.
func (a *App) feedSocket(conn *websocket.Conn) {
	identity := identityValue(conn.Locals(localIdentity))
	out := a.newWriter(conn, "feed")
	feed := a.services.NewFeed(identity, feedSink{out: out})

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		_ = feed.Close()
	}()

	if err := feed.Subscribe(ctx); err != nil {
		out.sendError(domain.ErrorCodeFeedLoad, errorDetail(err))
		return
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		cmd, err := parseCommand(payload)
		if err != nil {
			out.sendError(domain.ErrorCodeValidation, errorDetail(err))
			continue
		}

		switch cmd.Type {
		case "post":
			if _, err := feed.CreatePost(ctx, cmd.Text); err != nil {
				out.sendError(errorCode(err, domain.ErrorCodePost), errorDetail(err))
			}
		case "like":
			post, ok := feed.Find(cmd.PostID)
			if !ok {
				continue
			}
			if err := feed.Like(ctx, post); err != nil {
				out.sendError(errorCode(err, domain.ErrorCodeLike), errorDetail(err))
			}
		default:
			out.sendError(domain.ErrorCodeValidation, "unknown command "+cmd.Type)
		}
	}
}

// recorderSocket records one clip at a time from the connection's PCM frames.
func (a *App) recorderSocket(conn *websocket.Conn) {
	identity := identityValue(conn.Locals(localIdentity))
	out := a.newWriter(conn, "recorder")
	stream := audio.NewStreamCapture()
	recorder := a.services.NewRecorder(identity, stream)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		recorder.Abort()
		_ = stream.Close()
	}()

	for {
		kind, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if kind == websocket.BinaryMessage {
			if _, err := stream.Write(payload); errors.Is(err, audio.ErrBacklogFull) {
				out.log.Warn().Msg("recorder audio backlog full; dropping frame")
			}
			continue
		}

		cmd, err := parseCommand(payload)
		if err == nil {
			switch cmd.Type {
			case "start":
				if err = recorder.Start(ctx); err == nil {
					out.send(map[string]any{"type": "recording", "active": true})
				}
			case "stop":
				var rec domain.Recording
				if rec, err = recorder.Stop(ctx); err == nil {
					out.send(map[string]any{"type": "recording", "active": false, "recording": rec})
				}
			default:
				err = domain.NewValidationError("type", "unknown command "+cmd.Type)
			}
		}
		if err != nil {
			out.sendError(errorCode(err, domain.ErrorCodeAudioStream), errorDetail(err))
		}
	}
}

// errorDetail prefers the user-facing message of validation errors.
func errorDetail(err error) string {
	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		return validation.Message
	}
	return err.Error()
}

func errorCode(err error, fallback domain.ErrorCode) domain.ErrorCode {
	if errors.Is(err, domain.ErrValidation) {
		return domain.ErrorCodeValidation
	}
	return fallback
}

func captionReasonMessage(reason domain.CaptionStateReason) string {
	switch reason {
	case domain.CaptionReasonReady:
		return "Ready"
	case domain.CaptionReasonListeningStarted:
		return "Listening..."
	case domain.CaptionReasonListeningRestarted:
		return "Listening restarted; previous captions cleared"
	case domain.CaptionReasonTranscriptSaved:
		return "Transcript saved"
	case domain.CaptionReasonTranscriptSaveFailed:
		return "Transcript could not be saved"
	case domain.CaptionReasonNoTranscript:
		return "No speech captured"
	case domain.CaptionReasonLanguageChanged:
		return "Language changed"
	case domain.CaptionReasonRulesFailed:
		return "Rules processing failed"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeAudioStop:
		return "Audio stop issue"
	case domain.ErrorCodeAudioStream:
		return "Audio streaming issue"
	case domain.ErrorCodeRecognition:
		return "Speech recognition error"
	case domain.ErrorCodeRules:
		return "Rules processing failed"
	case domain.ErrorCodeStore:
		return "Could not save transcript"
	case domain.ErrorCodeFeedLoad:
		return "Failed to load posts"
	case domain.ErrorCodePost:
		return "Failed to post"
	case domain.ErrorCodeLike:
		return "Failed to like post"
	case domain.ErrorCodeValidation:
		if detail != "" {
			return detail
		}
		return "Invalid input"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
