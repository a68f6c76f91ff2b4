package handler

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/interview-prep-api/internal/middleware"
	"github.com/noah-isme/interview-prep-api/internal/service"
)

const streamWriteTimeout = 10 * time.Second

// InterviewStreamHandler pushes interview lifecycle events to the owning user over a websocket.
type InterviewStreamHandler struct {
	stream service.InterviewEventStream
	logger zerolog.Logger
}

// NewInterviewStreamHandler creates a stream handler.
func NewInterviewStreamHandler(stream service.InterviewEventStream, logger zerolog.Logger) *InterviewStreamHandler {
	return &InterviewStreamHandler{
		stream: stream,
		logger: logger.With().Str("component", "interview_stream_handler").Logger(),
	}
}

// Register binds the websocket route. It must be registered before the /:id routes.
func (h *InterviewStreamHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("request_ctx", requestContext(c))
			c.Locals("correlation_id", middleware.GetCorrelationID(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws", websocket.New(h.handleConnection))
}

func (h *InterviewStreamHandler) handleConnection(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(uint)
	if userID == 0 {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "user id missing"))
		_ = conn.Close()
		return
	}

	interviewID := strings.TrimSpace(conn.Query("interview_id"))
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	events, unsubscribe := h.stream.Subscribe(userID)
	defer unsubscribe()

	correlationID, _ := conn.Locals("correlation_id").(string)
	logger := h.logger.With().
		Uint("user_id", userID).
		Str("interview_id", interviewID).
		Str("correlation_id", correlationID).
		Logger()
	logger.Info().Msg("interview stream connected")
	defer logger.Info().Msg("interview stream disconnected")

	// Clients never send data; reading only detects the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if interviewID != "" && event.InterviewID != interviewID {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				logger.Debug().Err(err).Msg("interview stream write failed")
				return
			}
		}
	}
}
