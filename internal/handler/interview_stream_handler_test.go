package handler_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/interview-prep-api/internal/dto"
	"github.com/noah-isme/interview-prep-api/internal/handler"
)

type stubEventStream struct {
	events      []dto.InterviewEvent
	subscribed  chan uint
	unsubscribe chan struct{}
}

func (s *stubEventStream) Publish(context.Context, dto.InterviewEvent) {}

func (s *stubEventStream) Start(context.Context) {}

func (s *stubEventStream) Subscribe(userID uint) (<-chan dto.InterviewEvent, func()) {
	ch := make(chan dto.InterviewEvent, len(s.events))
	for _, event := range s.events {
		ch <- event
	}
	s.subscribed <- userID
	return ch, func() { close(s.unsubscribe) }
}

func startStreamServer(t *testing.T, stream *stubEventStream, userID uint) string {
	t.Helper()

	app := fiber.New()
	group := app.Group("/api/v1/interviews", func(c *fiber.Ctx) error {
		if userID > 0 {
			c.Locals("user_id", userID)
		}
		return c.Next()
	})
	handler.NewInterviewStreamHandler(stream, zerolog.Nop()).Register(group)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		if err := app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("fiber listener stopped: %v", err)
		}
		close(done)
	}()

	t.Cleanup(func() {
		_ = app.Shutdown()
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	})

	return "ws://" + listener.Addr().String() + "/api/v1/interviews/ws"
}

func TestInterviewStream_FiltersByInterview(t *testing.T) {
	index := 2
	stream := &stubEventStream{
		events: []dto.InterviewEvent{
			{Type: dto.EventAnswerSubmitted, InterviewID: "other", UserID: testUserID, Status: "in-progress"},
			{Type: dto.EventAnswerSubmitted, InterviewID: "iv-1", UserID: testUserID, Status: "in-progress", QuestionIndex: &index},
		},
		subscribed:  make(chan uint, 1),
		unsubscribe: make(chan struct{}),
	}
	url := startStreamServer(t, stream, testUserID)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?interview_id=iv-1", nil)
	require.NoError(t, err)

	select {
	case userID := <-stream.subscribed:
		require.Equal(t, testUserID, userID)
	case <-time.After(2 * time.Second):
		t.Fatal("stream never subscribed")
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event dto.InterviewEvent
	require.NoError(t, conn.ReadJSON(&event))
	require.Equal(t, "iv-1", event.InterviewID)
	require.Equal(t, dto.EventAnswerSubmitted, event.Type)
	require.NotNil(t, event.QuestionIndex)
	require.Equal(t, 2, *event.QuestionIndex)

	require.NoError(t, conn.Close())
	select {
	case <-stream.unsubscribe:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not released after disconnect")
	}
}

func TestInterviewStream_ClosesWithoutUser(t *testing.T) {
	stream := &stubEventStream{subscribed: make(chan uint, 1), unsubscribe: make(chan struct{})}
	url := startStreamServer(t, stream, 0)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	require.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	require.Len(t, stream.subscribed, 0)
}

func TestInterviewStream_RequiresUpgrade(t *testing.T) {
	stream := &stubEventStream{subscribed: make(chan uint, 1), unsubscribe: make(chan struct{})}
	url := startStreamServer(t, stream, testUserID)

	resp, err := http.Get(strings.Replace(url, "ws://", "http://", 1))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}
