package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legacymigrate/backend/internal/domain"
)

type fakeSource map[string]*domain.MigrationProgress

func (f fakeSource) Progress(_ context.Context, id string) (*domain.MigrationProgress, error) {
	if p, ok := f[id]; ok {
		return p.Clone(), nil
	}
	return nil, errors.New("migration not found")
}

func newTestServer(t *testing.T, hub *Hub) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/v1/migrations/:id/ws", HandleProgress(hub))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_ProgressStream(t *testing.T) {
	p := domain.NewMigrationProgress("m-1", "t-1", time.Now())
	p.Status = domain.MigrationMigrating
	hub := NewHub(fakeSource{"m-1": p}, nil, nil)
	url := newTestServer(t, hub)

	conn, _, err := websocket.DefaultDialer.Dial(url+"/api/v1/migrations/m-1/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	first := readMessage(t, conn)
	assert.Equal(t, MessageTypeProgress, first.Type)
	assert.Equal(t, domain.MigrationMigrating, first.Data.Status)
	require.Eventually(t, func() bool { return hub.Subscribers("m-1") == 1 }, time.Second, 5*time.Millisecond)

	t.Run("推送更新", func(t *testing.T) {
		update := p.Clone()
		update.CurrentProgress = 7
		hub.Publish(update)
		msg := readMessage(t, conn)
		assert.Equal(t, 7, msg.Data.CurrentProgress)
	})

	t.Run("其他任务的更新不推送", func(t *testing.T) {
		other := domain.NewMigrationProgress("m-2", "t-1", time.Now())
		hub.Publish(other)
		update := p.Clone()
		update.CurrentProgress = 8
		hub.Publish(update)
		msg := readMessage(t, conn)
		assert.Equal(t, "m-1", msg.MigrationID)
		assert.Equal(t, 8, msg.Data.CurrentProgress)
	})

	t.Run("失败后关闭连接", func(t *testing.T) {
		failed := p.Clone()
		failed.Status = domain.MigrationFailed
		hub.Publish(failed)

		msg := readMessage(t, conn)
		assert.Equal(t, domain.MigrationFailed, msg.Data.Status)
		assert.Equal(t, 0, hub.Subscribers("m-1"))

		_, _, err := conn.ReadMessage()
		assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
	})
}

// stepSource 依次返回给定的快照，最后一个重复返回
type stepSource struct {
	mu    sync.Mutex
	steps []*domain.MigrationProgress
}

func (s *stepSource) Progress(_ context.Context, _ string) (*domain.MigrationProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.steps[0]
	if len(s.steps) > 1 {
		s.steps = s.steps[1:]
	}
	return p.Clone(), nil
}

func TestHub_FailsBeforeSubscribe(t *testing.T) {
	running := domain.NewMigrationProgress("m-1", "t-1", time.Now())
	running.Status = domain.MigrationMigrating
	failed := running.Clone()
	failed.Status = domain.MigrationFailed

	// 握手前读到 migrating，订阅时任务已失败
	hub := NewHub(&stepSource{steps: []*domain.MigrationProgress{running, failed}}, nil, nil)
	url := newTestServer(t, hub)

	conn, _, err := websocket.DefaultDialer.Dial(url+"/api/v1/migrations/m-1/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	msg := readMessage(t, conn)
	assert.Equal(t, domain.MigrationFailed, msg.Data.Status)
	assert.Equal(t, 0, hub.Subscribers("m-1"))

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestHub_UnknownMigration(t *testing.T) {
	hub := NewHub(fakeSource{}, nil, nil)
	url := newTestServer(t, hub)

	_, resp, err := websocket.DefaultDialer.Dial(url+"/api/v1/migrations/missing/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHub_Origin(t *testing.T) {
	p := domain.NewMigrationProgress("m-1", "t-1", time.Now())
	hub := NewHub(fakeSource{"m-1": p}, []string{"https://ops.example.com"}, nil)
	url := newTestServer(t, hub)

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url+"/api/v1/migrations/m-1/ws", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://ops.example.com")
	conn, _, err := websocket.DefaultDialer.Dial(url+"/api/v1/migrations/m-1/ws", header)
	require.NoError(t, err)
	conn.Close()
}

func TestHub_Run(t *testing.T) {
	p := domain.NewMigrationProgress("m-1", "t-1", time.Now())
	hub := NewHub(fakeSource{"m-1": p}, nil, nil)
	url := newTestServer(t, hub)

	conn, _, err := websocket.DefaultDialer.Dial(url+"/api/v1/migrations/m-1/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	readMessage(t, conn)
	require.Eventually(t, func() bool { return hub.Subscribers("m-1") == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	assert.Equal(t, 0, hub.Subscribers("m-1"))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}
