package sse

import (
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// BroadcasterSuite is a test suite for Broadcaster operations.
type BroadcasterSuite struct {
	suite.Suite
	broadcaster *Broadcaster
}

func (s *BroadcasterSuite) SetupTest() {
	s.broadcaster = NewBroadcaster()
}

func TestBroadcasterSuite(t *testing.T) {
	suite.Run(t, new(BroadcasterSuite))
}

// mockResponseWriter implements http.ResponseWriter and http.Flusher.
type mockResponseWriter struct {
	header     http.Header
	body       []byte
	statusCode int
	mu         sync.Mutex
}

func newMockResponseWriter() *mockResponseWriter {
	return &mockResponseWriter{
		header:     make(http.Header),
		statusCode: http.StatusOK,
	}
}

func (m *mockResponseWriter) Header() http.Header {
	return m.header
}

func (m *mockResponseWriter) Write(data []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.body = append(m.body, data...)
	return len(data), nil
}

func (m *mockResponseWriter) WriteHeader(statusCode int) {
	m.statusCode = statusCode
}

func (m *mockResponseWriter) Flush() {}

func (m *mockResponseWriter) GetBody() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.body)
}

func (s *BroadcasterSuite) TestNewBroadcaster() {
	b := NewBroadcaster()
	s.NotNil(b)
	s.Equal(0, b.ClientCount())
}

func (s *BroadcasterSuite) TestAddAndDropClient() {
	w := newMockResponseWriter()

	c, err := s.broadcaster.add(w)
	s.NoError(err)
	s.NotEmpty(c.id)
	s.Equal(1, s.broadcaster.ClientCount())

	s.broadcaster.drop(c.id)
	s.Equal(0, s.broadcaster.ClientCount())

	select {
	case <-c.done:
		// closed as expected
	default:
		s.Fail("done channel should be closed")
	}
}

func (s *BroadcasterSuite) TestBroadcast() {
	w := newMockResponseWriter()
	_, err := s.broadcaster.add(w)
	s.NoError(err)

	s.broadcaster.Broadcast(map[string]string{"type": "parse_completed", "source_note_id": "n1"})

	body := w.GetBody()
	s.Contains(body, "data:")
	s.Contains(body, "parse_completed")
	s.Contains(body, "n1")
}

func (s *BroadcasterSuite) TestBroadcastNoClients() {
	// Must not panic with nobody connected.
	s.broadcaster.Broadcast(map[string]string{"type": "test"})
}

func (s *BroadcasterSuite) TestBroadcastMultipleClients() {
	writers := make([]*mockResponseWriter, 3)
	for i := range writers {
		writers[i] = newMockResponseWriter()
		_, err := s.broadcaster.add(writers[i])
		s.NoError(err)
	}

	s.broadcaster.Broadcast(map[string]string{"type": "item_edited"})

	for i, w := range writers {
		s.Contains(w.GetBody(), "item_edited", "client %d should receive the event", i)
	}
}

func TestClientUniqueIDs(t *testing.T) {
	b := NewBroadcaster()
	ids := make(map[string]bool)

	for i := 0; i < 100; i++ {
		c, err := b.add(newMockResponseWriter())
		require.NoError(t, err)
		assert.False(t, ids[c.id], "ID %s should be unique", c.id)
		ids[c.id] = true
	}
}

func TestDropUnknownClient(t *testing.T) {
	b := NewBroadcaster()
	// Must not panic.
	b.drop("nope")
	assert.Equal(t, 0, b.ClientCount())
}

func TestConcurrentBroadcast(t *testing.T) {
	b := NewBroadcaster()
	for i := 0; i < 10; i++ {
		_, err := b.add(newMockResponseWriter())
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.Broadcast(map[string]int{"index": i})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, b.ClientCount())
}

func TestBroadcastAndKeepaliveSerialized(t *testing.T) {
	b := NewBroadcaster()
	w := newMockResponseWriter()
	c, err := b.add(w)
	require.NoError(t, err)

	// Fan-out writes and the connection's keepalive share one writer;
	// frames from either side must land intact.
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Broadcast(map[string]string{"type": "item_edited"})
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.send(": keepalive\n\n")
		}()
	}
	wg.Wait()

	for _, frame := range strings.Split(w.GetBody(), "\n\n") {
		if frame == "" {
			continue
		}
		ok := strings.HasPrefix(frame, "data: {") || frame == ": keepalive"
		assert.True(t, ok, "torn frame: %q", frame)
	}
}

func TestConcurrentAddDrop(t *testing.T) {
	b := NewBroadcaster()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := b.add(newMockResponseWriter())
			if err == nil && time.Now().UnixNano()%2 == 0 {
				b.drop(c.id)
			}
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, b.ClientCount(), 0)
}
