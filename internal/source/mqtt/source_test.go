package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	imageingest "github.com/e7canasta/orion-care-sensor/modules/image-ingest"
	"github.com/e7canasta/orion-care-sensor/modules/image-ingest/internal/wire"
)

// doneToken is an already completed paho token.
type doneToken struct {
	paho.Token
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// pendingToken never completes, like a connect that keeps retrying.
type pendingToken struct {
	paho.Token
}

func (pendingToken) Wait() bool                     { return false }
func (pendingToken) WaitTimeout(time.Duration) bool { return false }
func (pendingToken) Error() error                   { return nil }
func (pendingToken) Done() <-chan struct{}          { return make(chan struct{}) }

// fakeClient records calls and delivers messages through the subscribed
// handler. Methods not overridden panic via the nil embedded interface.
type fakeClient struct {
	paho.Client
	opts       *paho.ClientOptions
	connectErr error
	pending    bool

	mu          sync.Mutex
	handler     paho.MessageHandler
	published   [][]byte
	disconnects int
}

func (c *fakeClient) Connect() paho.Token {
	if c.pending {
		return pendingToken{}
	}
	if c.connectErr == nil && c.opts.OnConnect != nil {
		c.opts.OnConnect(c)
	}
	return doneToken{err: c.connectErr}
}

func (c *fakeClient) Subscribe(_ string, _ byte, h paho.MessageHandler) paho.Token {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
	return doneToken{}
}

func (c *fakeClient) Unsubscribe(...string) paho.Token { return doneToken{} }
func (c *fakeClient) IsConnected() bool                { return true }

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.disconnects++
	c.mu.Unlock()
}

func (c *fakeClient) Publish(_ string, _ byte, _ bool, payload interface{}) paho.Token {
	c.mu.Lock()
	c.published = append(c.published, payload.([]byte))
	c.mu.Unlock()
	return doneToken{}
}

func (c *fakeClient) deliver(m paho.Message) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	h(c, m)
}

type fakeMessage struct {
	paho.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

func newTestSource(t *testing.T, buffer int) (*Source, *fakeClient) {
	t.Helper()
	s, err := New(Config{Broker: "localhost:1883", Topic: "camera/image_raw", Buffer: buffer})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	fc := &fakeClient{}
	s.newClient = func(o *paho.ClientOptions) paho.Client {
		fc.opts = o
		return fc
	}
	return s, fc
}

func encode(t *testing.T, f imageingest.RawFrame) []byte {
	t.Helper()
	b, err := wire.Marshal(f)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	return b
}

func TestSource_DeliversDecodedFrames(t *testing.T) {
	s, fc := newTestSource(t, 4)
	frames, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer s.Stop()

	in := imageingest.RawFrame{Seq: 7, Encoding: "bgr8", Width: 1, Height: 1, Data: []byte{1, 2, 3}}
	fc.deliver(fakeMessage{topic: "camera/image_raw", payload: encode(t, in)})

	select {
	case got := <-frames:
		if got.Seq != 7 || got.Encoding != "bgr8" || len(got.Data) != 3 {
			t.Errorf("frame = %+v", got)
		}
		if got.TraceID == "" {
			t.Error("TraceID not assigned")
		}
		if got.Source != "camera/image_raw" {
			t.Errorf("Source = %q, want topic", got.Source)
		}
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
	}
}

func TestSource_AssignsSequenceWhenMissing(t *testing.T) {
	s, fc := newTestSource(t, 4)
	frames, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer s.Stop()

	payload := encode(t, imageingest.RawFrame{Encoding: "mono8", Width: 1, Height: 1, Data: []byte{1}})
	fc.deliver(fakeMessage{topic: "t", payload: payload})
	fc.deliver(fakeMessage{topic: "t", payload: payload})

	a, b := <-frames, <-frames
	if a.Seq != 1 || b.Seq != 2 {
		t.Errorf("seqs = %d, %d, want 1, 2", a.Seq, b.Seq)
	}
}

// TestSource_DropsWhenFull checks that the broker callback never blocks on a
// slow consumer.
func TestSource_DropsWhenFull(t *testing.T) {
	s, fc := newTestSource(t, 2)
	if _, err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer s.Stop()

	payload := encode(t, imageingest.RawFrame{Encoding: "mono8", Width: 1, Height: 1, Data: []byte{1}})
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			fc.deliver(fakeMessage{topic: "t", payload: payload})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("message handler blocked")
	}

	if s.Dropped() != 3 {
		t.Errorf("Dropped() = %d, want 3", s.Dropped())
	}
	if s.Received() != 5 {
		t.Errorf("Received() = %d, want 5", s.Received())
	}
	var _ imageingest.DropCounter = s
}

func TestSource_MalformedPayload(t *testing.T) {
	s, fc := newTestSource(t, 2)
	frames, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	fc.deliver(fakeMessage{topic: "t", payload: []byte("not msgpack")})
	if s.Malformed() != 1 {
		t.Errorf("Malformed() = %d, want 1", s.Malformed())
	}

	s.Stop()
	if _, ok := <-frames; ok {
		t.Error("malformed payload produced a frame")
	}
	// Late messages after Stop are ignored
	fc.deliver(fakeMessage{topic: "t", payload: encode(t, imageingest.RawFrame{Encoding: "mono8"})})
}

func TestSource_StopOnContextCancel(t *testing.T) {
	s, fc := newTestSource(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	frames, err := s.Start(ctx)
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	cancel()

	select {
	case _, ok := <-frames:
		if ok {
			t.Error("unexpected frame")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	s.Stop()

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.disconnects != 1 {
		t.Errorf("Disconnect called %d times, want 1", fc.disconnects)
	}
}

func TestSource_ConnectError(t *testing.T) {
	s, fc := newTestSource(t, 1)
	fc.connectErr = errors.New("connection refused")
	if _, err := s.Start(context.Background()); !errors.Is(err, fc.connectErr) {
		t.Errorf("Start() = %v, want wrapped connect error", err)
	}
	if fc.disconnects != 1 {
		t.Errorf("Disconnect called %d times after failed connect, want 1", fc.disconnects)
	}
}

// TestSource_ConnectTimeoutReleasesClient checks that a connect still retrying
// in the background is shut down when Start gives up, and that a later Start
// does not leave the first client running.
func TestSource_ConnectTimeoutReleasesClient(t *testing.T) {
	defer func(d time.Duration) { connectTimeout = d }(connectTimeout)
	connectTimeout = 10 * time.Millisecond

	s, err := New(Config{Broker: "localhost:1883", Topic: "camera/image_raw"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	var clients []*fakeClient
	s.newClient = func(o *paho.ClientOptions) paho.Client {
		fc := &fakeClient{opts: o, pending: true}
		clients = append(clients, fc)
		return fc
	}

	for i := 0; i < 2; i++ {
		if _, err := s.Start(context.Background()); err == nil {
			t.Fatalf("Start() #%d succeeded with a pending connect", i+1)
		}
	}
	if len(clients) != 2 {
		t.Fatalf("created %d clients, want 2", len(clients))
	}
	for i, fc := range clients {
		if fc.disconnects != 1 {
			t.Errorf("client %d: Disconnect called %d times, want 1", i+1, fc.disconnects)
		}
	}
	// Stop after a failed Start must not touch the released client
	s.Stop()
	if clients[1].disconnects != 1 {
		t.Errorf("Stop disconnected a released client again")
	}
}

func TestPublisher_ConnectFailureReleasesClient(t *testing.T) {
	defer func(d time.Duration) { connectTimeout = d }(connectTimeout)
	connectTimeout = 10 * time.Millisecond

	for _, fc := range []*fakeClient{{pending: true}, {connectErr: errors.New("not authorized")}} {
		fc := fc
		_, err := newPublisher(Config{Broker: "b", Topic: "t"}, func(o *paho.ClientOptions) paho.Client {
			fc.opts = o
			return fc
		})
		if err == nil {
			t.Fatal("newPublisher() succeeded")
		}
		if fc.disconnects != 1 {
			t.Errorf("Disconnect called %d times after %v, want 1", fc.disconnects, err)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no broker", Config{Topic: "t"}},
		{"no topic", Config{Broker: "b"}},
		{"bad qos", Config{Broker: "b", Topic: "t", QoS: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("New() succeeded")
			}
		})
	}
}

func TestBrokerURL(t *testing.T) {
	if got := brokerURL("localhost:1883"); got != "tcp://localhost:1883" {
		t.Errorf("brokerURL = %q", got)
	}
	if got := brokerURL("ssl://broker:8883"); got != "ssl://broker:8883" {
		t.Errorf("brokerURL = %q", got)
	}
}

func TestPublisher_Publish(t *testing.T) {
	fc := &fakeClient{}
	p, err := newPublisher(Config{Broker: "b", Topic: "camera/image_raw"}, func(o *paho.ClientOptions) paho.Client {
		fc.opts = o
		return fc
	})
	if err != nil {
		t.Fatalf("newPublisher() failed: %v", err)
	}

	in := imageingest.RawFrame{Seq: 3, Encoding: "rgb8", Width: 1, Height: 1, Data: []byte{4, 5, 6}}
	if err := p.Publish(in); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}
	p.Close()

	if len(fc.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(fc.published))
	}
	out, err := wire.Unmarshal(fc.published[0])
	if err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	if out.Seq != 3 || out.Encoding != "rgb8" {
		t.Errorf("published frame = %+v", out)
	}
	if st := p.Stats(); st.Published != 1 || st.Bytes != uint64(len(fc.published[0])) {
		t.Errorf("Stats() = %+v", st)
	}

	t.Logf("✅ published %d bytes", len(fc.published[0]))
}
