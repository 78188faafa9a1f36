package session

import (
	"bytes"
	"errors"
	"io"
	"net/netip"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/danmuck/nxcp/internal/protocol"
	"github.com/danmuck/nxcp/internal/protocol/encryption"
	"github.com/danmuck/nxcp/internal/protocol/frame"
	"github.com/danmuck/nxcp/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

var addrComparer = cmp.Comparer(func(a, b netip.Addr) bool { return a == b })

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Name = "test"
	cfg.DefaultBufferSize = 64
	cfg.MaxBufferSize = 1 << 16
	return cfg
}

func sampleMessages() []*protocol.Message {
	a := protocol.NewMessage(1, 42)
	a.SetString(10, "hello")
	a.SetInt32(11, 7)

	b := protocol.NewMessage(2, 43)
	b.SetString(1, strings.Repeat("repeated text ", 100))
	b.SetInetAddress(2, netip.MustParseAddr("10.0.0.1"), 8)

	c := protocol.NewBinaryMessage(3, 44, bytes.Repeat([]byte{1, 2, 3, 4}, 500))
	d := protocol.NewControlMessage(4, 45, 0xFEED)
	e := protocol.NewBinaryMessage(5, 46, []byte("tail"))
	return []*protocol.Message{a, b, c, d, e}
}

func encodeAll(t *testing.T, cfg Config, cipher encryption.Context, msgs []*protocol.Message) []byte {
	t.Helper()
	var buf bytes.Buffer
	s, err := NewSender(&buf, cfg)
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	s.SetCipher(cipher)
	for _, msg := range msgs {
		if err := s.SendMessage(msg); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	return buf.Bytes()
}

func receiveAll(t *testing.T, r *Receiver, n int) []*protocol.Message {
	t.Helper()
	out := make([]*protocol.Message, 0, n)
	for i := 0; i < n; i++ {
		msg, err := r.ReceiveMessage()
		if err != nil {
			t.Fatalf("receive %d: %v", i, err)
		}
		out = append(out, msg)
	}
	return out
}

func TestReceiverReassemblesSingleByteChunks(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	msgs := sampleMessages()
	stream := encodeAll(t, cfg, nil, msgs)

	r, err := NewReceiver(iotest.OneByteReader(bytes.NewReader(stream)), cfg)
	if err != nil {
		t.Fatalf("new receiver: %v", err)
	}
	got := receiveAll(t, r, len(msgs))
	if diff := cmp.Diff(msgs, got, addrComparer); diff != "" {
		t.Fatalf("messages differ (-want +got):\n%s", diff)
	}

	_, err = r.ReceiveMessage()
	if !errors.Is(err, protocol.ErrSessionClosed) || !errors.Is(err, io.EOF) {
		t.Fatalf("expected ErrSessionClosed wrapping EOF, got %v", err)
	}
}

func TestReceiverReassemblesArbitraryChunks(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	msgs := sampleMessages()
	stream := encodeAll(t, cfg, nil, msgs)

	for _, chunk := range []int{3, 7, 16, 17, 100, len(stream)} {
		r, err := NewReceiver(&chunkReader{data: stream, chunk: chunk}, cfg)
		if err != nil {
			t.Fatalf("new receiver: %v", err)
		}
		got := receiveAll(t, r, len(msgs))
		if diff := cmp.Diff(msgs, got, addrComparer); diff != "" {
			t.Fatalf("chunk=%d messages differ (-want +got):\n%s", chunk, diff)
		}
	}
}

func TestReceiverDataWithEOF(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	msgs := sampleMessages()[:1]
	stream := encodeAll(t, cfg, nil, msgs)

	r, _ := NewReceiver(iotest.DataErrReader(bytes.NewReader(stream)), cfg)
	if _, err := r.ReceiveMessage(); err != nil {
		t.Fatalf("expected message delivered with trailing EOF, got %v", err)
	}
	if _, err := r.ReceiveMessage(); !errors.Is(err, protocol.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestReceiverGrowsAndShrinks(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	cfg.AllowCompression = false
	big := protocol.NewBinaryMessage(1, 1, bytes.Repeat([]byte{0xAB}, 1000))
	small := protocol.NewControlMessage(2, 2, 1)
	stream := encodeAll(t, cfg, nil, []*protocol.Message{big, small})

	src := &maxReader{r: iotest.OneByteReader(bytes.NewReader(stream))}
	r, _ := NewReceiver(src, cfg)
	if r.Capacity() != 64 {
		t.Fatalf("unexpected initial capacity: %d", r.Capacity())
	}

	got, err := r.ReceiveMessage()
	if err != nil {
		t.Fatalf("receive big: %v", err)
	}
	if !bytes.Equal(got.Binary, big.Binary) {
		t.Fatalf("big payload mismatch")
	}
	if src.max < 1016-64 {
		t.Fatalf("buffer never grew: largest read window %d", src.max)
	}
	if r.Capacity() != 64 || r.Buffered() != 0 {
		t.Fatalf("expected shrink to default, capacity=%d buffered=%d", r.Capacity(), r.Buffered())
	}

	got, err = r.ReceiveMessage()
	if err != nil {
		t.Fatalf("receive small: %v", err)
	}
	if got.Control != 1 || r.Capacity() != 64 {
		t.Fatalf("unexpected small message or capacity: %+v cap=%d", got, r.Capacity())
	}
}

func TestReceiverKeepsGrownBufferWhileBacklogIsLarge(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	cfg.AllowCompression = false
	first := protocol.NewBinaryMessage(1, 1, make([]byte, 200))
	second := protocol.NewBinaryMessage(1, 2, make([]byte, 200))
	stream := encodeAll(t, cfg, nil, []*protocol.Message{first, second})

	r, _ := NewReceiver(bytes.NewReader(stream), cfg)
	if _, err := r.ReceiveMessage(); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if r.Buffered() < 64 && r.Capacity() != 64 {
		t.Fatalf("drained buffer should shrink: capacity=%d buffered=%d", r.Capacity(), r.Buffered())
	}
	if r.Buffered() >= 64 && r.Capacity() <= 64 {
		t.Fatalf("backlog lost its buffer: capacity=%d buffered=%d", r.Capacity(), r.Buffered())
	}
	if _, err := r.ReceiveMessage(); err != nil {
		t.Fatalf("receive second: %v", err)
	}
}

func TestReceiverRejectsOversizeMessage(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	cfg.AllowCompression = false
	stream := encodeAll(t, cfg, nil, []*protocol.Message{protocol.NewBinaryMessage(1, 1, make([]byte, 2000))})

	cfg.MaxBufferSize = 1024
	r, _ := NewReceiver(bytes.NewReader(stream), cfg)
	_, err := r.ReceiveMessage()
	if !errors.Is(err, protocol.ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}
	if r.Capacity() != 64 {
		t.Fatalf("buffer must not grow for rejected message: %d", r.Capacity())
	}
	if _, again := r.ReceiveMessage(); !errors.Is(again, protocol.ErrMessageTooLarge) {
		t.Fatalf("expected sticky error, got %v", again)
	}
}

func TestReceiverRejectsTinyDeclaredSize(t *testing.T) {
	testlog.Start(t)
	b := frame.EncodeHeader(frame.Header{Code: 1, Size: 8})
	r, _ := NewReceiver(bytes.NewReader(b), testConfig())
	if _, err := r.ReceiveMessage(); !errors.Is(err, protocol.ErrStructural) {
		t.Fatalf("expected ErrStructural, got %v", err)
	}
}

func TestReceiverTruncatedStream(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	stream := encodeAll(t, cfg, nil, sampleMessages()[:1])
	r, _ := NewReceiver(bytes.NewReader(stream[:len(stream)-3]), cfg)
	_, err := r.ReceiveMessage()
	if !errors.Is(err, protocol.ErrSessionClosed) || !errors.Is(err, io.EOF) {
		t.Fatalf("expected ErrSessionClosed wrapping EOF, got %v", err)
	}
}

type zeroReader struct{}

func (zeroReader) Read([]byte) (int, error) { return 0, nil }

func TestReceiverZeroLengthReadClosesSession(t *testing.T) {
	testlog.Start(t)
	r, _ := NewReceiver(zeroReader{}, testConfig())
	_, err := r.ReceiveMessage()
	if !errors.Is(err, protocol.ErrSessionClosed) || !errors.Is(err, io.ErrNoProgress) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestReceiverStructuralErrorIsTerminal(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	stream := encodeAll(t, cfg, nil, sampleMessages()[:2])
	stream[frame.HeaderLen+8] = 0xFF

	r, _ := NewReceiver(bytes.NewReader(stream), cfg)
	if _, err := r.ReceiveMessage(); !errors.Is(err, protocol.ErrStructural) {
		t.Fatalf("expected ErrStructural, got %v", err)
	}
	if _, err := r.ReceiveMessage(); !errors.Is(err, protocol.ErrStructural) {
		t.Fatalf("receiver must not resynchronize, got %v", err)
	}
}

func TestEncryptedSession(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	ctx, err := encryption.GenerateContext(encryption.CipherBlowfish128)
	if err != nil {
		t.Fatalf("generate context: %v", err)
	}
	msgs := sampleMessages()
	stream := encodeAll(t, cfg, ctx, msgs)
	if code, _ := frame.PeekCode(stream); code != frame.CodeEncryptedMessage {
		t.Fatalf("expected encrypted stream, got code 0x%04x", code)
	}

	r, _ := NewReceiver(iotest.HalfReader(bytes.NewReader(stream)), cfg)
	r.SetCipher(ctx)
	got := receiveAll(t, r, len(msgs))
	if diff := cmp.Diff(msgs, got, addrComparer); diff != "" {
		t.Fatalf("messages differ (-want +got):\n%s", diff)
	}

	r, _ = NewReceiver(bytes.NewReader(stream), cfg)
	if _, err := r.ReceiveMessage(); !errors.Is(err, protocol.ErrNoCipher) {
		t.Fatalf("expected ErrNoCipher, got %v", err)
	}
}

func TestSenderRejectsOversizeMessage(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	cfg.AllowCompression = false
	cfg.MaxBufferSize = 128
	var buf bytes.Buffer
	s, _ := NewSender(&buf, cfg)
	err := s.SendMessage(protocol.NewBinaryMessage(1, 1, make([]byte, 500)))
	if !errors.Is(err, protocol.ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("nothing should be written, got %d bytes", buf.Len())
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestSenderWriteFailureClosesSession(t *testing.T) {
	testlog.Start(t)
	s, _ := NewSender(failWriter{}, testConfig())
	err := s.SendMessage(protocol.NewControlMessage(1, 1, 1))
	if !errors.Is(err, protocol.ErrSessionClosed) || !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestLoggerAndMetricsOptions(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	cfg.Name = "options-test"
	var logs bytes.Buffer
	logger := zerolog.New(&logs).Level(zerolog.DebugLevel)

	var wire bytes.Buffer
	s, _ := NewSender(&wire, cfg, WithLogger(logger), WithMetrics())
	if err := s.SendMessage(sampleMessages()[0]); err != nil {
		t.Fatalf("send: %v", err)
	}
	r, _ := NewReceiver(&wire, cfg, WithLogger(logger), WithMetrics())
	if _, err := r.ReceiveMessage(); err != nil {
		t.Fatalf("receive: %v", err)
	}
	_, _ = r.ReceiveMessage()

	out := logs.String()
	for _, want := range []string{`"message":"sent"`, `"message":"received"`, `"reason":"closed"`, `"conn":"options-test"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %s:\n%s", want, out)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	testlog.Start(t)
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cfg := DefaultConfig()
	cfg.DefaultBufferSize = 8
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	cfg = DefaultConfig()
	cfg.MaxBufferSize = cfg.DefaultBufferSize - 1
	if _, err := NewReceiver(bytes.NewReader(nil), cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

// chunkReader returns at most chunk bytes per Read.
type chunkReader struct {
	data  []byte
	chunk int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p[:min(len(p), c.chunk)], c.data)
	c.data = c.data[n:]
	return n, nil
}

// maxReader records the largest window the receiver offered.
type maxReader struct {
	r   io.Reader
	max int
}

func (m *maxReader) Read(p []byte) (int, error) {
	m.max = max(m.max, len(p))
	return m.r.Read(p)
}
