package dispatch

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kndysfm/webhidbridge/internal/hiddev"
	"github.com/kndysfm/webhidbridge/internal/session"
	"github.com/kndysfm/webhidbridge/internal/vpath"
)

// mockHandle is a small fake satisfying hiddev.Handle for dispatch-level
// tests; it echoes feature writes and replays a fixed report sequence.
type mockHandle struct {
	mu       sync.Mutex
	feature  []byte
	reports  [][]byte
	closed   bool
	closeCnt int
	writes   [][]byte
}

func (m *mockHandle) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCnt++
	m.closed = true
	return nil
}

func (m *mockHandle) ReadTimeout(b []byte, _ int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.reports) == 0 {
		return 0, nil
	}
	r := m.reports[0]
	m.reports = m.reports[1:]
	return copy(b, r), nil
}

func (m *mockHandle) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := append([]byte(nil), b...)
	m.writes = append(m.writes, cp)
	return len(b), nil
}

func (m *mockHandle) GetFeatureReport(reportID byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]byte(nil), m.feature...)
	if len(out) == 0 {
		out = make([]byte, hiddev.MaxReportSize)
	}
	out[0] = reportID
	return out, nil
}

func (m *mockHandle) SendFeatureReport(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feature = append([]byte(nil), data...)
	return nil
}

type fakeOpener struct {
	handle *mockHandle
	err    error
}

func (f *fakeOpener) OpenPath(p vpath.Path) (hiddev.Handle, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.handle, nil
}

var testPath = vpath.Path{InterfaceNbr: 0, VendorID: 0x1234, ProductID: 0x5678, UsagePage: 1, Usage: 2}

func TestServeOneShotFeatureRoundTrip(t *testing.T) {
	h := &mockHandle{}
	opener := &fakeOpener{handle: h}

	res := ServeOneShot(opener, testPath, "feature/0x03", http.MethodPost, []byte{0x00, 0xAA, 0xBB})
	require.Equal(t, http.StatusOK, res.Status)

	res = ServeOneShot(opener, testPath, "feature/0x03", http.MethodGet, nil)
	require.Equal(t, http.StatusOK, res.Status)
	require.GreaterOrEqual(t, len(res.Body), 3)
	assert.Equal(t, byte(0x03), res.Body[0])
	assert.Equal(t, byte(0xAA), res.Body[1])
	assert.Equal(t, byte(0xBB), res.Body[2])
}

func TestServeOneShotOversizeFeatureBody(t *testing.T) {
	h := &mockHandle{}
	opener := &fakeOpener{handle: h}

	body := make([]byte, 257)
	res := ServeOneShot(opener, testPath, "feature/0x01", http.MethodPost, body)
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.Contains(t, string(res.Body), "too long")
}

func TestServeOneShotOutputWrite(t *testing.T) {
	h := &mockHandle{}
	opener := &fakeOpener{handle: h}

	res := ServeOneShot(opener, testPath, "output/0x05", http.MethodPut, []byte{0x00, 0x11, 0x22})
	require.Equal(t, http.StatusOK, res.Status)
	require.Len(t, h.writes, 1)
	assert.Equal(t, byte(0x05), h.writes[0][0])
}

func TestServeOneShotInputTimeout(t *testing.T) {
	h := &mockHandle{}
	opener := &fakeOpener{handle: h}

	res := ServeOneShot(opener, testPath, "input/", http.MethodGet, nil)
	assert.Equal(t, http.StatusInternalServerError, res.Status)
}

func TestDispatcherHandshakeAndClose(t *testing.T) {
	h := &mockHandle{}
	d := New(&fakeOpener{handle: h}, nil)

	s, err := d.Handshake("conn-1", testPath, 0)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, 1, d.Registry.Count())

	d.Close("conn-1")
	assert.Equal(t, 0, d.Registry.Count())
	assert.Equal(t, 1, h.closeCnt)
}

func TestDispatcherHandshakeRejectsDuplicateConnection(t *testing.T) {
	h := &mockHandle{}
	d := New(&fakeOpener{handle: h}, nil)

	_, err := d.Handshake("conn-1", testPath, 0)
	require.NoError(t, err)

	_, err = d.Handshake("conn-1", testPath, 0)
	assert.Error(t, err)

	d.Close("conn-1")
}

func TestPumpFrameDrainsQueuedReportsInOrder(t *testing.T) {
	h := &mockHandle{reports: [][]byte{
		{0x01, 'A', 'A', 'A', 'A'},
		{0x01, 'B', 'B', 'B', 'B'},
	}}
	d := New(&fakeOpener{handle: h}, nil)
	s, err := d.Handshake("conn-2", testPath, 0)
	require.NoError(t, err)
	defer d.Close("conn-2")

	waitForFIFO(t, s, 2)

	out := PumpFrame(s, false, nil)
	expected := []byte{
		0x05, 0x00, 0x00, 0x00, 0x01, 'A', 'A', 'A', 'A',
		0x05, 0x00, 0x00, 0x00, 0x01, 'B', 'B', 'B', 'B',
	}
	assert.Equal(t, expected, out)
}

func TestPumpFrameReportIDFilter(t *testing.T) {
	h := &mockHandle{reports: [][]byte{
		{0x01, 'x', 'x', 'x', 'x'},
		{0x02, 'X', 'X', 'X', 'X'},
	}}
	d := New(&fakeOpener{handle: h}, nil)
	s, err := d.Handshake("conn-3", testPath, 0x02)
	require.NoError(t, err)
	defer d.Close("conn-3")

	waitForFIFO(t, s, 1)

	out := PumpFrame(s, false, nil)
	expected := []byte{0x05, 0x00, 0x00, 0x00, 0x02, 'X', 'X', 'X', 'X'}
	assert.Equal(t, expected, out)
}

func TestPumpFrameKeepaliveWhenEmpty(t *testing.T) {
	h := &mockHandle{}
	d := New(&fakeOpener{handle: h}, nil)
	s, err := d.Handshake("conn-4", testPath, 0)
	require.NoError(t, err)
	defer d.Close("conn-4")

	out := PumpFrame(s, true, nil)
	assert.Equal(t, []byte{0, 0, 0, 0}, out)
}

func TestCloseDestroysSessionExactlyOnce(t *testing.T) {
	h := &mockHandle{}
	d := New(&fakeOpener{handle: h}, nil)
	_, err := d.Handshake("conn-5", testPath, 0)
	require.NoError(t, err)

	d.Close("conn-5")
	_, found := d.Session("conn-5")
	assert.False(t, found)
	assert.Equal(t, 1, h.closeCnt)

	// Closing again (e.g. connection-closed firing after an explicit
	// WebSocket CLOSE already tore the session down) must be a no-op.
	d.Close("conn-5")
	assert.Equal(t, 1, h.closeCnt)
}

func waitForFIFO(t *testing.T, s *session.Session, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.FIFO().Size() >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for fifo size >= %d", want)
}
