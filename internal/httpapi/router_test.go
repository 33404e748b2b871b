package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kndysfm/webhidbridge/internal/hiddev"
	"github.com/kndysfm/webhidbridge/internal/vpath"
)

type fakeHandle struct {
	feature []byte
	writes  [][]byte
}

func (f *fakeHandle) Close() error { return nil }
func (f *fakeHandle) ReadTimeout(b []byte, _ int) (int, error) { return 0, nil }
func (f *fakeHandle) Write(b []byte) (int, error) {
	f.writes = append(f.writes, append([]byte(nil), b...))
	return len(b), nil
}
func (f *fakeHandle) GetFeatureReport(reportID byte) ([]byte, error) {
	out := append([]byte(nil), f.feature...)
	if len(out) == 0 {
		out = make([]byte, hiddev.MaxReportSize)
	}
	out[0] = reportID
	return out, nil
}
func (f *fakeHandle) SendFeatureReport(data []byte) error {
	f.feature = append([]byte(nil), data...)
	return nil
}

type fakeOpener struct{ handle *fakeHandle }

func (f *fakeOpener) OpenPath(p vpath.Path) (hiddev.Handle, error) { return f.handle, nil }

func emptyEnumerator(_, _ uint16) ([]hiddev.Device, error) { return nil, nil }

func newTestRouter(opener *fakeOpener, enumerate DeviceEnumerator) *Router {
	static := http.NotFoundHandler()
	return New(enumerate, opener, static, nil)
}

func TestEnumerateEmpty(t *testing.T) {
	r := newTestRouter(&fakeOpener{handle: &fakeHandle{}}, emptyEnumerator)

	req := httptest.NewRequest(http.MethodGet, "/hid//enumerate?vid=0&pid=0", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(0), body["count"])
	assert.Empty(t, body["devices"])
}

func TestFeatureRoundTripOverHTTP(t *testing.T) {
	h := &fakeHandle{}
	r := newTestRouter(&fakeOpener{handle: h}, emptyEnumerator)

	path := "/hid/0000/1234/5678/0001/0002/feature/0x03"
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte{0x00, 0xAA, 0xBB}))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, path, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.Bytes()
	require.GreaterOrEqual(t, len(body), 3)
	assert.Equal(t, byte(0x03), body[0])
	assert.Equal(t, byte(0xAA), body[1])
	assert.Equal(t, byte(0xBB), body[2])
}

func TestOversizeFeatureBodyOverHTTP(t *testing.T) {
	r := newTestRouter(&fakeOpener{handle: &fakeHandle{}}, emptyEnumerator)

	path := "/hid/0000/1234/5678/0001/0002/feature/0x01"
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(make([]byte, 257)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "too long")
}

func TestOtherHIDPathsAre404(t *testing.T) {
	r := newTestRouter(&fakeOpener{handle: &fakeHandle{}}, emptyEnumerator)

	req := httptest.NewRequest(http.MethodGet, "/hid/not-a-virtual-path", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
