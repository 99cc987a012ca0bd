package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const testKey = "3f9a6a1b-3d54-4fbe-8b3a-6b3e8d6b2c88"

// helper: new Echo with the middleware and a simple route
func setupEcho(rdb redis.Cmdable, ttl time.Duration, handler echo.HandlerFunc) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(IdempotencyMiddleware(rdb, ttl, zap.NewNop().Sugar()))
	e.POST("/loans/:loan_id/repayments", handler)
	e.GET("/loans/:loan_id", handler) // for non-mutating bypass test
	return e
}

func mkJSONBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return bytes.NewReader(b)
}

func doReq(t *testing.T, e *echo.Echo, method, path string, body io.Reader, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// counting handler to exercise respRecorder capture & saveFinal
func counting(calls *int32, code int) echo.HandlerFunc {
	return func(c echo.Context) error {
		n := atomic.AddInt32(calls, 1)
		return c.JSON(code, map[string]any{"call": n, "key": c.Get(ContextKeyIdempotency)})
	}
}

func Test_BypassOnGET_NoHeadersRequired(t *testing.T) {
	_, rdb := newMiniRedis(t)
	var calls int32
	e := setupEcho(rdb, 30*time.Second, counting(&calls, http.StatusOK))
	rec := doReq(t, e, http.MethodGet, "/loans/abc", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func Test_NoKey_PassesThrough(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	var calls int32
	e := setupEcho(rdb, 30*time.Second, counting(&calls, http.StatusCreated))

	for i := 0; i < 2; i++ {
		rec := doReq(t, e, http.MethodPost, "/loans/abc/repayments", mkJSONBody(t, map[string]int{"x": 1}), nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("want 201, got %d", rec.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("handler should run every time without a key, ran %d", calls)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("nothing should be stored, got %v", mr.Keys())
	}
}

func Test_InvalidKey(t *testing.T) {
	_, rdb := newMiniRedis(t)
	var calls int32
	e := setupEcho(rdb, 30*time.Second, counting(&calls, http.StatusCreated))

	rec := doReq(t, e, http.MethodPost, "/loans/abc/repayments", mkJSONBody(t, map[string]int{"x": 1}),
		map[string]string{HeaderIdempotencyKey: "NOT-VALID"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid key => want 400, got %d", rec.Code)
	}
	if calls != 0 {
		t.Fatal("handler must not run")
	}
}

func Test_HappyPath_Then_Replay(t *testing.T) {
	_, rdb := newMiniRedis(t)
	var calls int32
	e := setupEcho(rdb, 2*time.Minute, counting(&calls, http.StatusCreated))
	h := map[string]string{HeaderIdempotencyKey: testKey}

	rec1 := doReq(t, e, http.MethodPost, "/loans/abc/repayments", mkJSONBody(t, map[string]any{"amount": "100"}), h)
	if rec1.Code != http.StatusCreated {
		t.Fatalf("first request => want 201, got %d, body: %s", rec1.Code, rec1.Body.String())
	}

	rec2 := doReq(t, e, http.MethodPost, "/loans/abc/repayments", mkJSONBody(t, map[string]any{"amount": "100"}), h)
	if rec2.Code != http.StatusCreated {
		t.Fatalf("replay => want 201, got %d, body: %s", rec2.Code, rec2.Body.String())
	}
	if rec1.Body.String() != rec2.Body.String() {
		t.Fatalf("replay body mismatch: %q vs %q", rec1.Body.String(), rec2.Body.String())
	}
	if rec2.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatal("replay should be flagged")
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times, want 1", calls)
	}

	var body map[string]any
	_ = json.Unmarshal(rec1.Body.Bytes(), &body)
	if body["key"] != testKey {
		t.Fatalf("handler did not see the key: %v", body)
	}

	// same key on another loan is a different request
	rec3 := doReq(t, e, http.MethodPost, "/loans/xyz/repayments", mkJSONBody(t, map[string]any{"amount": "100"}), h)
	if rec3.Code != http.StatusCreated || calls != 2 {
		t.Fatalf("other loan => want fresh 201, got %d calls=%d", rec3.Code, calls)
	}
}

func Test_ServerErrorsAreNotStored(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	var calls int32
	e := setupEcho(rdb, 2*time.Minute, counting(&calls, http.StatusServiceUnavailable))
	h := map[string]string{HeaderIdempotencyKey: testKey}

	for i := 0; i < 2; i++ {
		rec := doReq(t, e, http.MethodPost, "/loans/abc/repayments", mkJSONBody(t, map[string]int{"x": 1}), h)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("want 503, got %d", rec.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("a 5xx must be retryable, handler ran %d times", calls)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("5xx left keys behind: %v", mr.Keys())
	}
}

func Test_HandlerError_IsRecorded(t *testing.T) {
	_, rdb := newMiniRedis(t)
	e := setupEcho(rdb, time.Minute, func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusConflict, "nope")
	})
	h := map[string]string{HeaderIdempotencyKey: testKey}

	rec1 := doReq(t, e, http.MethodPost, "/loans/abc/repayments", mkJSONBody(t, map[string]int{"x": 1}), h)
	rec2 := doReq(t, e, http.MethodPost, "/loans/abc/repayments", mkJSONBody(t, map[string]int{"x": 1}), h)
	if rec1.Code != http.StatusConflict || rec2.Code != http.StatusConflict {
		t.Fatalf("want 409 twice, got %d and %d", rec1.Code, rec2.Code)
	}
	if rec1.Body.String() != rec2.Body.String() {
		t.Fatalf("replayed error body mismatch: %q vs %q", rec1.Body.String(), rec2.Body.String())
	}
}

func Test_Conflict_When_InProgress(t *testing.T) {
	_, rdb := newMiniRedis(t)
	var calls int32
	e := setupEcho(rdb, 2*time.Minute, counting(&calls, http.StatusCreated))

	path := "/loans/abc/repayments"
	body := []byte(`{"x":1}`)

	key := buildKey(http.MethodPost, path, testKey)
	entry := idempEntry{InProgress: true, BodySHA256: bodyHash(body), Key: testKey, CreatedAt: time.Now().UTC()}
	if ok, err := provisionalSet(context.Background(), rdb, key, entry); err != nil || !ok {
		t.Fatalf("seed provisional failed, ok=%v err=%v", ok, err)
	}

	rec := doReq(t, e, http.MethodPost, path, bytes.NewReader(body), map[string]string{HeaderIdempotencyKey: testKey})
	if rec.Code != http.StatusConflict {
		t.Fatalf("in-progress => want 409, got %d body=%s", rec.Code, rec.Body.String())
	}
	if calls != 0 {
		t.Fatal("handler must not run while the first request is in flight")
	}
}

func Test_SameKey_DifferentBody(t *testing.T) {
	_, rdb := newMiniRedis(t)
	var calls int32
	e := setupEcho(rdb, 2*time.Minute, counting(&calls, http.StatusCreated))

	path := "/loans/abc/repayments"
	key := buildKey(http.MethodPost, path, testKey)
	final := idempEntry{
		Code:       http.StatusCreated,
		Body:       []byte(`{"ok":true}`),
		BodySHA256: bodyHash([]byte(`{"x":1}`)),
		Key:        testKey,
		CreatedAt:  time.Now().UTC(),
	}
	if err := saveFinal(context.Background(), rdb, key, final, 5*time.Minute); err != nil {
		t.Fatalf("seed final failed: %v", err)
	}

	rec := doReq(t, e, http.MethodPost, path, bytes.NewReader([]byte(`{"x":2}`)), map[string]string{HeaderIdempotencyKey: testKey})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("different body same key => want 422, got %d", rec.Code)
	}
}

func Test_StoreUnavailable_Returns503(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	var calls int32
	e := setupEcho(rdb, time.Minute, counting(&calls, http.StatusCreated))

	rec := doReq(t, e, http.MethodPost, "/loans/abc/repayments", bytes.NewReader([]byte(`{}`)),
		map[string]string{HeaderIdempotencyKey: testKey})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("store unavailable => want 503, got %d", rec.Code)
	}
}
