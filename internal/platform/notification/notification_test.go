package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carecase/console/internal/platform/auth"
	"github.com/carecase/console/internal/platform/websocket"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []websocket.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev websocket.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func newTestCenter(pub websocket.EventPublisher) (*Center, *time.Time) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	c := NewCenter(3*time.Second, pub, zerolog.Nop())
	c.now = func() time.Time { return now }
	return c, &now
}

func TestTemplateEngine_Render(t *testing.T) {
	eng := NewTemplateEngine()
	kind, msg, err := eng.Render(TplRecordCreated, map[string]string{"report": "Screening application"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind != KindSuccess {
		t.Errorf("kind = %q, want success", kind)
	}
	if msg != "Screening application submitted successfully." {
		t.Errorf("msg = %q", msg)
	}

	if _, _, err := eng.Render("nonexistent", nil); err == nil {
		t.Fatal("expected error for missing template")
	}
}

func TestTemplateEngine_RegisterOverrides(t *testing.T) {
	eng := NewTemplateEngine()
	eng.RegisterTemplate(Template{ID: TplRecordCreated, Kind: KindInfo, Body: "Saved {{report}}"})
	kind, msg, _ := eng.Render(TplRecordCreated, map[string]string{"report": "x"})
	if kind != KindInfo || msg != "Saved x" {
		t.Errorf("got %q %q", kind, msg)
	}
}

func TestCenter_PushAndExpire(t *testing.T) {
	center, now := newTestCenter(nil)

	toast := center.Push(context.Background(), "op-1", "screenings", KindSuccess, "Approved")
	if toast.ID == "" {
		t.Fatal("expected toast id")
	}
	if !toast.ExpiresAt.Equal(toast.CreatedAt.Add(3 * time.Second)) {
		t.Errorf("unexpected expiry %v", toast.ExpiresAt)
	}

	if got := center.Active("op-1"); len(got) != 1 || got[0].Message != "Approved" {
		t.Fatalf("expected 1 active toast, got %+v", got)
	}
	if got := center.Active("op-2"); len(got) != 0 {
		t.Fatalf("other operator must see nothing, got %+v", got)
	}

	*now = now.Add(3 * time.Second)
	if got := center.Active("op-1"); len(got) != 0 {
		t.Fatalf("expected toast to auto-dismiss, got %+v", got)
	}
}

func TestCenter_Dismiss(t *testing.T) {
	center, _ := newTestCenter(nil)
	a := center.Push(context.Background(), "op-1", "", KindInfo, "a")
	b := center.Push(context.Background(), "op-1", "", KindInfo, "b")

	if !center.Dismiss("op-1", a.ID) {
		t.Fatal("expected dismiss to succeed")
	}
	if center.Dismiss("op-1", a.ID) {
		t.Fatal("second dismiss must fail")
	}
	got := center.Active("op-1")
	if len(got) != 1 || got[0].ID != b.ID {
		t.Fatalf("unexpected toasts %+v", got)
	}
}

func TestCenter_Sweep(t *testing.T) {
	center, now := newTestCenter(nil)
	center.Push(context.Background(), "op-1", "", KindInfo, "old")
	*now = now.Add(2 * time.Second)
	center.Push(context.Background(), "op-2", "", KindInfo, "new")
	*now = now.Add(2 * time.Second)

	center.Sweep()
	ops := center.Operators()
	if len(ops) != 1 || ops[0] != "op-2" {
		t.Fatalf("expected only op-2 left, got %v", ops)
	}
}

func TestCenter_PublishesOnOperatorTopic(t *testing.T) {
	pub := &recordingPublisher{}
	center, _ := newTestCenter(pub)

	center.Push(context.Background(), "op-1", "users", KindError, "Something went wrong. Please try again.")

	if len(pub.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.events))
	}
	ev := pub.events[0]
	if ev.Topic != "operator/op-1" || ev.Type != websocket.EventNotification || ev.Feature != "users" {
		t.Errorf("unexpected event %+v", ev)
	}
	var toast Toast
	if err := json.Unmarshal(ev.Data, &toast); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if toast.Kind != KindError {
		t.Errorf("kind = %q", toast.Kind)
	}
}

func TestCenter_PublishErrorKeepsToast(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("hub closed")}
	center, _ := newTestCenter(pub)
	center.Push(context.Background(), "op-1", "", KindInfo, "still stored")
	if len(center.Active("op-1")) != 1 {
		t.Fatal("toast must be stored even when publishing fails")
	}
}

func TestCenter_PushTemplate(t *testing.T) {
	center, _ := newTestCenter(nil)
	toast, err := center.PushTemplate(context.Background(), "op-1", "patients", TplMissingFiles, map[string]string{"missing": "Valid ID"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if toast.Kind != KindInfo || toast.Message != "Please upload all required documents: Valid ID." {
		t.Errorf("unexpected toast %+v", toast)
	}
	if _, err := center.PushTemplate(context.Background(), "op-1", "", "nope", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestOperatorNotifier(t *testing.T) {
	center, _ := newTestCenter(nil)
	ctx, cancel := context.WithCancel(context.Background())
	n := center.For(ctx, "op-1", "screenings")
	cancel()

	n.Success("ok")
	n.Error("bad")
	n.Info("fyi")

	got := center.Active("op-1")
	if len(got) != 3 {
		t.Fatalf("expected 3 toasts, got %d", len(got))
	}
	want := []Kind{KindSuccess, KindError, KindInfo}
	for i, k := range want {
		if got[i].Kind != k || got[i].Feature != "screenings" {
			t.Errorf("toast %d = %+v", i, got[i])
		}
	}
}

func TestCenter_ConcurrentPush(t *testing.T) {
	center := NewCenter(time.Minute, nil, zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			center.Push(context.Background(), "op-1", "", KindInfo, "x")
		}()
	}
	wg.Wait()
	if n := len(center.Active("op-1")); n != 20 {
		t.Fatalf("expected 20 toasts, got %d", n)
	}
}

func withOperator(req *http.Request, id string) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, id))
}

func TestNotificationHandler_List(t *testing.T) {
	center, _ := newTestCenter(nil)
	center.Push(context.Background(), "op-1", "", KindSuccess, "done")
	h := NewNotificationHandler(center)

	e := echo.New()
	req := withOperator(httptest.NewRequest(http.MethodGet, "/notifications", nil), "op-1")
	rec := httptest.NewRecorder()
	if err := h.HandleList(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Notifications []Toast `json:"notifications"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Notifications) != 1 || body.Notifications[0].Message != "done" {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	anon := e.NewContext(httptest.NewRequest(http.MethodGet, "/notifications", nil), httptest.NewRecorder())
	err := h.HandleList(anon)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestNotificationHandler_Dismiss(t *testing.T) {
	center, _ := newTestCenter(nil)
	toast := center.Push(context.Background(), "op-1", "", KindInfo, "x")
	h := NewNotificationHandler(center)
	e := echo.New()

	tests := []struct {
		name     string
		id       string
		wantCode int
	}{
		{"existing", toast.ID, http.StatusNoContent},
		{"already dismissed", toast.ID, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := withOperator(httptest.NewRequest(http.MethodDelete, "/notifications/"+tt.id, nil), "op-1")
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.SetParamNames("id")
			c.SetParamValues(tt.id)
			err := h.HandleDismiss(c)
			code := rec.Code
			if he, ok := err.(*echo.HTTPError); ok {
				code = he.Code
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
		})
	}
}
