// Package notification holds the transient toasts shown to console operators.
// Toasts auto-dismiss after a TTL, are kept per operator and are pushed live
// through the websocket hub.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carecase/console/internal/platform/auth"
	"github.com/carecase/console/internal/platform/websocket"
)

// DefaultTTL is how long a toast stays visible.
const DefaultTTL = 3 * time.Second

// Kind is the visual category of a toast.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// Toast is a single transient notification.
type Toast struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	Feature   string    `json:"feature,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (t Toast) expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template is a reusable toast message.
type Template struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	Body string `json:"body"`
}

// TemplateEngine renders {{key}} placeholders in registered templates.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// Built-in template ids.
const (
	TplRecordCreated = "record-created"
	TplLoadFailed    = "load-failed"
	TplExportReady   = "export-ready"
	TplMissingFiles  = "missing-files"
)

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	for _, t := range []Template{
		{ID: TplRecordCreated, Kind: KindSuccess, Body: "{{report}} submitted successfully."},
		{ID: TplLoadFailed, Kind: KindError, Body: "Could not load {{report}}. {{reason}}"},
		{ID: TplExportReady, Kind: KindInfo, Body: "{{report}} export is ready ({{count}} records)."},
		{ID: TplMissingFiles, Kind: KindInfo, Body: "Please upload all required documents: {{missing}}."},
	} {
		e.RegisterTemplate(t)
	}
	return e
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render fills the template's placeholders. Keys absent from data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (Kind, string, error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	body := t.Body
	for k, v := range data {
		body = strings.ReplaceAll(body, "{{"+k+"}}", v)
	}
	return t.Kind, strings.TrimSpace(body), nil
}

// ---------------------------------------------------------------------------
// Center
// ---------------------------------------------------------------------------

// Center stores the live toasts of every operator.
type Center struct {
	mu        sync.Mutex
	toasts    map[string][]Toast // operator -> toasts, oldest first
	ttl       time.Duration
	now       func() time.Time
	publisher websocket.EventPublisher
	templates *TemplateEngine
	logger    zerolog.Logger
}

// NewCenter creates a Center. publisher may be nil, in which case toasts are
// only readable through Active.
func NewCenter(ttl time.Duration, publisher websocket.EventPublisher, logger zerolog.Logger) *Center {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Center{
		toasts:    make(map[string][]Toast),
		ttl:       ttl,
		now:       time.Now,
		publisher: publisher,
		templates: NewTemplateEngine(),
		logger:    logger.With().Str("component", "notification").Logger(),
	}
}

// Push records a toast for operator and publishes it on the operator topic.
func (c *Center) Push(ctx context.Context, operator, feature string, kind Kind, message string) Toast {
	now := c.now().UTC()
	t := Toast{
		ID:        uuid.New().String(),
		Kind:      kind,
		Message:   message,
		Feature:   feature,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}

	c.mu.Lock()
	c.toasts[operator] = append(c.live(operator, now), t)
	c.mu.Unlock()

	c.logger.Debug().Str("operator", operator).Str("feature", feature).Str("kind", string(kind)).Msg(message)

	if c.publisher != nil {
		data, err := json.Marshal(t)
		if err != nil {
			c.logger.Error().Err(err).Msg("failed to marshal toast")
			return t
		}
		ev := websocket.Event{
			Type:    websocket.EventNotification,
			Topic:   websocket.OperatorTopic(operator),
			Feature: feature,
			Data:    data,
		}
		if err := c.publisher.Publish(ctx, ev); err != nil {
			c.logger.Warn().Err(err).Str("operator", operator).Msg("failed to publish toast")
		}
	}
	return t
}

// PushTemplate renders templateID and pushes the result.
func (c *Center) PushTemplate(ctx context.Context, operator, feature, templateID string, data map[string]string) (Toast, error) {
	kind, msg, err := c.templates.Render(templateID, data)
	if err != nil {
		return Toast{}, err
	}
	return c.Push(ctx, operator, feature, kind, msg), nil
}

// Active returns the operator's unexpired toasts, oldest first.
func (c *Center) Active(operator string) []Toast {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := c.live(operator, c.now())
	if len(live) == 0 {
		delete(c.toasts, operator)
		return []Toast{}
	}
	c.toasts[operator] = live
	out := make([]Toast, len(live))
	copy(out, live)
	return out
}

// Dismiss removes a toast before it expires.
func (c *Center) Dismiss(operator, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.toasts[operator]
	for i, t := range list {
		if t.ID == id {
			c.toasts[operator] = append(list[:i:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// Sweep drops expired toasts of every operator.
func (c *Center) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for op := range c.toasts {
		if live := c.live(op, now); len(live) > 0 {
			c.toasts[op] = live
		} else {
			delete(c.toasts, op)
		}
	}
}

// live must be called with c.mu held.
func (c *Center) live(operator string, now time.Time) []Toast {
	list := c.toasts[operator]
	out := list[:0:0]
	for _, t := range list {
		if !t.expired(now) {
			out = append(out, t)
		}
	}
	return out
}

// Operators returns the operators with stored toasts, sorted.
func (c *Center) Operators() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ops := make([]string, 0, len(c.toasts))
	for op := range c.toasts {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// For binds the center to one operator and feature. The result satisfies the
// Success/Error/Info notifier used by the action sequencer.
func (c *Center) For(ctx context.Context, operator, feature string) *OperatorNotifier {
	return &OperatorNotifier{center: c, ctx: context.WithoutCancel(ctx), operator: operator, feature: feature}
}

// OperatorNotifier pushes toasts for a single operator and feature.
type OperatorNotifier struct {
	center   *Center
	ctx      context.Context
	operator string
	feature  string
}

func (n *OperatorNotifier) Success(message string) {
	n.center.Push(n.ctx, n.operator, n.feature, KindSuccess, message)
}

func (n *OperatorNotifier) Error(message string) {
	n.center.Push(n.ctx, n.operator, n.feature, KindError, message)
}

func (n *OperatorNotifier) Info(message string) {
	n.center.Push(n.ctx, n.operator, n.feature, KindInfo, message)
}

// ---------------------------------------------------------------------------
// HTTP Handler
// ---------------------------------------------------------------------------

// NotificationHandler exposes the calling operator's toasts.
type NotificationHandler struct {
	center *Center
}

func NewNotificationHandler(center *Center) *NotificationHandler {
	return &NotificationHandler{center: center}
}

func (h *NotificationHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/notifications", h.HandleList)
	g.DELETE("/notifications/:id", h.HandleDismiss)
}

// HandleList handles GET /notifications.
func (h *NotificationHandler) HandleList(c echo.Context) error {
	operator := auth.UserIDFromContext(c.Request().Context())
	if operator == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"notifications": h.center.Active(operator)})
}

// HandleDismiss handles DELETE /notifications/:id.
func (h *NotificationHandler) HandleDismiss(c echo.Context) error {
	operator := auth.UserIDFromContext(c.Request().Context())
	if operator == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	if !h.center.Dismiss(operator, c.Param("id")) {
		return echo.NewHTTPError(http.StatusNotFound, "notification not found")
	}
	return c.NoContent(http.StatusNoContent)
}
