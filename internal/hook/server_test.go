package hook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/chatbridge/internal/bridge"
	"github.com/kazz187/chatbridge/internal/push"
	"github.com/kazz187/chatbridge/internal/registry"
)

type recordingPipeline struct {
	mu     sync.Mutex
	events []bridge.Event
}

func (p *recordingPipeline) HandleEvent(_ context.Context, ev bridge.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPipeline) received() []bridge.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]bridge.Event, len(p.events))
	copy(out, p.events)
	return out
}

type staticRepo struct {
	projects []*registry.Project
}

func (r staticRepo) Get(_ context.Context, name string) (*registry.Project, error) {
	for _, p := range r.projects {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, nil
}

func (r staticRepo) List(context.Context) ([]*registry.Project, error) {
	return r.projects, nil
}

func (staticRepo) Upsert(context.Context, *registry.Project) error { return nil }
func (staticRepo) Delete(context.Context, string) error            { return nil }

type memSubscriptions struct {
	mu   sync.Mutex
	subs []*push.Subscription
}

func (r *memSubscriptions) List(context.Context) ([]*push.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*push.Subscription, len(r.subs))
	copy(out, r.subs)
	return out, nil
}

func (r *memSubscriptions) Upsert(_ context.Context, sub *push.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.subs {
		if s.ID == sub.ID {
			r.subs[i] = sub
			return nil
		}
	}
	r.subs = append(r.subs, sub)
	return nil
}

func (r *memSubscriptions) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.subs {
		if s.ID == id {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			return nil
		}
	}
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *recordingPipeline) {
	t.Helper()
	ts, pipeline, _ := newTestServerWithSubs(t)
	return ts, pipeline
}

func newTestServerWithSubs(t *testing.T) (*httptest.Server, *recordingPipeline, *memSubscriptions) {
	t.Helper()
	reg := registry.NewService(staticRepo{projects: []*registry.Project{
		{
			Name:        "proj",
			ChannelID:   "C1",
			TmuxSession: "main",
			AgentType:   "claude",
			Window:      "agent",
		},
	}})
	require.NoError(t, reg.Load(context.Background()))

	pipeline := &recordingPipeline{}
	subs := &memSubscriptions{}
	ts := httptest.NewServer(NewServer(pipeline, reg, subs).Handler())
	t.Cleanup(ts.Close)
	return ts, pipeline, subs
}

func postEvent(t *testing.T, ts *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/hooks/event", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHandleEventAccepted(t *testing.T) {
	ts, pipeline := newTestServer(t)

	resp := postEvent(t, ts, `{"projectName":"proj","type":"session.idle","text":"Done!","agentType":"claude"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body struct {
		Accepted bool `json:"accepted"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Accepted)

	events := pipeline.received()
	require.Len(t, events, 1)
	assert.Equal(t, "proj", events[0].ProjectName)
	assert.Equal(t, bridge.EventSessionIdle, events[0].Type)
	assert.Equal(t, "Done!", events[0].Text)
}

func TestHandleEventInvalidJSON(t *testing.T) {
	ts, pipeline := newTestServer(t)

	resp := postEvent(t, ts, `{"projectName":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, pipeline.received())
}

func TestHandleEventNonObjectPayload(t *testing.T) {
	ts, pipeline := newTestServer(t)

	resp := postEvent(t, ts, `[{"projectName":"proj"}]`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, pipeline.received())
}

func TestHandleEventMissingFields(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing projectName", `{"type":"session.idle"}`},
		{"missing type", `{"projectName":"proj"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, pipeline := newTestServer(t)
			resp := postEvent(t, ts, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Empty(t, pipeline.received())
		})
	}
}

func TestHandleEventUnknownProject(t *testing.T) {
	ts, pipeline := newTestServer(t)

	resp := postEvent(t, ts, `{"projectName":"ghost","type":"session.idle"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Empty(t, pipeline.received())

	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "unknown project", body.Message)
}

func TestRegisterSubscription(t *testing.T) {
	ts, _, subs := newTestServerWithSubs(t)

	resp, err := http.Post(ts.URL+"/push/subscriptions", "application/json",
		strings.NewReader(`{"endpoint":"https://push.example/ep1","p256dh_key":"pk","auth_key":"ak"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.ID)

	stored, err := subs.List(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, body.ID, stored[0].ID)
	assert.Equal(t, "https://push.example/ep1", stored[0].Endpoint)
	assert.Equal(t, "pk", stored[0].P256dhKey)
	assert.Equal(t, "ak", stored[0].AuthKey)
}

func TestRegisterSubscriptionIdempotentPerEndpoint(t *testing.T) {
	ts, _, subs := newTestServerWithSubs(t)

	post := func(payload string) string {
		resp, err := http.Post(ts.URL+"/push/subscriptions", "application/json", strings.NewReader(payload))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var body struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return body.ID
	}

	first := post(`{"endpoint":"https://push.example/ep1","p256dh_key":"pk","auth_key":"ak"}`)
	second := post(`{"endpoint":"https://push.example/ep1","p256dh_key":"pk2","auth_key":"ak2"}`)
	assert.Equal(t, first, second)

	stored, err := subs.List(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "pk2", stored[0].P256dhKey)
}

func TestRegisterSubscriptionMissingFields(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing endpoint", `{"p256dh_key":"pk","auth_key":"ak"}`},
		{"missing p256dh", `{"endpoint":"https://push.example/ep1","auth_key":"ak"}`},
		{"missing auth", `{"endpoint":"https://push.example/ep1","p256dh_key":"pk"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _, subs := newTestServerWithSubs(t)
			resp, err := http.Post(ts.URL+"/push/subscriptions", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			stored, err := subs.List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, stored)
		})
	}
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
