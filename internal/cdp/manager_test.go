package cdp

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdpoverride/internal/config"
	"cdpoverride/internal/handler"
	"cdpoverride/internal/resolver"
	"cdpoverride/internal/responder"
	"cdpoverride/pkg/model"
	"cdpoverride/pkg/traffic"
)

type recordingSubmitter struct {
	mu        sync.Mutex
	continued []string
	fulfilled []string
	ctxErrs   []error
}

func (r *recordingSubmitter) Continue(ctx context.Context, ex *traffic.Exchange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	r.continued = append(r.continued, ex.RequestID)
	return nil
}

func (r *recordingSubmitter) Fulfill(ctx context.Context, ex *traffic.Exchange, _ *traffic.SyntheticResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	r.fulfilled = append(r.fulfilled, ex.RequestID)
	return nil
}

func paused(id, url string, code int) *fetch.RequestPausedReply {
	return &fetch.RequestPausedReply{
		RequestID:          fetch.RequestID(id),
		Request:            network.Request{URL: url, Method: "GET"},
		ResponseStatusCode: &code,
	}
}

// slowBuilder 构造响应前先等待一段时间
type slowBuilder struct {
	handler.Builder
	delay time.Duration
}

func (b slowBuilder) Build(localPath string) (*traffic.SyntheticResponse, error) {
	time.Sleep(b.delay)
	return b.Builder.Build(localPath)
}

func newTestManager(t *testing.T, opts Options, sub handler.Submitter) *Manager {
	return newTestManagerWith(t, opts, sub, responder.New())
}

func newTestManagerWith(t *testing.T, opts Options, sub handler.Submitter, b handler.Builder) *Manager {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.js"), []byte("x"), 0o644))
	ov := config.Override{RemotePrefix: "/app", EntryRouteSuffix: "/app/", LocalRoot: root}
	timeout := time.Duration(opts.ProcessTimeoutMS) * time.Millisecond
	h := handler.New(handler.Config{Resolver: resolver.New(ov, nil), Builder: b, SubmitTimeout: timeout})

	m := New(opts, ov, h, nil)
	m.sub = sub
	m.target = "page-1"
	m.ctx, m.cancel = context.WithCancel(context.Background())
	t.Cleanup(m.cancel)
	m.pool = newWorkerPool(opts.Concurrency, opts.PendingCapacity)
	return m
}

func TestPatterns(t *testing.T) {
	ps := Patterns(config.Override{RemotePrefix: "/static/app", EntryRouteSuffix: "/dashboard/"})
	require.Len(t, ps, 2)
	assert.Equal(t, "*/static/app*", *ps[0].URLPattern)
	assert.Equal(t, "*/dashboard/", *ps[1].URLPattern)
	for _, p := range ps {
		assert.Equal(t, fetch.RequestStageResponse, p.RequestStage)
	}
}

func TestSelectTarget(t *testing.T) {
	targets := []*devtool.Target{
		{ID: "sw", Type: devtool.ServiceWorker},
		{ID: "p1", Type: devtool.Page},
		{ID: "p2", Type: devtool.Page},
	}
	assert.Equal(t, "p1", selectTarget(targets, "").ID)
	assert.Equal(t, "p2", selectTarget(targets, "p2").ID)
	assert.Nil(t, selectTarget(targets, "missing"))
	assert.Nil(t, selectTarget(targets[:1], ""))
}

func TestDispatchRoutesThroughHandler(t *testing.T) {
	sub := &recordingSubmitter{}
	m := newTestManager(t, Options{Concurrency: 2, PendingCapacity: 8}, sub)

	m.dispatchPaused(paused("a", "https://site/app/main.js", 200))
	m.dispatchPaused(paused("b", "https://site/app/missing.js", 200))
	m.dispatchPaused(paused("c", "https://site/app/main.js", 302))
	m.pool.stop()
	m.inflight.Wait()

	assert.ElementsMatch(t, []string{"a"}, sub.fulfilled)
	assert.ElementsMatch(t, []string{"b", "c"}, sub.continued)
}

func TestDispatchWithoutPool(t *testing.T) {
	sub := &recordingSubmitter{}
	m := newTestManager(t, Options{}, sub)
	require.Nil(t, m.pool)

	m.dispatchPaused(paused("a", "https://site/app/main.js", 404))
	m.inflight.Wait()

	assert.Equal(t, []string{"a"}, sub.fulfilled)
}

func TestDispatchDegradesWhenQueueFull(t *testing.T) {
	sub := &recordingSubmitter{}
	events := make(chan model.Event, 4)
	m := newTestManager(t, Options{Concurrency: 1, PendingCapacity: 0, Events: events}, sub)

	// 占住唯一的工作协程，无缓冲队列下后续提交必然失败
	release := make(chan struct{})
	require.Eventually(t, func() bool {
		return m.pool.submit(func() { <-release })
	}, time.Second, time.Millisecond)

	m.dispatchPaused(paused("overflow", "https://site/app/main.js", 200))

	sub.mu.Lock()
	assert.Equal(t, []string{"overflow"}, sub.continued)
	assert.Empty(t, sub.fulfilled)
	sub.mu.Unlock()
	evt := <-events
	assert.Equal(t, model.EventDegraded, evt.Type)
	assert.Equal(t, "overflow", evt.RequestID)
	assert.Equal(t, model.DispositionContinue, evt.Disposition)

	close(release)
	m.pool.stop()
	m.inflight.Wait()
}

func TestSlowBuildStillFulfillsWithinSubmitTimeout(t *testing.T) {
	sub := &recordingSubmitter{}
	opts := Options{Concurrency: 1, PendingCapacity: 4, ProcessTimeoutMS: 50}
	m := newTestManagerWith(t, opts, sub, slowBuilder{Builder: responder.New(), delay: 80 * time.Millisecond})

	m.dispatchPaused(paused("slow", "https://site/app/main.js", 200))
	m.pool.stop()
	m.inflight.Wait()

	sub.mu.Lock()
	defer sub.mu.Unlock()
	assert.Equal(t, []string{"slow"}, sub.fulfilled)
	assert.Empty(t, sub.continued)
	assert.Equal(t, []error{nil}, sub.ctxErrs)
}
