// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/fidelio-project/fidelio/internal/lifecycle"
	"github.com/fidelio-project/fidelio/internal/model"
	"github.com/fidelio-project/fidelio/internal/process"
	"github.com/fidelio-project/fidelio/internal/servicemgr"
	"github.com/fidelio-project/fidelio/lib/coordination"
	"github.com/fidelio-project/fidelio/lib/naming"
	"github.com/prometheus/client_golang/prometheus"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSession implements Session for tests, in the style of
// internal/shutdown's fakeSession: scripted per-path responses,
// recorded calls, and watcher registrations a test can fire on
// demand.
type fakeSession struct {
	mu sync.Mutex

	existsSeq map[string][]fakeExists
	getData   map[string][]byte
	getResult map[string]coordination.Result

	createResult         coordination.Result
	createErr            error
	checkAndCreateResult coordination.Result
	checkAndCreateErr    error
	setDataResult        coordination.Result

	watchers map[string]coordination.Watcher

	created  []string
	setData  map[string][]byte
	deleted  []string
	closed   bool
	closeErr error
}

type fakeExists struct {
	exists bool
	result coordination.Result
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		existsSeq: make(map[string][]fakeExists),
		getData:   make(map[string][]byte),
		getResult: make(map[string]coordination.Result),
		watchers:  make(map[string]coordination.Watcher),
		setData:   make(map[string][]byte),
	}
}

func (f *fakeSession) Create(ctx context.Context, path string, data []byte, mode coordination.Mode) (coordination.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, path)
	if f.createResult == coordination.OK {
		return coordination.OK, nil
	}
	return f.createResult, f.createErr
}

func (f *fakeSession) CheckAndCreate(ctx context.Context, path string, data []byte, mode coordination.Mode, ownerID []byte) (coordination.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, path)
	if f.checkAndCreateResult == coordination.OK {
		return coordination.OK, nil
	}
	return f.checkAndCreateResult, f.checkAndCreateErr
}

func (f *fakeSession) Exists(ctx context.Context, path string, watch coordination.Watcher) (bool, coordination.NodeStat, coordination.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if watch != nil {
		f.watchers[path] = watch
	}

	seq := f.existsSeq[path]
	if len(seq) == 0 {
		return false, coordination.NodeStat{}, coordination.NoNode
	}
	next := seq[0]
	if len(seq) > 1 {
		f.existsSeq[path] = seq[1:]
	}
	return next.exists, coordination.NodeStat{}, next.result
}

func (f *fakeSession) GetData(ctx context.Context, path string, watch coordination.Watcher) ([]byte, coordination.NodeStat, coordination.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if watch != nil {
		f.watchers[path] = watch
	}
	result, ok := f.getResult[path]
	if !ok {
		result = coordination.OK
	}
	return f.getData[path], coordination.NodeStat{}, result
}

func (f *fakeSession) SetData(ctx context.Context, path string, data []byte, version int64) (coordination.NodeStat, coordination.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setData[path] = data
	if f.setDataResult == coordination.OK {
		return coordination.NodeStat{}, coordination.OK
	}
	return coordination.NodeStat{}, f.setDataResult
}

func (f *fakeSession) Delete(ctx context.Context, path string, version int64) coordination.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, path)
	return coordination.OK
}

func (f *fakeSession) RegisterStateWatcher(w coordination.Watcher) {}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return f.closeErr
}

func (f *fakeSession) fire(path string, ev coordination.Event) {
	f.mu.Lock()
	w := f.watchers[path]
	f.mu.Unlock()
	if w != nil {
		w(ev)
	}
}

func (f *fakeSession) hasWatcher(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.watchers[path]
	return ok
}

// scriptedHandler is a fake process.Handler, in the style of
// internal/process's own test doubles, used so runStart/mainMonitor
// exercise the broker's branching without spawning a real process.
type scriptedHandler struct {
	startErr error
	waitErr  error
	waitCh   chan struct{}
	started  bool
}

func (h *scriptedHandler) Init() error { return nil }
func (h *scriptedHandler) Start(ctx context.Context) error {
	h.started = true
	return h.startErr
}
func (h *scriptedHandler) WaitFor(ctx context.Context) error {
	if h.waitCh != nil {
		<-h.waitCh
	}
	return h.waitErr
}
func (h *scriptedHandler) Stop() error     { return nil }
func (h *scriptedHandler) IsRunning() bool { return h.started }

// newTestBroker builds a Broker wired to session for direct calls into
// protocol.go's unexported steps, bypassing New's coordination.Connect
// dependency.
func newTestBroker(t *testing.T, session Session) *Broker {
	t.Helper()
	cfg := Config{
		ServiceName:       "svc",
		Type:              model.Web,
		Root:              "/fidelio",
		CoordinationHosts: []string{"fake:2379"},
		Logger:            discardLogger(),
		Registerer:        prometheus.NewRegistry(),
	}
	b := New(cfg)
	b.session = session
	b.pool = newPool(context.Background(), workerCount)
	return b
}

func webDescriptor(serviceName string, requires ...string) model.ContainerDescriptor {
	return model.ContainerDescriptor{
		ServiceName: serviceName,
		Type:        model.Web,
		Requires:    requires,
		ProcessSpec: model.ProcessSpec{
			Start: model.Group{
				Main: model.Resource{Name: "main", Executable: "/bin/main", Kind: model.KindMain},
			},
		},
	}
}

func tableWithEntry(nsPath, serviceName string) *servicemgr.Table {
	table := servicemgr.New(1)
	table.Put(nsPath, serviceName)
	return table
}

func TestClaimContainerNodeSuccess(t *testing.T) {
	session := newFakeSession()
	session.checkAndCreateResult = coordination.OK
	b := newTestBroker(t, session)

	if err := b.claimContainerNode(context.Background()); err != nil {
		t.Fatalf("claimContainerNode() error = %v", err)
	}
	want := "/fidelio/containers/Web/svc"
	if b.containerPath != want {
		t.Errorf("containerPath = %q, want %q", b.containerPath, want)
	}
	if len(session.created) != 1 || session.created[0] != want {
		t.Errorf("created = %v, want [%s]", session.created, want)
	}
}

func TestClaimContainerNodeFailure(t *testing.T) {
	session := newFakeSession()
	session.checkAndCreateResult = coordination.NodeExists
	session.checkAndCreateErr = errors.New("already claimed")
	b := newTestBroker(t, session)

	if err := b.claimContainerNode(context.Background()); err == nil {
		t.Fatal("claimContainerNode() error = nil, want error")
	}
	if b.containerPath != "" {
		t.Errorf("containerPath = %q, want empty on failure", b.containerPath)
	}
}

func TestWaitForConfigurationAlreadyExists(t *testing.T) {
	session := newFakeSession()
	confPath := "/fidelio/conf/svc"
	session.existsSeq[confPath] = []fakeExists{{exists: true, result: coordination.OK}}
	session.getData[confPath] = []byte(`{"serviceName":"svc"}`)
	b := newTestBroker(t, session)

	data, err := b.waitForConfiguration(context.Background())
	if err != nil {
		t.Fatalf("waitForConfiguration() error = %v", err)
	}
	if string(data) != `{"serviceName":"svc"}` {
		t.Errorf("data = %q", data)
	}
}

func TestWaitForConfigurationWaitsForCreation(t *testing.T) {
	session := newFakeSession()
	confPath := "/fidelio/conf/svc"
	session.existsSeq[confPath] = []fakeExists{{exists: false, result: coordination.NoNode}}
	session.getData[confPath] = []byte(`{"serviceName":"svc"}`)
	b := newTestBroker(t, session)

	done := make(chan struct{})
	var data []byte
	var err error
	go func() {
		data, err = b.waitForConfiguration(context.Background())
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("waitForConfiguration returned before the watch fired")
	case <-time.After(20 * time.Millisecond):
	}

	session.fire(confPath, coordination.Event{Type: coordination.NodeCreated, Path: confPath})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waitForConfiguration did not return after watch fired")
	}
	if err != nil {
		t.Fatalf("waitForConfiguration() error = %v", err)
	}
	if string(data) != `{"serviceName":"svc"}` {
		t.Errorf("data = %q", data)
	}
}

func TestWaitForConfigurationCancelled(t *testing.T) {
	session := newFakeSession()
	confPath := "/fidelio/conf/svc"
	session.existsSeq[confPath] = []fakeExists{{exists: false, result: coordination.NoNode}}
	b := newTestBroker(t, session)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := b.waitForConfiguration(ctx); err == nil {
		t.Fatal("waitForConfiguration() error = nil, want context error")
	}
}

func TestProcessDescriptorRepublishes(t *testing.T) {
	session := newFakeSession()
	session.setDataResult = coordination.OK
	b := newTestBroker(t, session)
	b.containerPath = "/fidelio/containers/Web/svc"

	desc := webDescriptor("svc", "db")
	data, err := desc.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	if err := b.processDescriptor(context.Background(), data); err != nil {
		t.Fatalf("processDescriptor() error = %v", err)
	}
	if got := b.descriptorSnapshot(); got.ServiceName != "svc" {
		t.Errorf("descriptor = %+v", got)
	}
	if _, ok := session.setData[b.containerPath]; !ok {
		t.Error("descriptor was not republished on the container node")
	}
	if paths := b.tableNsPaths(); len(paths) != 1 {
		t.Errorf("tableNsPaths() = %v, want 1 dependency", paths)
	}
}

func TestProcessDescriptorRejectsInvalid(t *testing.T) {
	b := newTestBroker(t, newFakeSession())
	if err := b.processDescriptor(context.Background(), []byte(`{"serviceName":""}`)); err == nil {
		t.Fatal("processDescriptor() error = nil, want validation error")
	}
}

func TestProcessDescriptorRejectsMalformedJSON(t *testing.T) {
	b := newTestBroker(t, newFakeSession())
	if err := b.processDescriptor(context.Background(), []byte(`not json`)); err == nil {
		t.Fatal("processDescriptor() error = nil, want unmarshal error")
	}
}

func TestProcessDescriptorSetDataFailure(t *testing.T) {
	session := newFakeSession()
	session.setDataResult = coordination.ConnectionLoss
	b := newTestBroker(t, session)
	b.containerPath = "/fidelio/containers/Web/svc"

	data, _ := webDescriptor("svc").Marshal()
	if err := b.processDescriptor(context.Background(), data); err == nil {
		t.Fatal("processDescriptor() error = nil, want republish failure")
	}
}

func TestRegisterAsServiceSuccess(t *testing.T) {
	session := newFakeSession()
	session.createResult = coordination.OK
	b := newTestBroker(t, session)
	b.containerPath = "/fidelio/containers/Web/svc"
	b.descriptorMu.Lock()
	b.descriptor = webDescriptor("svc")
	b.descriptorMu.Unlock()

	if err := b.registerAsService(context.Background()); err != nil {
		t.Fatalf("registerAsService() error = %v", err)
	}
	want := "/fidelio/naming/svc"
	if b.nsPath != want {
		t.Errorf("nsPath = %q, want %q", b.nsPath, want)
	}
	if b.currentStatus() != model.NotInitialized {
		t.Errorf("status = %v, want NotInitialized", b.currentStatus())
	}
}

func TestRegisterAsServiceFailure(t *testing.T) {
	session := newFakeSession()
	session.createResult = coordination.NodeExists
	b := newTestBroker(t, session)
	b.descriptorMu.Lock()
	b.descriptor = webDescriptor("svc")
	b.descriptorMu.Unlock()

	if err := b.registerAsService(context.Background()); err == nil {
		t.Fatal("registerAsService() error = nil, want error")
	}
}

func TestQueryDependenciesResolvesExisting(t *testing.T) {
	session := newFakeSession()
	depPath := "/fidelio/naming/db"
	depDesc := webDescriptor("db")
	depDescData, _ := depDesc.Marshal()
	payload, _ := naming.EncodePayload(model.NamingPayload{ContainerPath: "/fidelio/containers/Web/db", Status: model.Initialized})

	session.existsSeq[depPath] = []fakeExists{{exists: true, result: coordination.OK}}
	session.getData[depPath] = payload
	session.getData["/fidelio/containers/Web/db"] = depDescData

	b := newTestBroker(t, session)
	b.machine = lifecycle.New(b, b)
	b.setTable(tableWithEntry(depPath, "db"))

	b.queryDependencies(context.Background())

	entry, ok := b.tableGet(depPath)
	if !ok || !entry.HasStatus || entry.Status != model.Initialized {
		t.Fatalf("tableGet(%s) = %+v, %v", depPath, entry, ok)
	}
	if !entry.HasDescriptor || entry.Descriptor.ServiceName != "db" {
		t.Errorf("dependency descriptor not recorded: %+v", entry)
	}
}

func TestOnDependencyNamingEventDeleted(t *testing.T) {
	session := newFakeSession()
	b := newTestBroker(t, session)
	b.machine = lifecycle.New(b, b)
	b.setTable(tableWithEntry("/fidelio/naming/db", "db"))

	b.onDependencyNamingEvent("/fidelio/naming/db")(coordination.Event{Type: coordination.NodeDeleted, Path: "/fidelio/naming/db"})

	deadline := time.After(time.Second)
	for {
		if _, ok := b.tableGet("/fidelio/naming/db"); !ok {
			return
		}
		select {
		case <-deadline:
			t.Fatal("dependency entry was not deleted")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestRunBootConnectFailure(t *testing.T) {
	b := newTestBroker(t, nil)
	b.machine = lifecycle.New(b, b)
	b.connect = func(ctx context.Context, hosts []string, timeout time.Duration, logger *slog.Logger) (Session, error) {
		return nil, errors.New("dial refused")
	}

	b.runBoot(context.Background())

	select {
	case <-b.doneCh:
	case <-time.After(time.Second):
		t.Fatal("runBoot did not finish after connect failure")
	}
	if b.machine.State() != lifecycle.Error {
		t.Errorf("state = %v, want ERROR", b.machine.State())
	}
}

// bootStubActions satisfies lifecycle.Actions with no-op entry actions,
// so a test can move the machine from BOOT to INIT without spawning
// runBoot, and observe runBoot's own transition to WAITING_DEPS without
// the init protocol running behind it.
type bootStubActions struct{}

func (bootStubActions) Boot()          {}
func (bootStubActions) InitContainer() {}
func (bootStubActions) Start()         {}
func (bootStubActions) Stop()          {}
func (bootStubActions) Update()        {}
func (bootStubActions) Fail(error)     {}

func TestRunBootSuccessArmsShutdownWatchAndAdvances(t *testing.T) {
	session := newFakeSession()
	session.existsSeq["/fidelio/shutdown"] = []fakeExists{{exists: false, result: coordination.NoNode}}
	session.checkAndCreateResult = coordination.OK
	confPath := "/fidelio/conf/svc"
	descData, _ := webDescriptor("svc").Marshal()
	session.existsSeq[confPath] = []fakeExists{{exists: true, result: coordination.OK}}
	session.getData[confPath] = descData
	session.setDataResult = coordination.OK
	session.createResult = coordination.OK

	b := newTestBroker(t, nil)
	// runBoot is the entry action of BOOT -> INIT, so the machine is in
	// INIT whenever it runs.
	b.machine = lifecycle.New(b, bootStubActions{})
	if err := b.machine.Handle(lifecycle.BootEvent); err != nil {
		t.Fatalf("Handle(BootEvent) error = %v", err)
	}
	b.connect = func(ctx context.Context, hosts []string, timeout time.Duration, logger *slog.Logger) (Session, error) {
		return session, nil
	}

	b.runBoot(context.Background())

	deadline := time.After(time.Second)
	for {
		if b.machine.State() == lifecycle.WaitingDeps {
			break
		}
		if b.machine.State() == lifecycle.Error {
			t.Fatal("machine entered ERROR during boot/init")
		}
		select {
		case <-deadline:
			t.Fatalf("machine never reached WAITING_DEPS, stuck at %v", b.machine.State())
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	if !session.hasWatcher("/fidelio/shutdown") {
		t.Error("shutdown watch was not armed")
	}
}

func TestOnStartFailurePublishesStatus(t *testing.T) {
	session := newFakeSession()
	session.setDataResult = coordination.OK
	b := newTestBroker(t, session)
	b.machine = lifecycle.New(b, b)
	b.nsPath = "/fidelio/naming/svc"

	before := b.machine.State()
	b.onStartFailure(context.Background(), process.NotRunning, errors.New("boom"))

	if data, ok := session.setData[b.nsPath]; !ok || len(data) == 0 {
		t.Error("onStartFailure did not publish a status")
	}
	if got := b.machine.State(); got != before {
		t.Errorf("onStartFailure changed machine state from %v to %v, want unchanged (process failures don't drive ERROR)", before, got)
	}
}

// TestFullBootToRunningThenMainExit drives the Broker through its
// entire BOOT -> RUNNING protocol via legitimate lifecycle events
// (bootEvent triggers Boot, which chains through InitContainer and
// Start on success), against a scripted Session and process.Handler
// instead of a live coordination store and a real subprocess. This is
// the integration-level counterpart to the narrower per-step tests
// above: it exercises runBoot, runInitContainer, claimContainerNode,
// waitForConfiguration, processDescriptor, registerAsService,
// queryDependencies, runStart, onStartSuccess, and mainMonitor as one
// connected sequence, the way the real protocol actually runs them.
func TestFullBootToRunningThenMainExit(t *testing.T) {
	session := newFakeSession()
	session.existsSeq["/fidelio/shutdown"] = []fakeExists{{exists: false, result: coordination.NoNode}}
	session.checkAndCreateResult = coordination.OK
	session.createResult = coordination.OK
	session.setDataResult = coordination.OK
	confPath := "/fidelio/conf/svc"
	descData, err := webDescriptor("svc").Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	session.existsSeq[confPath] = []fakeExists{{exists: true, result: coordination.OK}}
	session.getData[confPath] = descData

	waitCh := make(chan struct{})
	handler := &scriptedHandler{waitCh: waitCh}

	b := newTestBroker(t, nil)
	b.connect = func(ctx context.Context, hosts []string, timeout time.Duration, logger *slog.Logger) (Session, error) {
		return session, nil
	}
	b.newHandlerFn = func(model.Resource) process.Handler { return handler }
	b.machine = lifecycle.New(b, b)

	if err := b.handle(lifecycle.BootEvent); err != nil {
		t.Fatalf("handle(BootEvent) error = %v", err)
	}

	deadline := time.After(2 * time.Second)
	for b.machine.State() != lifecycle.Running {
		if b.machine.State() == lifecycle.Error {
			t.Fatal("machine entered ERROR before reaching RUNNING")
		}
		select {
		case <-deadline:
			t.Fatalf("machine never reached RUNNING, stuck at %v", b.machine.State())
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	nsPath := "/fidelio/naming/svc"
	payload, err := naming.DecodePayload(session.setData[nsPath])
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if payload.Status != model.Initialized {
		t.Fatalf("published status = %v, want Initialized", payload.Status)
	}

	close(waitCh)
	deadline = time.After(time.Second)
	for {
		payload, err := naming.DecodePayload(session.setData[nsPath])
		if err == nil && payload.Status == model.NotRunning {
			return
		}
		select {
		case <-deadline:
			t.Fatal("mainMonitor never published NotRunning after the main handler exited")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestMainMonitorSkipsPublishDuringShutdown(t *testing.T) {
	session := newFakeSession()
	b := newTestBroker(t, session)
	b.nsPath = "/fidelio/naming/svc"
	b.shuttingDown.Store(true)

	handler := &scriptedHandler{}
	b.newHandlerFn = func(model.Resource) process.Handler { return handler }
	b.procMgr = process.NewManager(webDescriptor("svc"), b.newHandlerFn, b.logger,
		func(process.FailureReason, error) {}, func() {})
	if err := b.procMgr.ExecStart(context.Background()); err != nil {
		t.Fatalf("ExecStart() error = %v", err)
	}

	b.mainMonitor(context.Background())

	if _, ok := session.setData[b.nsPath]; ok {
		t.Error("mainMonitor published a status during shutdown")
	}
}

func TestRunStopClosesSessionAndDeletesConfig(t *testing.T) {
	session := newFakeSession()
	b := newTestBroker(t, session)
	b.machine = lifecycle.New(b, b)
	b.descriptorMu.Lock()
	b.descriptor = webDescriptor("svc")
	b.descriptorMu.Unlock()

	handler := &scriptedHandler{}
	b.newHandlerFn = func(model.Resource) process.Handler { return handler }

	b.runStop(context.Background())

	if !session.closed {
		t.Error("runStop did not close the session")
	}
	want := "/fidelio/conf/svc"
	if len(session.deleted) != 1 || session.deleted[0] != want {
		t.Errorf("deleted = %v, want [%s]", session.deleted, want)
	}
	select {
	case <-b.doneCh:
	default:
		t.Error("runStop did not signal completion")
	}
}

func TestRunStopIsIdempotent(t *testing.T) {
	session := newFakeSession()
	b := newTestBroker(t, session)
	b.machine = lifecycle.New(b, b)
	b.descriptorMu.Lock()
	b.descriptor = webDescriptor("svc")
	b.descriptorMu.Unlock()
	b.newHandlerFn = func(model.Resource) process.Handler { return &scriptedHandler{} }

	b.runStop(context.Background())
	deletedAfterFirst := len(session.deleted)

	b.runStop(context.Background())
	if len(session.deleted) != deletedAfterFirst {
		t.Errorf("second runStop call re-ran the shutdown sequence: deleted = %v", session.deleted)
	}
}
