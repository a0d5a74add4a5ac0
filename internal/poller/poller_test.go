// internal/poller/poller_test.go
package poller

import (
	"context"
	"errors"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfg "github.com/tamzrod/vsd-gateway/internal/config"
	"github.com/tamzrod/vsd-gateway/internal/events"
	"github.com/tamzrod/vsd-gateway/internal/health"
	"github.com/tamzrod/vsd-gateway/internal/param"
	"github.com/tamzrod/vsd-gateway/internal/transport"
)

// ---- fakes ----

type readCall struct {
	slave byte
	addr  uint16
	qty   uint16
}

type fakeTransport struct {
	mu        sync.Mutex
	open      bool
	connectOK bool
	connects  int
	closes    int
	reads     []readCall
	respond   func(slave byte, addr uint16) ([]byte, error)

	inFlight    int
	maxInFlight int
}

func (f *fakeTransport) EnsureConnected(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectOK {
		f.open = true
	}
	return f.open
}

func (f *fakeTransport) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeTransport) Read(slave byte, addr, qty uint16) ([]byte, error) {
	f.mu.Lock()
	f.reads = append(f.reads, readCall{slave: slave, addr: addr, qty: qty})
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	respond := f.respond
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if respond == nil {
		return lowFirst(0), nil
	}
	return respond(slave, addr)
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.open = false
}

func (f *fakeTransport) readsFor(slave byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.reads {
		if r.slave == slave {
			n++
		}
	}
	return n
}

type fakeSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *fakeSink) Publish(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *fakeSink) data() []events.Data {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Data
	for _, e := range s.events {
		if d, ok := e.(events.Data); ok {
			out = append(out, d)
		}
	}
	return out
}

func (s *fakeSink) transitions() []events.Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Transition
	for _, e := range s.events {
		if t, ok := e.(events.Transition); ok {
			out = append(out, t)
		}
	}
	return out
}

type fakeMap struct {
	readings map[string][]events.Reading
	health   []health.Device
}

func (m *fakeMap) WriteReadings(device string, set []events.Reading) error {
	if m.readings == nil {
		m.readings = make(map[string][]events.Reading)
	}
	m.readings[device] = set
	return nil
}

func (m *fakeMap) WriteHealth(d health.Device) error {
	m.health = append(m.health, d)
	return nil
}

type fakeRecorder struct {
	nopRecorder
	results   []string
	paramErrs int
	failures  map[string]int
}

func (r *fakeRecorder) Cycle(result string, _ time.Duration) { r.results = append(r.results, result) }
func (r *fakeRecorder) ParameterError(string, string) { r.paramErrs++ }
func (r *fakeRecorder) DeviceFailure(_ string, kind string) {
	if r.failures == nil {
		r.failures = make(map[string]int)
	}
	r.failures[kind]++
}

// lowFirst encodes v as the drive sends it: low word first, big-endian registers.
func lowFirst(v int32) []byte {
	u := uint32(v)
	return []byte{byte(u >> 8), byte(u), byte(u >> 24), byte(u >> 16)}
}

var errDevice = &transport.Error{Kind: transport.KindDevice, Op: "read", Err: errors.New("timeout")}
var errPort = &transport.Error{Kind: transport.KindPort, Op: "read", Err: syscall.EIO}

func mustPoint(t *testing.T, name, num string, scale int) param.Point {
	t.Helper()
	pt, err := param.Resolve(param.Parameter{Name: name, GroupIndex: num, Unit: "x", Width: param.Width32, Scale: scale})
	require.NoError(t, err)
	return pt
}

func testConfig(t *testing.T) Config {
	return Config{
		Interval: time.Second,
		Parameters: []param.Point{
			mustPoint(t, "speed", "01.01", 100),     // 20201
			mustPoint(t, "frequency", "01.06", 100), // 20211
		},
		Devices: []health.Device{
			{ID: 1, Name: "pmp1", Label: "PMP 1"},
			{ID: 2, Name: "pmp2", Label: "PMP 2"},
		},
		Policy: health.Policy{FailThreshold: 3, Cooldown: 30 * time.Second},
	}
}

type harness struct {
	p     *Poller
	tr    *fakeTransport
	sink  *fakeSink
	regs  *fakeMap
	rec   *fakeRecorder
	clock *clock.Mock
}

func newHarness(t *testing.T, c Config) *harness {
	t.Helper()
	h := &harness{
		tr:    &fakeTransport{open: true, connectOK: true},
		sink:  &fakeSink{},
		regs:  &fakeMap{},
		rec:   &fakeRecorder{},
		clock: clock.NewMock(),
	}
	p, err := New(c, h.tr, h.sink, zerolog.Nop(),
		WithClock(h.clock),
		WithRecorder(h.rec),
		WithMapWriter(h.regs),
	)
	require.NoError(t, err)
	h.p = p
	return h
}

func (h *harness) device(name string) health.Device {
	for _, d := range h.p.Devices() {
		if d.Name == name {
			return d
		}
	}
	return health.Device{}
}

// ---- tests ----

func TestNewRejectsBadConfig(t *testing.T) {
	good := testConfig(t)

	cases := []struct {
		desc string
		mut  func(c *Config)
	}{
		{desc: "zero interval", mut: func(c *Config) { c.Interval = 0 }},
		{desc: "negative delay", mut: func(c *Config) { c.InterDeviceDelay = -time.Millisecond }},
		{desc: "no parameters", mut: func(c *Config) { c.Parameters = nil }},
		{desc: "no devices", mut: func(c *Config) { c.Devices = nil }},
	}

	for _, tc := range cases {
		c := good
		tc.mut(&c)
		_, err := New(c, &fakeTransport{}, &fakeSink{}, zerolog.Nop())
		assert.Error(t, err, tc.desc)
	}
}

func TestCycleReadsAndPublishes(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.tr.respond = func(slave byte, addr uint16) ([]byte, error) {
		if addr == 20211 {
			return lowFirst(5000), nil
		}
		return lowFirst(150000), nil
	}

	res := h.p.Cycle(context.Background())

	assert.True(t, res.Connected)
	assert.False(t, res.Aborted)
	assert.Equal(t, []string{"pmp1", "pmp2"}, res.Probed)
	assert.Equal(t, []string{ResultOK}, h.rec.results)

	data := h.sink.data()
	require.Len(t, data, 2)
	assert.Equal(t, "pmp1", data[0].Device)
	assert.Equal(t, []events.Reading{
		{Name: "speed", Unit: "x", Raw: 150000, Value: 1500},
		{Name: "frequency", Unit: "x", Raw: 5000, Value: 50},
	}, data[0].Readings)

	assert.Len(t, h.regs.readings["pmp2"], 2)
	assert.Equal(t, []readCall{
		{slave: 1, addr: 20201, qty: 2},
		{slave: 1, addr: 20211, qty: 2},
		{slave: 2, addr: 20201, qty: 2},
		{slave: 2, addr: 20211, qty: 2},
	}, h.tr.reads)
}

func TestPartialFailureIsSuccess(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.tr.respond = func(slave byte, addr uint16) ([]byte, error) {
		if addr == 20201 {
			return nil, errDevice
		}
		return lowFirst(5000), nil
	}

	h.p.Cycle(context.Background())

	d := h.device("pmp1")
	assert.Equal(t, health.Online, d.State)
	assert.Zero(t, d.FailCount)
	assert.Equal(t, 2, h.rec.paramErrs)

	data := h.sink.data()
	require.Len(t, data, 2)
	assert.NotEmpty(t, data[0].Readings[0].Error)
	assert.True(t, data[0].Readings[1].OK())
}

func TestAllFailedThreeTimesGoesOfflineThenCooldown(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.tr.respond = func(slave byte, addr uint16) ([]byte, error) {
		if slave == 2 {
			return nil, errDevice
		}
		return lowFirst(1), nil
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		h.p.Cycle(ctx)
		h.clock.Add(time.Second)
	}

	d := h.device("pmp2")
	assert.Equal(t, health.Offline, d.State)
	assert.Equal(t, 3, d.FailCount)
	assert.Equal(t, health.CodeAllFailed, d.LastErrorCode)
	assert.Equal(t, 3, h.rec.failures["all_failed"])

	trs := h.sink.transitions()
	require.Len(t, trs, 1)
	assert.Equal(t, "pmp2", trs[0].Device)
	assert.Equal(t, health.Offline, trs[0].State)

	// inside cooldown: pmp2 is not addressed at all
	before := h.tr.readsFor(2)
	res := h.p.Cycle(ctx)
	assert.Equal(t, []string{"pmp2"}, res.Skipped)
	assert.Equal(t, before, h.tr.readsFor(2))

	// pmp1 is unaffected
	assert.Equal(t, health.Online, h.device("pmp1").State)

	// cooldown expired: probed again, still failing, no second OFFLINE event
	h.clock.Add(30 * time.Second)
	res = h.p.Cycle(ctx)
	assert.Equal(t, []string{"pmp1", "pmp2"}, res.Probed)
	assert.Greater(t, h.tr.readsFor(2), before)
	assert.Len(t, h.sink.transitions(), 1)
}

func TestRecoveryPublishesOnline(t *testing.T) {
	c := testConfig(t)
	c.Devices = c.Devices[:1]
	h := newHarness(t, c)
	ctx := context.Background()

	h.tr.respond = func(byte, uint16) ([]byte, error) { return nil, errDevice }
	for i := 0; i < 3; i++ {
		h.p.Cycle(ctx)
	}
	require.Equal(t, health.Offline, h.device("pmp1").State)

	h.tr.respond = nil
	h.clock.Add(30 * time.Second)
	h.p.Cycle(ctx)

	d := h.device("pmp1")
	assert.Equal(t, health.Online, d.State)
	assert.Zero(t, d.FailCount)

	trs := h.sink.transitions()
	require.Len(t, trs, 2)
	assert.Equal(t, health.Online, trs[1].State)
	assert.Len(t, h.sink.data(), 1)
}

func TestSuccessAfterFailuresResetsCount(t *testing.T) {
	c := testConfig(t)
	c.Devices = c.Devices[:1]
	h := newHarness(t, c)
	ctx := context.Background()

	h.tr.respond = func(byte, uint16) ([]byte, error) { return nil, errDevice }
	h.p.Cycle(ctx)
	h.p.Cycle(ctx)
	require.Equal(t, 2, h.device("pmp1").FailCount)

	h.tr.respond = nil
	h.p.Cycle(ctx)
	assert.Zero(t, h.device("pmp1").FailCount)
	assert.Equal(t, health.Online, h.device("pmp1").State)
	assert.Empty(t, h.sink.transitions())
}

func TestPortErrorAbortsCycle(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.tr.respond = func(slave byte, addr uint16) ([]byte, error) {
		if slave == 1 {
			return nil, errPort
		}
		return lowFirst(1), nil
	}
	ctx := context.Background()

	res := h.p.Cycle(ctx)

	assert.True(t, res.Aborted)
	assert.Equal(t, []string{"pmp1"}, res.Probed)
	assert.Equal(t, 1, h.tr.closes)
	assert.Zero(t, h.tr.readsFor(2), "remaining devices must not be addressed")
	assert.Zero(t, h.device("pmp1").FailCount, "port errors are not charged to the device")
	assert.Equal(t, []string{ResultAborted}, h.rec.results)

	// next cycle reconnects and proceeds
	h.tr.respond = nil
	res = h.p.Cycle(ctx)

	assert.True(t, res.Connected)
	assert.False(t, res.Aborted)
	assert.Equal(t, 1, h.tr.connects)
	assert.Equal(t, []string{"pmp1", "pmp2"}, res.Probed)
}

func TestDisconnectedSkipsDevices(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.tr.open = false
	h.tr.connectOK = false

	res := h.p.Cycle(context.Background())

	assert.False(t, res.Connected)
	assert.Empty(t, res.Probed)
	assert.Empty(t, h.tr.reads)
	assert.Equal(t, 1, h.tr.connects)
	assert.Equal(t, []string{ResultDisconnected}, h.rec.results)
}

func TestPrecheckFailureSkipsSweep(t *testing.T) {
	c := testConfig(t)
	pc := mustPoint(t, "frequency", "01.06", 100)
	c.Precheck = &pc
	h := newHarness(t, c)

	h.tr.respond = func(slave byte, addr uint16) ([]byte, error) {
		if slave == 1 {
			return nil, errDevice
		}
		return lowFirst(1), nil
	}

	h.p.Cycle(context.Background())

	assert.Equal(t, 1, h.tr.readsFor(1), "only the precheck is issued")
	assert.Equal(t, 3, h.tr.readsFor(2), "precheck plus full sweep")

	d := h.device("pmp1")
	assert.Equal(t, 1, d.FailCount)
	assert.Equal(t, health.CodeDevice, d.LastErrorCode)
	assert.Contains(t, d.LastError, "precheck")
}

func TestPanicInProbeIsContained(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.tr.respond = func(slave byte, addr uint16) ([]byte, error) {
		if slave == 1 {
			panic("driver bug")
		}
		return lowFirst(1), nil
	}

	var res CycleResult
	require.NotPanics(t, func() { res = h.p.Cycle(context.Background()) })

	assert.Equal(t, []string{"pmp1", "pmp2"}, res.Probed)
	d := h.device("pmp1")
	assert.Equal(t, 1, d.FailCount)
	assert.Equal(t, health.CodeUnexpected, d.LastErrorCode)
	assert.Len(t, h.sink.data(), 1)
}

func TestHealthMirroredEveryProbe(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.p.Cycle(context.Background())

	require.Len(t, h.regs.health, 2)
	assert.Equal(t, "pmp1", h.regs.health[0].Name)
	assert.Equal(t, "pmp2", h.regs.health[1].Name)
}

func TestNextDelay(t *testing.T) {
	cases := []struct {
		desc     string
		interval time.Duration
		elapsed  time.Duration
		want     time.Duration
	}{
		{desc: "short cycle", interval: time.Second, elapsed: 400 * time.Millisecond, want: 600 * time.Millisecond},
		{desc: "exact", interval: time.Second, elapsed: time.Second, want: 0},
		{desc: "overrun", interval: time.Second, elapsed: 1200 * time.Millisecond, want: 0},
		{desc: "instant", interval: time.Second, elapsed: 0, want: time.Second},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, NextDelay(tc.interval, tc.elapsed), tc.desc)
	}
}

func TestInterDeviceDelay(t *testing.T) {
	c := testConfig(t)
	c.InterDeviceDelay = 20 * time.Millisecond

	tr := &fakeTransport{open: true}
	p, err := New(c, tr, &fakeSink{}, zerolog.Nop())
	require.NoError(t, err)

	res := p.Cycle(context.Background())
	assert.GreaterOrEqual(t, res.Elapsed, 40*time.Millisecond)
}

func TestCycleStopsOnCancel(t *testing.T) {
	c := testConfig(t)
	c.InterDeviceDelay = time.Hour

	tr := &fakeTransport{open: true}
	p, err := New(c, tr, &fakeSink{}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := p.Cycle(ctx)
	assert.Equal(t, []string{"pmp1"}, res.Probed)
}

func TestRunNeverOverlapsAndStops(t *testing.T) {
	c := testConfig(t)
	c.Interval = 5 * time.Millisecond

	tr := &fakeTransport{open: true}
	tr.respond = func(byte, uint16) ([]byte, error) {
		time.Sleep(2 * time.Millisecond)
		return lowFirst(1), nil
	}
	p, err := New(c, tr, &fakeSink{}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(60 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Equal(t, 1, tr.maxInFlight)
	assert.Greater(t, len(tr.reads), 4)
}

func TestBuildConfig(t *testing.T) {
	c := &cfg.Config{
		Parameters: []cfg.ParameterConfig{
			{Name: "speed", Num: "01.01", Unit: "rpm", Type: "32bit", Scale: 100},
			{Name: "frequency", Num: "01.06", Unit: "Hz", Type: "32bit", Scale: 100},
		},
		Precheck: "frequency",
		Devices: []cfg.DeviceConfig{
			{ID: 1, Name: "pmp1", Label: "PMP 1 INTAKE"},
			{ID: 2, Name: "pmp2", Label: "PMP 2 INTAKE"},
		},
	}
	require.NoError(t, cfg.Validate(c))
	cfg.Normalize(c)

	pc, err := BuildConfig(c)
	require.NoError(t, err)

	assert.Equal(t, time.Second, pc.Interval)
	assert.Equal(t, 150*time.Millisecond, pc.InterDeviceDelay)
	assert.Equal(t, 30*time.Second, pc.Policy.Cooldown)
	assert.Equal(t, 3, pc.Policy.FailThreshold)

	require.Len(t, pc.Parameters, 2)
	assert.Equal(t, 420202, pc.Parameters[0].DeviceRegister)
	assert.Equal(t, uint16(20201), pc.Parameters[0].TransportAddress)

	require.NotNil(t, pc.Precheck)
	assert.Equal(t, "frequency", pc.Precheck.Name)

	require.Len(t, pc.Devices, 2)
	assert.Equal(t, health.Device{ID: 2, Name: "pmp2", Label: "PMP 2 INTAKE", State: health.Online}, pc.Devices[1])
}
