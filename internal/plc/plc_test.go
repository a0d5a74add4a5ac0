// internal/plc/plc_test.go
package plc

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/vsd-gateway/internal/events"
)

func putInt32(b []byte, off int, v int32) {
	binary.BigEndian.PutUint32(b[off*2:], uint32(v))
}

func putFloat32(b []byte, off int, v float32) {
	binary.BigEndian.PutUint32(b[off*2:], math.Float32bits(v))
}

func totalsData() []byte {
	b := make([]byte, 8)
	putInt32(b, 0, 123456)
	putInt32(b, 2, -5)
	return b
}

func processData() []byte {
	b := make([]byte, 68)
	putFloat32(b, 0, 12.5)
	putFloat32(b, 8, 7.25)
	putFloat32(b, 32, 3.5)
	return b
}

func TestDecodeTotalizers(t *testing.T) {
	out := map[string]float64{}
	require.NoError(t, Totalizers.Decode(totalsData(), out))

	assert.Equal(t, 123456.0, out["fqt_4001"])
	assert.Equal(t, -5.0, out["fqt_8001"])
}

func TestDecodeProcess(t *testing.T) {
	out := map[string]float64{}
	require.NoError(t, Process.Decode(processData(), out))

	assert.Len(t, out, 17)
	assert.Equal(t, 12.5, out["ft_4001"])
	assert.Equal(t, 7.25, out["ph_4001"])
	assert.Equal(t, 3.5, out["lit_8002"])
	assert.Zero(t, out["lit_7001"])
}

func TestDecodeShortResponse(t *testing.T) {
	err := Process.Decode(make([]byte, 10), map[string]float64{})
	assert.Error(t, err)
}

// ---- reader ----

type fakeSource struct {
	fail   bool
	closed bool
}

func (s *fakeSource) ReadHoldingRegisters(_ uint8, addr, _ uint16) ([]byte, error) {
	if s.fail {
		return nil, errors.New("connection reset")
	}
	if addr == Totalizers.Address {
		return totalsData(), nil
	}
	return processData(), nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

type chanSink chan events.Event

func (c chanSink) Publish(e events.Event) {
	select {
	case c <- e:
	default:
	}
}

type countRecorder struct{ ok, ko int }

func (r *countRecorder) PLCRead(ok bool) {
	if ok {
		r.ok++
	} else {
		r.ko++
	}
}

func TestReadOnceDialsOnce(t *testing.T) {
	dials := 0
	src := &fakeSource{}
	r := NewReader(Config{UnitID: 1}, func() (Source, error) {
		dials++
		return src, nil
	}, chanSink(make(chan events.Event, 1)), zerolog.Nop())

	v, err := r.ReadOnce()
	require.NoError(t, err)
	assert.Equal(t, 123456.0, v["fqt_4001"])
	assert.Equal(t, 12.5, v["ft_4001"])

	_, err = r.ReadOnce()
	require.NoError(t, err)
	assert.Equal(t, 1, dials)
}

func TestReadOnceDropsConnectionOnError(t *testing.T) {
	dials := 0
	src := &fakeSource{fail: true}
	r := NewReader(Config{}, func() (Source, error) {
		dials++
		return src, nil
	}, chanSink(make(chan events.Event, 1)), zerolog.Nop())

	_, err := r.ReadOnce()
	require.Error(t, err)
	assert.True(t, src.closed)

	src.fail = false
	_, err = r.ReadOnce()
	require.NoError(t, err)
	assert.Equal(t, 2, dials)
}

func TestReadOnceDialError(t *testing.T) {
	r := NewReader(Config{}, func() (Source, error) {
		return nil, errors.New("connection refused")
	}, chanSink(make(chan events.Event, 1)), zerolog.Nop())

	_, err := r.ReadOnce()
	assert.ErrorContains(t, err, "connection refused")
}

func TestRunPublishes(t *testing.T) {
	sink := chanSink(make(chan events.Event, 4))
	rec := &countRecorder{}
	r := NewReader(Config{Interval: 10 * time.Millisecond}, func() (Source, error) {
		return &fakeSource{}, nil
	}, sink, zerolog.Nop(), WithRecorder(rec))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case e := <-sink:
		ev, ok := e.(events.PLC)
		require.True(t, ok)
		assert.Equal(t, -5.0, ev.Values["fqt_8001"])
	case <-time.After(2 * time.Second):
		t.Fatal("no plc event")
	}

	cancel()
	require.NoError(t, <-done)
	assert.GreaterOrEqual(t, rec.ok, 1)
}
