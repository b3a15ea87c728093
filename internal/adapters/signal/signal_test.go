package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neutron420/bloom/internal/core"
)

func TestWsSignalConnBackpressure(t *testing.T) {
	c := &WsSignalConn{send: make(chan core.Frame, 1)}

	require.NoError(t, c.TrySend(core.Frame(`{"type":"pong"}`)))
	assert.ErrorIs(t, c.TrySend(core.Frame(`{"type":"pong"}`)), core.ErrBackpressure)

	c.Close()
	c.Close()
	assert.ErrorIs(t, c.TrySend(core.Frame(`{}`)), core.ErrSignalClosed)

	// queued frames stay readable after Close so the writer can flush them
	f, ok := <-c.send
	require.True(t, ok)
	assert.Equal(t, core.Frame(`{"type":"pong"}`), f)
	_, ok = <-c.send
	assert.False(t, ok)
}

func TestNewSignalWSControllerDefaults(t *testing.T) {
	ctl := NewSignalWSController(nil, Options{SendBuffer: 8})
	def := DefaultOptions()
	assert.Equal(t, 8, ctl.opts.SendBuffer)
	assert.Equal(t, def.PingPeriod, ctl.opts.PingPeriod)
	assert.Equal(t, def.ReadLimit, ctl.opts.ReadLimit)
	assert.Equal(t, def.WriteWait, ctl.opts.WriteWait)
}
