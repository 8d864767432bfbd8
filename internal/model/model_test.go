package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFlowKey_DirectionIndependent(t *testing.T) {
	pairs := [][2]string{
		{"10.0.0.1", "10.0.0.2"},
		{"192.168.1.5", "8.8.8.8"},
		{"2001:db8::1", "10.0.0.1"},
		{"10.0.0.10", "10.0.0.9"},
		{"1.1.1.1", "1.1.1.1"},
	}
	for _, p := range pairs {
		forward := NewFlowKey(p[0], p[1])
		reverse := NewFlowKey(p[1], p[0])
		assert.Equal(t, forward, reverse, "key for %v", p)
		assert.LessOrEqual(t, forward.A, forward.B)
		assert.True(t, forward.Contains(p[0]))
		assert.True(t, forward.Contains(p[1]))
	}
}

func TestFlowKey_LexicographicOrder(t *testing.T) {
	// String order, not numeric order: "10.0.0.10" sorts before "10.0.0.9".
	k := NewFlowKey("10.0.0.9", "10.0.0.10")
	assert.Equal(t, "10.0.0.10", k.A)
	assert.Equal(t, "10.0.0.9", k.B)
	assert.Equal(t, "10.0.0.10 <-> 10.0.0.9", k.String())
	assert.False(t, k.IsLoop())
	assert.True(t, NewFlowKey("a", "a").IsLoop())
}

func TestProtocolName(t *testing.T) {
	assert.Equal(t, "TCP", ProtocolName(6))
	assert.Equal(t, "UDP", ProtocolName(17))
	assert.Equal(t, "ICMP", ProtocolName(1))
	assert.Equal(t, "47", ProtocolName(47))
	assert.Equal(t, "58", PacketRecord{Protocol: 58}.ProtocolName())
}

func TestGraphTitle(t *testing.T) {
	assert.Equal(t, "Overall Network Communication Map", GraphTitle(nil))
	k := NewFlowKey("b", "a")
	assert.Equal(t, "Diagram: a <-> b", GraphTitle(&k))
}

func TestErrorsUnwrap(t *testing.T) {
	cause := fmt.Errorf("permission denied")
	err := error(&CaptureSourceError{Source: "eth0", Err: cause})
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "eth0")

	var lookupErr *LookupError
	wrapped := fmt.Errorf("display: %w", &LookupError{Address: "8.8.8.8", Err: cause})
	require.True(t, errors.As(wrapped, &lookupErr))
	assert.Equal(t, "8.8.8.8", lookupErr.Address)
}

func TestObserverFuncs_IgnoresNil(t *testing.T) {
	var got []uint64
	o := ObserverFuncs{OnPacket: func(r PacketRecord) { got = append(got, r.Seq) }}

	o.PacketAppended(PacketRecord{Seq: 1})
	o.ConversationsChanged(nil)
	o.GraphChanged(GraphView{})
	o.ViewReset(nil)

	assert.Equal(t, []uint64{1}, got)
}
