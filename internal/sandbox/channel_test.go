package sandbox

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	got []string
}

func (c *collector) listen(msg string) error {
	c.got = append(c.got, msg)
	return nil
}

func TestChannelQueuesUntilFirstListener(t *testing.T) {
	ch := NewMessageChannel[string]()

	for _, m := range []string{"a", "b", "c"} {
		require.NoError(t, ch.Dispatch(m))
	}
	assert.Equal(t, 3, ch.Queued())

	var c collector
	_, err := ch.AddListener(c.listen)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, c.got)
	assert.Equal(t, 0, ch.Queued())

	require.NoError(t, ch.Dispatch("d"))
	assert.Equal(t, []string{"a", "b", "c", "d"}, c.got)
	assert.Equal(t, 0, ch.Queued(), "messages after registration are not buffered")
}

func TestChannelSecondListenerDoesNotReplay(t *testing.T) {
	ch := NewMessageChannel[string]()
	require.NoError(t, ch.Dispatch("early"))

	var first, second collector
	_, err := ch.AddListener(first.listen)
	require.NoError(t, err)
	_, err = ch.AddListener(second.listen)
	require.NoError(t, err)

	require.NoError(t, ch.Dispatch("live"))

	assert.Equal(t, []string{"early", "live"}, first.got)
	assert.Equal(t, []string{"live"}, second.got)
}

func TestChannelRequeuesAtZeroListeners(t *testing.T) {
	ch := NewMessageChannel[string]()

	var a collector
	id, err := ch.AddListener(a.listen)
	require.NoError(t, err)

	require.NoError(t, ch.Dispatch("1"))
	assert.True(t, ch.RemoveListener(id))
	assert.False(t, ch.RemoveListener(id))

	require.NoError(t, ch.Dispatch("2"))
	assert.Equal(t, 1, ch.Queued())

	var b collector
	_, err = ch.AddListener(b.listen)
	require.NoError(t, err)

	assert.Equal(t, []string{"1"}, a.got)
	assert.Equal(t, []string{"2"}, b.got)
}

func TestChannelRemovingOneOfTwoKeepsLiveDelivery(t *testing.T) {
	ch := NewMessageChannel[string]()

	var a, b collector
	idA, err := ch.AddListener(a.listen)
	require.NoError(t, err)
	_, err = ch.AddListener(b.listen)
	require.NoError(t, err)

	ch.RemoveListener(idA)
	require.NoError(t, ch.Dispatch("x"))

	assert.Empty(t, a.got)
	assert.Equal(t, []string{"x"}, b.got)
	assert.Equal(t, 0, ch.Queued())
	assert.Equal(t, 1, ch.Listeners())
}

func TestChannelJoinsListenerErrors(t *testing.T) {
	ch := NewMessageChannel[string]()
	boom := errors.New("boom")

	require.NoError(t, ch.Dispatch("queued"))

	_, err := ch.AddListener(func(string) error { return boom })
	assert.ErrorIs(t, err, boom)

	err = ch.Dispatch("live")
	assert.ErrorIs(t, err, boom)
}

func TestChannelDispatchDuringFlushStaysBehind(t *testing.T) {
	ch := NewMessageChannel[string]()
	require.NoError(t, ch.Dispatch("a"))
	require.NoError(t, ch.Dispatch("b"))

	var got []string
	_, err := ch.AddListener(func(msg string) error {
		got = append(got, msg)
		if msg == "a" {
			return ch.Dispatch("c")
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, got)
}
