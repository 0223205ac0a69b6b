package blockwise

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/m2m-client/pkg/log"
)

// completions collects completed transfers.
type completions struct {
	mu     sync.Mutex
	values map[string][][]byte
}

func (c *completions) fn(id string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = make(map[string][][]byte)
	}
	c.values[id] = append(c.values[id], value)
}

func (c *completions) get(id string) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[id]
}

func newTestAssembler(c *completions) *Assembler {
	return NewAssembler(AssemblerConfig{OnComplete: c.fn})
}

func TestMyValueScenario(t *testing.T) {
	c := &completions{}
	a := newTestAssembler(c)

	blocks, err := Split("/Test/0/D", []byte("MyValue"), 4)
	require.NoError(t, err)
	require.Len(t, blocks, 2)

	assert.Equal(t, Block{ResourceID: "/Test/0/D", Index: 0, Data: []byte("MyVa"), TotalSize: 7}, blocks[0])
	assert.Equal(t, Block{ResourceID: "/Test/0/D", Index: 1, Data: []byte("lue"), TotalSize: 7, Last: true}, blocks[1])

	require.NoError(t, a.OnBlockReceived(blocks[0]))
	received, total, ok := a.InFlight("/Test/0/D")
	require.True(t, ok)
	assert.Equal(t, 4, received)
	assert.Equal(t, 7, total)

	require.NoError(t, a.OnBlockReceived(blocks[1]))
	got := c.get("/Test/0/D")
	require.Len(t, got, 1)
	assert.Equal(t, "MyValue", string(got[0]))

	_, _, ok = a.InFlight("/Test/0/D")
	assert.False(t, ok, "completed transfer must not stay in flight")
}

func TestRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 7, 8, 63, 64, 65, 1000}
	blockSizes := []int{1, 4, 16, 64}

	for _, n := range sizes {
		for _, l := range blockSizes {
			t.Run(fmt.Sprintf("N=%d/L=%d", n, l), func(t *testing.T) {
				src := make([]byte, n)
				for i := range src {
					src[i] = byte(i*31 + 7)
				}

				c := &completions{}
				a := newTestAssembler(c)
				blocks, err := Split("r", src, l)
				require.NoError(t, err)

				want := (n + l - 1) / l
				if want == 0 {
					want = 1
				}
				require.Len(t, blocks, want)

				for _, b := range blocks {
					require.NoError(t, a.OnBlockReceived(b))
				}
				got := c.get("r")
				require.Len(t, got, 1)
				assert.True(t, bytes.Equal(src, got[0]), "reassembled value differs")
			})
		}
	}
}

func TestBlockBeforeFirst(t *testing.T) {
	c := &completions{}
	a := newTestAssembler(c)

	err := a.OnBlockReceived(Block{ResourceID: "r", Index: 1, Data: []byte("abcd"), TotalSize: 8})
	assert.ErrorIs(t, err, ErrUnknownTransfer)

	_, _, ok := a.InFlight("r")
	assert.False(t, ok, "no buffer may be allocated")
	assert.Empty(t, c.get("r"))
}

func TestRestartDiscardsPartial(t *testing.T) {
	c := &completions{}
	a := newTestAssembler(c)

	require.NoError(t, a.OnBlockReceived(Block{ResourceID: "r", Index: 0, Data: []byte("OLD1"), TotalSize: 12}))
	require.NoError(t, a.OnBlockReceived(Block{ResourceID: "r", Index: 1, Data: []byte("OLD2"), TotalSize: 12}))
	first, ok := a.Current("r")
	require.True(t, ok)

	second, err := a.Receive(Block{ResourceID: "r", Index: 0, Data: []byte("new!"), TotalSize: 6})
	require.NoError(t, err)
	assert.Greater(t, second.Generation, first.Generation)

	require.NoError(t, a.OnBlockReceived(Block{ResourceID: "r", Index: 1, Data: []byte("ok"), TotalSize: 6, Last: true}))
	got := c.get("r")
	require.Len(t, got, 1)
	assert.Equal(t, "new!ok", string(got[0]))
}

func TestStaleGeneration(t *testing.T) {
	c := &completions{}
	a := newTestAssembler(c)

	old, err := a.Receive(Block{ResourceID: "r", Index: 0, Data: []byte("aaaa"), TotalSize: 8})
	require.NoError(t, err)
	cur, err := a.Receive(Block{ResourceID: "r", Index: 0, Data: []byte("bbbb"), TotalSize: 8})
	require.NoError(t, err)

	err = a.OnBlockReceived(Block{ResourceID: "r", Index: 1, Data: []byte("AAAA"), TotalSize: 8,
		Last: true, Generation: old.Generation})
	assert.ErrorIs(t, err, ErrStaleGeneration)

	require.NoError(t, a.OnBlockReceived(Block{ResourceID: "r", Index: 1, Data: []byte("BBBB"), TotalSize: 8,
		Last: true, Generation: cur.Generation}))
	got := c.get("r")
	require.Len(t, got, 1)
	assert.Equal(t, "bbbbBBBB", string(got[0]))
}

func TestOverrunRejected(t *testing.T) {
	tests := []struct {
		name  string
		first Block
		next  *Block
	}{
		{
			name:  "FirstBlockTooLarge",
			first: Block{ResourceID: "r", Index: 0, Data: []byte("toolong"), TotalSize: 4},
		},
		{
			name:  "LaterBlockPastEnd",
			first: Block{ResourceID: "r", Index: 0, Data: []byte("abcd"), TotalSize: 6},
			next:  &Block{ResourceID: "r", Index: 1, Data: []byte("efgh"), TotalSize: 6, Last: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &completions{}
			a := newTestAssembler(c)

			if tt.next == nil {
				assert.ErrorIs(t, a.OnBlockReceived(tt.first), ErrBlockOverrun)
				return
			}
			require.NoError(t, a.OnBlockReceived(tt.first))
			assert.ErrorIs(t, a.OnBlockReceived(*tt.next), ErrBlockOverrun)

			// The partial buffer survives for a corrected retry.
			received, _, ok := a.InFlight("r")
			require.True(t, ok)
			assert.Equal(t, 4, received)
			require.NoError(t, a.OnBlockReceived(Block{ResourceID: "r", Index: 1, Data: []byte("ef"), TotalSize: 6, Last: true}))
			assert.Equal(t, "abcdef", string(c.get("r")[0]))
		})
	}
}

func TestMaxSize(t *testing.T) {
	a := NewAssembler(AssemblerConfig{MaxSize: 16})
	err := a.OnBlockReceived(Block{ResourceID: "r", Index: 0, Data: []byte("x"), TotalSize: 17})
	assert.ErrorIs(t, err, ErrBlockOverrun)
}

func TestTransportErrorPreservesBuffer(t *testing.T) {
	c := &completions{}
	a := newTestAssembler(c)

	require.NoError(t, a.OnBlockReceived(Block{ResourceID: "r", Index: 0, Data: []byte("abcd"), TotalSize: 8}))
	err := a.OnBlockReceived(Block{ResourceID: "r", Index: 1, TotalSize: 8, Err: BlockErrTimeout})
	assert.ErrorIs(t, err, ErrTransportBlock)

	received, _, ok := a.InFlight("r")
	require.True(t, ok)
	assert.Equal(t, 4, received)

	require.NoError(t, a.OnBlockReceived(Block{ResourceID: "r", Index: 1, Data: []byte("efgh"), TotalSize: 8, Last: true}))
	assert.Equal(t, "abcdefgh", string(c.get("r")[0]))
}

func TestInvalidBlocks(t *testing.T) {
	tests := []struct {
		name string
		next Block
		want error
	}{
		{"Gap", Block{ResourceID: "r", Index: 2, Data: []byte("ijkl"), TotalSize: 12}, ErrOutOfOrder},
		{"ShortMiddle", Block{ResourceID: "r", Index: 1, Data: []byte("ef"), TotalSize: 12}, ErrInvalidBlock},
		{"LongLast", Block{ResourceID: "r", Index: 1, Data: []byte("efghij"), TotalSize: 12, Last: true}, ErrInvalidBlock},
		{"TotalMismatch", Block{ResourceID: "r", Index: 1, Data: []byte("efgh"), TotalSize: 13}, ErrInvalidBlock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssembler(AssemblerConfig{})
			require.NoError(t, a.OnBlockReceived(Block{ResourceID: "r", Index: 0, Data: []byte("abcd"), TotalSize: 12}))
			assert.ErrorIs(t, a.OnBlockReceived(tt.next), tt.want)
		})
	}

	t.Run("EmptyResource", func(t *testing.T) {
		a := NewAssembler(AssemblerConfig{})
		assert.ErrorIs(t, a.OnBlockReceived(Block{Data: []byte("x"), TotalSize: 1, Last: true}), ErrInvalidBlock)
	})
}

func TestRedeliveryAccepted(t *testing.T) {
	c := &completions{}
	a := newTestAssembler(c)

	require.NoError(t, a.OnBlockReceived(Block{ResourceID: "r", Index: 0, Data: []byte("abcd"), TotalSize: 10}))
	require.NoError(t, a.OnBlockReceived(Block{ResourceID: "r", Index: 1, Data: []byte("efgh"), TotalSize: 10}))
	require.NoError(t, a.OnBlockReceived(Block{ResourceID: "r", Index: 1, Data: []byte("efgh"), TotalSize: 10}))

	received, _, _ := a.InFlight("r")
	assert.Equal(t, 8, received, "re-delivery must not be counted twice")

	require.NoError(t, a.OnBlockReceived(Block{ResourceID: "r", Index: 2, Data: []byte("ij"), TotalSize: 10, Last: true}))
	assert.Equal(t, "abcdefghij", string(c.get("r")[0]))
}

func TestShortLastBlockRejected(t *testing.T) {
	var events []log.Event
	record := log.LoggerFunc(func(e log.Event) { events = append(events, e) })
	c := &completions{}
	a := NewAssembler(AssemblerConfig{OnComplete: c.fn, ProtocolLogger: record})

	require.NoError(t, a.OnBlockReceived(Block{ResourceID: "r", Index: 0, Data: []byte("abcd"), TotalSize: 10}))
	err := a.OnBlockReceived(Block{ResourceID: "r", Index: 1, Data: []byte("ef"), TotalSize: 10, Last: true})
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.ErrorContains(t, err, "got 6 of 10 bytes")
	assert.Empty(t, c.get("r"), "a short transfer must not complete")

	_, _, ok := a.InFlight("r")
	assert.False(t, ok, "the last block closes the transfer")
	assert.ErrorIs(t, a.OnBlockReceived(Block{ResourceID: "r", Index: 1, Data: []byte("efgh"), TotalSize: 10}), ErrUnknownTransfer)

	require.Len(t, events, 3)
	assert.Equal(t, log.BlockRejected, events[1].Block.Outcome)

	t.Run("FirstBlockLast", func(t *testing.T) {
		c := &completions{}
		a := newTestAssembler(c)
		err := a.OnBlockReceived(Block{ResourceID: "r", Index: 0, Data: []byte("abc"), TotalSize: 4, Last: true})
		assert.ErrorIs(t, err, ErrIncomplete)
		assert.Empty(t, c.get("r"))
	})
}

func TestAbort(t *testing.T) {
	a := NewAssembler(AssemblerConfig{})
	assert.False(t, a.Abort("r"))

	require.NoError(t, a.OnBlockReceived(Block{ResourceID: "r", Index: 0, Data: []byte("ab"), TotalSize: 4}))
	assert.True(t, a.Abort("r"))
	assert.ErrorIs(t, a.OnBlockReceived(Block{ResourceID: "r", Index: 1, Data: []byte("cd"), TotalSize: 4, Last: true}), ErrUnknownTransfer)
}

func TestConcurrentResources(t *testing.T) {
	c := &completions{}
	a := newTestAssembler(c)

	values := map[string][]byte{}
	for i := 0; i < 16; i++ {
		values[fmt.Sprintf("/Test/%d/D", i)] = bytes.Repeat([]byte{byte(i)}, 100+i)
	}

	var wg sync.WaitGroup
	for id, v := range values {
		wg.Add(1)
		go func(id string, v []byte) {
			defer wg.Done()
			blocks, err := Split(id, v, 8)
			if err != nil {
				t.Error(err)
				return
			}
			for _, b := range blocks {
				if err := a.OnBlockReceived(b); err != nil {
					t.Errorf("%s block %d: %v", id, b.Index, err)
				}
			}
		}(id, v)
	}
	wg.Wait()

	for id, v := range values {
		got := c.get(id)
		require.Len(t, got, 1, id)
		assert.Equal(t, v, got[0], id)
	}
}

func TestBlockEvents(t *testing.T) {
	var events []log.Event
	a := NewAssembler(AssemblerConfig{ProtocolLogger: log.LoggerFunc(func(e log.Event) {
		events = append(events, e)
	})})

	_ = a.OnBlockReceived(Block{ResourceID: "r", Index: 0, Data: []byte("ab"), TotalSize: 3})
	_ = a.OnBlockReceived(Block{ResourceID: "r", Index: 5, Data: []byte("c"), TotalSize: 3, Last: true})
	_ = a.OnBlockReceived(Block{ResourceID: "r", Index: 1, Data: []byte("c"), TotalSize: 3, Last: true})

	require.Len(t, events, 3)
	assert.Equal(t, log.BlockAccepted, events[0].Block.Outcome)
	assert.Equal(t, log.BlockRejected, events[1].Block.Outcome)
	assert.Equal(t, log.BlockCompleted, events[2].Block.Outcome)
	assert.Equal(t, events[0].Block.Generation, events[2].Block.Generation)
}

type mapSource map[string][]byte

func (m mapSource) GetValue(id string) ([]byte, error) {
	v, ok := m[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return v, nil
}

func TestFragmenter(t *testing.T) {
	src := mapSource{
		"/Test/0/D": []byte("MyValue"),
		"/Test/0/S": []byte("Static value"),
	}
	f := NewFragmenter(FragmenterConfig{Source: src})

	data, n := f.OnBlockRequested("/Test/0/D")
	assert.Equal(t, uint32(7), n)
	assert.Equal(t, "MyValue", string(data))

	// The returned buffer is a copy.
	data[0] = 'X'
	assert.Equal(t, "MyValue", string(src["/Test/0/D"]))

	data, n = f.OnBlockRequested("/Test/0/S")
	assert.Equal(t, uint32(12), n)
	assert.Equal(t, "Static value", string(data))

	data, n = f.OnBlockRequested("/missing")
	assert.Nil(t, data)
	assert.Zero(t, n)

	data, n = NewFragmenter(FragmenterConfig{}).OnBlockRequested("/Test/0/D")
	assert.Nil(t, data)
	assert.Zero(t, n)
}

func TestWindow(t *testing.T) {
	value := []byte("MyValue")

	data, more, err := Window(value, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, "MyVa", string(data))
	assert.True(t, more)

	data, more, err = Window(value, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, "lue", string(data))
	assert.False(t, more)

	_, _, err = Window(value, 2, 4)
	assert.ErrorIs(t, err, ErrBlockOverrun)

	_, _, err = Window(value, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidBlock)

	data, more, err = Window(nil, 0, 16)
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.False(t, more)
}

func TestBlockErrorString(t *testing.T) {
	assert.Equal(t, "NONE", BlockErrNone.String())
	assert.Equal(t, "TIMEOUT", BlockErrTimeout.String())
	assert.Equal(t, "BlockError(9)", BlockError(9).String())
}
