package pipeline

import (
	"RedWire/internal/engine/graph"
	"RedWire/internal/model"
	"RedWire/internal/testutil"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/gopacket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	hostA = "10.0.0.1"
	hostB = "10.0.0.2"
	hostC = "10.0.0.3"
)

// recorder collects notifications in delivery order.
type recorder struct {
	mu       sync.Mutex
	appended []model.PacketRecord
	convs    [][]model.ConversationSummary
	graphs   []model.GraphView
	resets   [][]model.PacketRecord
}

func (r *recorder) PacketAppended(rec model.PacketRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appended = append(r.appended, rec)
}

func (r *recorder) ConversationsChanged(convs []model.ConversationSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.convs = append(r.convs, convs)
}

func (r *recorder) GraphChanged(view model.GraphView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.graphs = append(r.graphs, view)
}

func (r *recorder) ViewReset(recs []model.PacketRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets = append(r.resets, recs)
}

func (r *recorder) appendedSeqs() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint64, len(r.appended))
	for i, rec := range r.appended {
		out[i] = rec.Seq
	}
	return out
}

func spec(src, dst, proto string, ts time.Time) testutil.PacketSpec {
	return testutil.PacketSpec{Src: src, Dst: dst, Proto: proto, SrcPort: 40000, DstPort: 443, Payload: 6, Time: ts}
}

func ingest(t *testing.T, p *Pipeline, specs ...testutil.PacketSpec) []model.PacketRecord {
	t.Helper()
	var out []model.PacketRecord
	for _, s := range specs {
		rec, err := p.Ingest(testutil.Packet(t, s))
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

func assertConsistent(t *testing.T, p *Pipeline) {
	t.Helper()

	var keys []model.FlowKey
	for _, c := range p.Conversations() {
		assert.Equal(t, c.State.Count, len(c.State.Packets), "count invariant for %s", c.Key)
		keys = append(keys, c.Key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].A != keys[j].A {
			return keys[i].A < keys[j].A
		}
		return keys[i].B < keys[j].B
	})

	sel, focused := p.Selection()
	if focused {
		p.ClearSelection()
		defer func() { require.NoError(t, p.Select(sel)) }()
	}
	edges := p.GraphView().Edges
	if diff := cmp.Diff(keys, edges); diff != "" {
		t.Errorf("store keys and graph edges differ (-store +graph):\n%s", diff)
	}
}

func TestIngest_ThreePacketScenario(t *testing.T) {
	p := New()
	now := time.Now()

	recs := ingest(t, p,
		spec(hostA, hostB, testutil.TCP, now),
		spec(hostB, hostA, testutil.TCP, now.Add(time.Millisecond)),
		spec(hostA, hostC, testutil.UDP, now.Add(2*time.Millisecond)),
	)
	assert.Equal(t, []uint64{1, 2, 3}, []uint64{recs[0].Seq, recs[1].Seq, recs[2].Seq})

	convs := p.Conversations()
	require.Len(t, convs, 2)
	assert.Equal(t, model.NewFlowKey(hostA, hostB), convs[0].Key)
	assert.Equal(t, 2, convs[0].State.Count)
	assert.Equal(t, model.NewFlowKey(hostA, hostC), convs[1].Key)
	assert.Equal(t, 1, convs[1].State.Count)
	assert.Equal(t, uint64(recs[0].Length+recs[1].Length), convs[0].State.Bytes)

	view := p.GraphView()
	assert.Equal(t, model.ScopeAll, view.Scope)
	assert.Equal(t, "Overall Network Communication Map", view.Title)
	assert.Equal(t, []model.FlowKey{model.NewFlowKey(hostA, hostB), model.NewFlowKey(hostA, hostC)}, view.Edges)

	degrees := map[string]int{}
	for _, n := range view.Nodes {
		degrees[n.Address] = n.Degree
	}
	assert.Equal(t, map[string]int{hostA: 2, hostB: 1, hostC: 1}, degrees)
	assert.Equal(t, 2, p.Degree(hostA))

	st := p.Stats()
	assert.Equal(t, uint64(3), st.Accepted)
	assert.Equal(t, 3, st.Packets)
	assert.Equal(t, 2, st.Conversations)
	assert.Equal(t, 3, st.Hosts)
	assert.Equal(t, 2, st.Edges)

	assertConsistent(t, p)
}

func TestClear_RestartsSequence(t *testing.T) {
	p := New()
	now := time.Now()
	ingest(t, p,
		spec(hostA, hostB, testutil.TCP, now),
		spec(hostB, hostA, testutil.TCP, now),
		spec(hostA, hostC, testutil.UDP, now),
	)

	rec := &recorder{}
	p.Subscribe(rec)
	p.Clear()

	assert.Empty(t, p.Conversations())
	assert.Empty(t, p.Packets())
	view := p.GraphView()
	assert.Empty(t, view.Nodes)
	assert.Empty(t, view.Edges)
	require.Len(t, rec.resets, 1)
	assert.Empty(t, rec.resets[0])

	recs := ingest(t, p, spec(hostC, hostB, testutil.ICMP, now))
	assert.Equal(t, uint64(1), recs[0].Seq)
	assertConsistent(t, p)
}

func TestClear_ResetsCounters(t *testing.T) {
	p := New()
	now := time.Now()
	ingest(t, p,
		spec(hostA, hostB, testutil.TCP, now),
		spec(hostA, hostC, testutil.UDP, now),
	)
	_, err := p.Ingest(testutil.ARPPacket(t))
	require.Error(t, err)

	st := p.Stats()
	assert.Equal(t, uint64(2), st.Accepted)
	assert.Equal(t, uint64(1), st.Rejected)

	p.Clear()
	assert.Equal(t, Stats{}, p.Stats())

	ingest(t, p, spec(hostB, hostC, testutil.TCP, now))
	assert.Equal(t, uint64(1), p.Stats().Accepted)
}

func TestLaidOutGraphView_DoesNotBlockIngest(t *testing.T) {
	p := New()
	const hosts = 300
	addr := func(i int) string { return fmt.Sprintf("10.1.%d.%d", i/200, i%200+1) }
	now := time.Now()
	for i := 0; i < hosts; i++ {
		ingest(t, p,
			spec(addr(i), addr((i+1)%hosts), testutil.TCP, now),
			spec(addr(i), addr((i+7)%hosts), testutil.UDP, now),
		)
	}

	opts := graph.DefaultLayoutOptions()
	opts.Updates = 2000

	started := make(chan struct{})
	done := make(chan struct{})
	var view model.GraphView
	var layoutEnd time.Time
	go func() {
		close(started)
		view = p.LaidOutGraphView(opts)
		layoutEnd = time.Now()
		close(done)
	}()
	<-started
	time.Sleep(20 * time.Millisecond)

	ingestStart := time.Now()
	ingest(t, p, spec(hostA, hostB, testutil.TCP, now))
	ingestTook := time.Since(ingestStart)
	<-done

	layoutLeft := layoutEnd.Sub(ingestStart)
	if layoutLeft < 100*time.Millisecond {
		t.Skipf("layout finished %s after the ingest began; too fast to overlap", layoutLeft)
	}
	assert.Less(t, ingestTook, layoutLeft/2, "ingest waited for the layout")
	assert.GreaterOrEqual(t, len(view.Nodes), hosts)
	assert.Equal(t, hosts+2, p.Stats().Hosts)
}

func TestSelection_FiltersDisplayNotStorage(t *testing.T) {
	p := New()
	rec := &recorder{}
	p.Subscribe(rec)
	now := time.Now()

	ingest(t, p,
		spec(hostA, hostB, testutil.TCP, now),
		spec(hostB, hostA, testutil.TCP, now),
		spec(hostA, hostC, testutil.UDP, now),
	)
	require.Equal(t, []uint64{1, 2, 3}, rec.appendedSeqs())

	ab := model.NewFlowKey(hostB, hostA)
	require.NoError(t, p.Select(ab))

	require.Len(t, rec.resets, 1)
	assert.Len(t, rec.resets[0], 2)
	last := rec.graphs[len(rec.graphs)-1]
	assert.Equal(t, model.ScopeConversation, last.Scope)
	assert.Equal(t, "Diagram: 10.0.0.1 <-> 10.0.0.2", last.Title)
	assert.Equal(t, []model.FlowKey{ab}, last.Edges)
	assert.Len(t, last.Nodes, 2)

	graphsBefore := len(rec.graphs)
	recs := ingest(t, p, spec(hostA, hostC, testutil.UDP, now.Add(time.Second)))
	acSeq := recs[0].Seq

	// Stored in the log and its conversation, but not pushed to the focused view.
	assert.Equal(t, []uint64{1, 2, 3}, rec.appendedSeqs())
	assert.Len(t, p.Packets(), 4)
	ac, ok := p.Conversation(model.NewFlowKey(hostC, hostA))
	require.True(t, ok)
	assert.Equal(t, 2, ac.Count)
	assert.Len(t, p.DisplayedPackets(), 2)
	assert.Equal(t, graphsBefore, len(rec.graphs), "focused view graph must not change")

	// A packet for the focused conversation is still shown.
	recs = ingest(t, p, spec(hostA, hostB, testutil.TCP, now.Add(2*time.Second)))
	assert.Equal(t, []uint64{1, 2, 3, recs[0].Seq}, rec.appendedSeqs())

	// Selecting A-C immediately shows the packet that was hidden.
	require.NoError(t, p.Select(model.NewFlowKey(hostA, hostC)))
	shown := rec.resets[len(rec.resets)-1]
	require.Len(t, shown, 2)
	assert.Equal(t, acSeq, shown[1].Seq)

	sel, ok := p.Selection()
	require.True(t, ok)
	assert.Equal(t, model.NewFlowKey(hostA, hostC), sel)

	p.ClearSelection()
	_, ok = p.Selection()
	assert.False(t, ok)
	assert.Len(t, rec.resets[len(rec.resets)-1], 5)
	assert.Equal(t, model.ScopeAll, rec.graphs[len(rec.graphs)-1].Scope)
	assertConsistent(t, p)
}

func TestSelect_UnknownConversation(t *testing.T) {
	p := New()
	err := p.Select(model.NewFlowKey(hostA, hostB))
	assert.True(t, errors.Is(err, model.ErrUnknownConversation))
	_, ok := p.Selection()
	assert.False(t, ok)
}

func TestIngest_RejectsNonIP(t *testing.T) {
	p := New()
	ingest(t, p, spec(hostA, hostB, testutil.TCP, time.Now()))

	rec := &recorder{}
	p.Subscribe(rec)
	before := p.Packets()
	convsBefore := p.Conversations()
	graphBefore := p.GraphView()

	_, err := p.Ingest(testutil.ARPPacket(t))
	var malformed *model.MalformedPacketError
	require.True(t, errors.As(err, &malformed))

	assert.Equal(t, before, p.Packets())
	assert.Equal(t, convsBefore, p.Conversations())
	assert.Equal(t, graphBefore, p.GraphView())
	assert.Empty(t, rec.appended)
	assert.Empty(t, rec.convs)
	assert.Equal(t, uint64(1), p.Stats().Rejected)

	recs := ingest(t, p, spec(hostB, hostC, testutil.UDP, time.Now()))
	assert.Equal(t, uint64(2), recs[0].Seq)
}

func TestIngest_NotificationsFollowIngestionOrder(t *testing.T) {
	p := New(hostA)
	rec := &recorder{}
	p.Subscribe(rec)

	ingest(t, p, testutil.Conversation(30, time.Now())...)

	seqs := rec.appendedSeqs()
	require.Len(t, seqs, 30)
	for i, s := range seqs {
		assert.Equal(t, uint64(i+1), s)
	}
	assert.Len(t, rec.convs, 30)

	// One graph notification per new edge.
	assert.Len(t, rec.graphs, len(p.GraphView().Edges))
	for _, n := range rec.graphs[len(rec.graphs)-1].Nodes {
		assert.Equal(t, n.Address == hostA, n.Local)
	}
}

func TestUnsubscribe(t *testing.T) {
	p := New()
	rec := &recorder{}
	unsubscribe := p.Subscribe(rec)
	ingest(t, p, spec(hostA, hostB, testutil.TCP, time.Now()))
	unsubscribe()
	ingest(t, p, spec(hostA, hostB, testutil.TCP, time.Now()))
	assert.Equal(t, []uint64{1}, rec.appendedSeqs())
}

func TestObserverMayCallBack(t *testing.T) {
	p := New()
	var seen []int
	p.Subscribe(model.ObserverFuncs{
		OnPacket: func(model.PacketRecord) {
			seen = append(seen, len(p.Packets()))
		},
	})
	ingest(t, p,
		spec(hostA, hostB, testutil.TCP, time.Now()),
		spec(hostA, hostC, testutil.TCP, time.Now()),
	)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestIngest_ConcurrentReadersSeeConsistentState(t *testing.T) {
	p := New()
	specs := testutil.Conversation(400, time.Now())
	packets := make([]gopacket.Packet, 0, len(specs))
	for _, s := range specs {
		packets = append(packets, testutil.Packet(t, s))
	}

	stop := make(chan struct{})
	var readers sync.WaitGroup
	for i := 0; i < 4; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for _, c := range p.Conversations() {
					if c.State.Count != len(c.State.Packets) {
						t.Errorf("count %d != packets %d", c.State.Count, len(c.State.Packets))
						return
					}
				}
				_ = p.GraphView()
				_ = p.Stats()
			}
		}()
	}

	// Two writers split the packets between them.
	var writers sync.WaitGroup
	for w := 0; w < 2; w++ {
		writers.Add(1)
		go func(w int) {
			defer writers.Done()
			for i := w; i < len(packets); i += 2 {
				if _, err := p.Ingest(packets[i]); err != nil {
					t.Errorf("ingest %d: %v", i, err)
				}
			}
		}(w)
	}
	writers.Wait()
	close(stop)
	readers.Wait()

	recs := p.Packets()
	require.Len(t, recs, 400)
	for i, r := range recs {
		assert.Equal(t, uint64(i+1), r.Seq)
	}
	for _, c := range p.Conversations() {
		for i := 1; i < len(c.State.Packets); i++ {
			assert.Less(t, c.State.Packets[i-1].Seq, c.State.Packets[i].Seq, "order within %s", c.Key)
		}
	}
	assertConsistent(t, p)
}
