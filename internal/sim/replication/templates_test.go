package replication

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CaptureFirstWins(t *testing.T) {
	h := newFakeHost()
	c := h.add(&fakeContainer{id: "LOCKER@0,0,0", replicable: true})
	r := NewRegistry()

	first := h.item("SAND", 50)
	first.temp = 300
	second := h.item("SAND", 10)
	second.temp = 400
	second.dIdx, second.dCount = 2, 1000

	require.True(t, r.Capture(c, first))
	require.False(t, r.Capture(c, second))
	require.Equal(t, 1, r.Len(c.id))

	got, ok := r.Get(c.id, "SAND")
	require.True(t, ok)
	want := Template{Kind: "SAND", ReferenceName: "SAND", Temperature: 300, ContaminationIdx: NoContamination}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("template mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_CaptureIgnoresNil(t *testing.T) {
	r := NewRegistry()
	require.False(t, r.Capture(nil, &fakeItem{kind: "SAND"}))
	require.False(t, r.Capture(&fakeContainer{id: "C"}, nil))
	require.False(t, r.Capture(&fakeContainer{id: "C"}, &fakeItem{}))
	require.Equal(t, 0, r.Len("C"))
}

func TestRegistry_TemplatesSorted(t *testing.T) {
	h := newFakeHost()
	c := h.add(&fakeContainer{id: "C"})
	r := NewRegistry()
	for _, k := range []string{"WATER", "ALGAE", "DIRT"} {
		r.Capture(c, h.item(k, 1))
	}
	got := r.Templates(c.id)
	require.Len(t, got, 3)
	require.Equal(t, []string{"ALGAE", "DIRT", "WATER"}, []string{got[0].Kind, got[1].Kind, got[2].Kind})
	require.Nil(t, r.Templates("missing"))
}

func TestRegistry_EnsurePopulatedMatchesFreshCapture(t *testing.T) {
	h := newFakeHost()
	c := h.add(&fakeContainer{id: "C", replicable: true, replicating: true})
	c.items = []*fakeItem{h.item("SAND", 5), h.item("DIRT", 7), h.item("SAND", 9)}
	c.items[2].temp = 500

	fresh := NewRegistry()
	for _, it := range c.items {
		fresh.Capture(c, it)
	}

	r := NewRegistry()
	require.True(t, r.EnsurePopulated(c))
	if diff := cmp.Diff(fresh.Templates(c.id), r.Templates(c.id)); diff != "" {
		t.Fatalf("rebuilt templates differ (-fresh +rebuilt):\n%s", diff)
	}

	// Already populated: no second rebuild.
	require.False(t, r.EnsurePopulated(c))
}

func TestRegistry_EnsurePopulatedSkips(t *testing.T) {
	h := newFakeHost()
	r := NewRegistry()

	notFlagged := &fakeContainer{id: "A", items: []*fakeItem{h.item("SAND", 1)}}
	require.False(t, r.EnsurePopulated(notFlagged))

	empty := &fakeContainer{id: "B", replicating: true}
	require.False(t, r.EnsurePopulated(empty))

	require.False(t, r.EnsurePopulated(nil))
}

func TestRegistry_Clear(t *testing.T) {
	h := newFakeHost()
	c := &fakeContainer{id: "C"}
	r := NewRegistry()
	r.Capture(c, h.item("SAND", 1))
	r.Clear(c.id)
	require.Equal(t, 0, r.Len(c.id))
	_, ok := r.Get(c.id, "SAND")
	require.False(t, ok)
}
