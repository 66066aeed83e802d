package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestPartitionPlanOverride(t *testing.T) {
	p := NewPartitionPlan()
	p.Set(0x10000, "first.bin")
	p.Set(0x10000, "second.bin")

	assert.Equal(t, 1, p.Len())
	got, ok := p.Get(0x10000)
	assert.True(t, ok)
	assert.Equal(t, "second.bin", got)
}

func TestPartitionPlanSorted(t *testing.T) {
	p := NewPartitionPlan(
		Partition{0x10000, "nanoCLR.bin"},
		Partition{0x1000, "bootloader.bin"},
		Partition{0x8000, "partitions_4mb.bin"},
	)

	want := []Partition{
		{0x1000, "bootloader.bin"},
		{0x8000, "partitions_4mb.bin"},
		{0x10000, "nanoCLR.bin"},
	}
	if diff := cmp.Diff(want, p.Partitions()); diff != "" {
		t.Errorf("Partitions() mismatch (-want +got):\n%s", diff)
	}
}

func TestPartitionPlanCloneIsIndependent(t *testing.T) {
	p := NewPartitionPlan(Partition{0x1000, "a.bin"})
	c := p.Clone()
	c.Set(0x2000, "b.bin")
	c.Remove(0x1000)

	assert.Equal(t, 1, p.Len())
	_, ok := p.Get(0x1000)
	assert.True(t, ok)
	assert.Equal(t, []Partition{{0x2000, "b.bin"}}, c.Partitions())
}

func TestNilPlan(t *testing.T) {
	var p *PartitionPlan
	assert.Zero(t, p.Len())
	assert.Nil(t, p.Partitions())
	assert.Zero(t, p.Clone().Len())

	var zero PartitionPlan
	zero.Set(0x1000, "a.bin")
	assert.Equal(t, 1, zero.Len())
}

func TestMultiSink(t *testing.T) {
	var got []Phase
	a := EventSinkFunc(func(e Event) { got = append(got, e.Phase) })
	b := EventSinkFunc(func(e Event) { got = append(got, e.Phase+"!") })

	MultiSink(a, nil, b).Emit(Event{Phase: PhaseErase})
	assert.Equal(t, []Phase{PhaseErase, PhaseErase + "!"}, got)

	Discard.Emit(Event{})
}
