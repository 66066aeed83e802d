package core

import (
	"fmt"
	"maps"
	"slices"
)

// SectorSize is the erase granularity of the flash chip.
const SectorSize = 4096

// Partition is one entry of a PartitionPlan.
type Partition struct {
	Address uint32
	Path    string
}

func (p Partition) String() string {
	return fmt.Sprintf("0x%X=%s", p.Address, p.Path)
}

// PartitionPlan maps flash addresses to the binary written there.
// Addresses are unique; setting an existing address replaces its entry.
// A plan belongs to a single workflow invocation and is not safe for concurrent use.
type PartitionPlan struct {
	entries map[uint32]string
}

// NewPartitionPlan returns a plan holding the given partitions in order,
// later entries overriding earlier ones at the same address.
func NewPartitionPlan(parts ...Partition) *PartitionPlan {
	p := &PartitionPlan{entries: make(map[uint32]string, len(parts))}
	for _, part := range parts {
		p.Set(part.Address, part.Path)
	}
	return p
}

// Set places path at address, replacing any previous entry there.
func (p *PartitionPlan) Set(address uint32, path string) {
	if p.entries == nil {
		p.entries = make(map[uint32]string)
	}
	p.entries[address] = path
}

// Remove drops the entry at address, if any.
func (p *PartitionPlan) Remove(address uint32) {
	delete(p.entries, address)
}

// Get returns the path stored at address.
func (p *PartitionPlan) Get(address uint32) (string, bool) {
	path, ok := p.entries[address]
	return path, ok
}

// Len returns the number of entries.
func (p *PartitionPlan) Len() int {
	if p == nil {
		return 0
	}
	return len(p.entries)
}

// Partitions returns the entries sorted by address.
func (p *PartitionPlan) Partitions() []Partition {
	if p == nil {
		return nil
	}
	addrs := slices.Sorted(maps.Keys(p.entries))
	parts := make([]Partition, 0, len(addrs))
	for _, a := range addrs {
		parts = append(parts, Partition{Address: a, Path: p.entries[a]})
	}
	return parts
}

// Clone returns an independent copy of p.
func (p *PartitionPlan) Clone() *PartitionPlan {
	if p == nil {
		return NewPartitionPlan()
	}
	return &PartitionPlan{entries: maps.Clone(p.entries)}
}

// EraseRange is a sector-aligned region of flash.
type EraseRange struct {
	Address uint32
	Length  uint32
}

func (r EraseRange) String() string {
	return fmt.Sprintf("0x%X+0x%X", r.Address, r.Length)
}
