package topic

import (
	"fmt"
	"strings"
)

// Topic segments published by nanoflash. Subscribers depend on these values.
const (
	// SuffixProgress carries one JSON event per workflow step.
	// Structure: {root}/flash/progress/{deviceID}
	SuffixProgress = "flash/progress"

	// SuffixResult carries the terminal outcome of a workflow, retained.
	// Structure: {root}/flash/result/{deviceID}
	SuffixResult = "flash/result"
)

// Builder encapsulates the logic for constructing MQTT topic strings.
type Builder struct {
	// root is the base namespace for all topics (e.g., "nanoflash/v1").
	root string
}

// NewBuilder creates a new Builder with the specified root namespace.
func NewBuilder(root string) *Builder {
	return &Builder{root: strings.TrimSuffix(root, "/")}
}

// Progress returns the topic for step events of a device.
func (b *Builder) Progress(deviceID string) string {
	return b.build(SuffixProgress, deviceID)
}

// Result returns the topic for the terminal outcome of a device.
func (b *Builder) Result(deviceID string) string {
	return b.build(SuffixResult, deviceID)
}

// build constructs {root}/{suffix}/{identifier}. MQTT wildcards in the
// identifier are replaced so a device id can never widen a subscription.
func (b *Builder) build(suffix, id string) string {
	id = strings.NewReplacer("+", "_", "#", "_", "/", "_").Replace(id)
	return fmt.Sprintf("%s/%s/%s", b.root, suffix, id)
}
