// Package compat checks a device against the firmware target it is about to
// receive. Every finding is advisory: the workflow proceeds regardless.
package compat

import (
	"fmt"
	"strings"

	"cloupeer.io/nanoflash/internal/flasher/core"
)

// Kind classifies a Warning.
type Kind string

const (
	UnsupportedDevice Kind = "unsupported-device"
	RevisionMismatch  Kind = "revision-mismatch"
	MissingCapability Kind = "missing-capability"
)

// revision3 marks targets built for silicon revision 3 and later.
const revision3 = "REV3"

// Warning is one advisory finding.
type Warning struct {
	Kind    Kind
	Message string
	// Suggestion is an alternative target, when one applies.
	Suggestion string
}

func (w Warning) String() string {
	if w.Suggestion != "" {
		return fmt.Sprintf("%s (try target %s)", w.Message, w.Suggestion)
	}
	return w.Message
}

// Validate runs every check of dev against target and returns the findings.
// target is expected to be resolved already (see core.ResolveTarget).
func Validate(dev *core.Device, target string) []Warning {
	var warnings []Warning
	upper := strings.ToUpper(target)

	if dev.ChipType != core.ChipFamilyESP32 {
		warnings = append(warnings, Warning{
			Kind:    UnsupportedDevice,
			Message: fmt.Sprintf("device reports chip type %q, this workflow supports %s only", dev.ChipType, core.ChipFamilyESP32),
		})
	}

	if strings.Contains(upper, revision3) {
		if rev, ok := dev.Revision(); ok && rev < 3 {
			warnings = append(warnings, Warning{
				Kind:       RevisionMismatch,
				Message:    fmt.Sprintf("target %s requires silicon revision 3, device %q is revision %d", target, dev.ChipName, rev),
				Suggestion: genericTarget(target),
			})
		}
	}

	if strings.Contains(upper, "BLE") && !dev.HasFeature("BT") && !dev.HasFeature("BLE") {
		warnings = append(warnings, Warning{
			Kind:    MissingCapability,
			Message: fmt.Sprintf("target %s uses Bluetooth, device features %v do not include it", target, dev.Features),
		})
	}

	return warnings
}

func genericTarget(target string) string {
	i := strings.Index(strings.ToUpper(target), revision3)
	if i < 0 {
		return core.DefaultTarget
	}
	return target[:i] + "REV0" + target[i+len(revision3):]
}
