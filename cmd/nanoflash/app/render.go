package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/gosuri/uitable"

	"cloupeer.io/nanoflash/internal/flasher/compat"
	"cloupeer.io/nanoflash/internal/flasher/core"
)

func renderDevice(w io.Writer, dev *core.Device, target string, warnings []compat.Warning) error {
	table := uitable.New()
	table.MaxColWidth = 80
	table.Wrap = true

	rev := "unknown"
	if r, ok := dev.Revision(); ok {
		rev = fmt.Sprintf("%d", r)
	}

	table.AddRow("CHIP TYPE:", dev.ChipType)
	table.AddRow("CHIP:", dev.ChipName)
	table.AddRow("REVISION:", rev)
	table.AddRow("MAC:", dev.MACAddress)
	table.AddRow("FLASH:", fmt.Sprintf("%d MB", dev.FlashSize>>20))
	table.AddRow("FEATURES:", strings.Join(dev.Features, ", "))
	table.AddRow("TARGET:", target)
	if len(warnings) == 0 {
		table.AddRow("COMPATIBLE:", "yes")
	}
	if _, err := fmt.Fprintln(w, table); err != nil {
		return err
	}
	if len(warnings) == 0 {
		return nil
	}

	wt := uitable.New()
	wt.MaxColWidth = 80
	wt.Wrap = true
	wt.AddRow("WARNING", "DETAIL", "SUGGESTED TARGET")
	for _, warn := range warnings {
		wt.AddRow(string(warn.Kind), warn.Message, warn.Suggestion)
	}
	_, err := fmt.Fprintln(w, wt)
	return err
}
