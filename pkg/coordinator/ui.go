// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package coordinator

import (
	"fmt"
	"strconv"

	"github.com/Thermoquad/plcstrip/pkg/display"
	"github.com/Thermoquad/plcstrip/pkg/registry"
)

// Screen pages
const (
	PageHome    = "Home"
	PageControl = "Control"
)

// HomeSlots is the number of strips the home page can show
const HomeSlots = 3

// Home page slot geometry
const (
	shownIconY  = "95"
	shownNameY  = "105"
	shownStateY = "130"

	hiddenIconY  = "295"
	hiddenNameY  = "305"
	hiddenStateY = "330"

	emptySlotName = "Strip"
)

func ctl(prefix string, i int) string {
	return prefix + strconv.Itoa(i)
}

func boolVal(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// formatReading matches the two-decimal readings of the screen layout
func formatReading(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// setAll writes instructions in order and stops at the first error
func setAll(d display.Display, page string, props [][3]string) error {
	for _, p := range props {
		if err := d.SetProperty(page, p[0], p[1], p[2]); err != nil {
			return err
		}
	}
	return nil
}

// refreshHome lays out online strips in the first slots and hides the rest
func refreshHome(d display.Display, strips []registry.Strip) error {
	slot := 1
	for _, s := range strips {
		if !s.Online || slot > HomeSlots {
			continue
		}
		err := setAll(d, PageHome, [][3]string{
			{ctl("p", slot), "y", shownIconY},
			{ctl("sname", slot), "y", shownNameY},
			{ctl("ps", slot), "y", shownStateY},
			{ctl("sname", slot), "txt", s.Name},
			{ctl("pmac", slot), "txt", s.Address.String()},
		})
		if err != nil {
			return err
		}
		slot++
	}
	for ; slot <= HomeSlots; slot++ {
		err := setAll(d, PageHome, [][3]string{
			{ctl("p", slot), "y", hiddenIconY},
			{ctl("sname", slot), "y", hiddenNameY},
			{ctl("ps", slot), "y", hiddenStateY},
			{ctl("sname", slot), "txt", emptySlotName},
			{ctl("pmac", slot), "txt", ""},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// showControl fills the control page with a strip's settings
func showControl(d display.Display, s registry.Strip) error {
	props := [][3]string{
		{"mac", "txt", s.Address.String()},
		{"sname", "txt", s.Name},
	}
	for i, o := range s.Outputs {
		props = append(props, [3]string{ctl("bt", i+1), "val", boolVal(o.Enabled)})
	}
	for i, o := range s.Outputs {
		props = append(props, [3]string{ctl("xz", i+1), "val", strconv.Itoa(int(o.MaxPower))})
	}
	return setAll(d, PageControl, props)
}
