// Package devices rebuilds the selectable device lists after every hardware
// change and carries the previous selection across rebuilds.
package devices

import "fmt"

// NoSelection marks a list with nothing selected.
const NoSelection = -1

// Source is the hardware layer the reconciler reads from. Devices is
// authoritative: its result replaces any previous list in full.
type Source interface {
	Devices(dir Direction) ([]Device, error)
	DefaultDevice(dir Direction) (Device, bool, error)
}

// Entry is one row of a reconciled list.
type Entry struct {
	Device
	Default bool
}

// List is the result of a reconciliation.
type List struct {
	Direction Direction
	Entries   []Entry
	Selected  int
}

// Empty reports whether there is nothing to choose from. Front ends show a
// disabled placeholder in that case.
func (l List) Empty() bool { return len(l.Entries) == 0 }

// SelectedDevice returns the selected device, if any.
func (l List) SelectedDevice() (Device, bool) {
	if l.Selected < 0 || l.Selected >= len(l.Entries) {
		return Device{}, false
	}
	return l.Entries[l.Selected].Device, true
}

// SelectedID returns the selected device ID or "".
func (l List) SelectedID() string {
	d, ok := l.SelectedDevice()
	if !ok {
		return ""
	}
	return d.ID
}

// IndexOf returns the position of id in the list or NoSelection.
func (l List) IndexOf(id string) int {
	for i, e := range l.Entries {
		if e.ID == id {
			return i
		}
	}
	return NoSelection
}

// Placeholder is the text shown for an empty list.
func (l List) Placeholder() string {
	return fmt.Sprintf("No %s devices available", l.Direction)
}

// Policy tunes reconciliation.
type Policy struct {
	ExcludeAggregate bool
}

// Resolve builds a list from an enumeration. Order is preserved. The entry
// matching previousID is selected if present, otherwise the first entry.
func Resolve(dir Direction, found []Device, defaultID, previousID string, p Policy) List {
	list := List{Direction: dir, Selected: NoSelection}
	for _, d := range found {
		if p.ExcludeAggregate && d.Transport == TransportAggregate {
			continue
		}
		list.Entries = append(list.Entries, Entry{
			Device:  d,
			Default: defaultID != "" && d.ID == defaultID,
		})
	}

	if list.Empty() {
		return list
	}
	if i := list.IndexOf(previousID); previousID != "" && i != NoSelection {
		list.Selected = i
	} else {
		list.Selected = 0
	}
	return list
}

// Reconciler re-reads a Source on demand.
type Reconciler struct {
	src    Source
	policy Policy
}

func NewReconciler(src Source, p Policy) *Reconciler {
	return &Reconciler{src: src, policy: p}
}

// Reconcile enumerates dir and re-resolves previousID against the result.
// An empty enumeration is a valid, empty list.
func (r *Reconciler) Reconcile(dir Direction, previousID string) (List, error) {
	found, err := r.src.Devices(dir)
	if err != nil {
		return List{Direction: dir, Selected: NoSelection}, fmt.Errorf("list %s devices: %w", dir, err)
	}

	var defaultID string
	if def, ok, err := r.src.DefaultDevice(dir); err == nil && ok {
		defaultID = def.ID
	}

	return Resolve(dir, found, defaultID, previousID, r.policy), nil
}
