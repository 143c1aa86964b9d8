// Package catalog holds the in-memory parcel set, the free-text filter and
// the map selection. Every mutation happens under one lock, so concurrent
// loaders (a Drive fetch and a local upload, say) cannot interleave partial
// writes.
package catalog

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"landplots/internal/finance"
	"landplots/internal/types"
)

var (
	ErrUnknownParcel = errors.New("unknown parcel")
	ErrUnknownField  = errors.New("unknown financial field")
)

// Editable financial fields.
const (
	FieldValue      = "value"
	FieldRentIncome = "rentIncome"
)

// Catalog owns the full parcel set. The selection references parcels by id
// and is resolved against the full set on every read.
type Catalog struct {
	mu       sync.RWMutex
	parcels  []types.Parcel
	index    map[string]int
	selected []string
}

// New returns a catalog seeded with initial.
func New(initial ...types.Parcel) *Catalog {
	c := &Catalog{}
	c.Replace(initial)
	return c
}

// Replace swaps the full set. Selected ids that no longer exist are dropped.
func (c *Catalog) Replace(parcels []types.Parcel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parcels = c.parcels[:0]
	c.index = make(map[string]int, len(parcels))
	c.appendLocked(parcels)
	kept := c.selected[:0]
	for _, id := range c.selected {
		if _, ok := c.index[id]; ok {
			kept = append(kept, id)
		}
	}
	c.selected = kept
}

// Merge appends parcels to the full set and returns how many were added.
// A parcel whose id is already present overwrites the stored record.
func (c *Catalog) Merge(parcels []types.Parcel) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendLocked(parcels)
}

func (c *Catalog) appendLocked(parcels []types.Parcel) int {
	added := 0
	for _, p := range parcels {
		if i, ok := c.index[p.ID]; ok {
			c.parcels[i] = p
			continue
		}
		c.index[p.ID] = len(c.parcels)
		c.parcels = append(c.parcels, p)
		added++
	}
	return added
}

// All returns a copy of the full set in load order.
func (c *Catalog) All() []types.Parcel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]types.Parcel(nil), c.parcels...)
}

// Len returns the size of the full set.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.parcels)
}

// Get looks a parcel up by id.
func (c *Catalog) Get(id string) (types.Parcel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[id]
	if !ok {
		return types.Parcel{}, false
	}
	return c.parcels[i], true
}

// Filter returns the parcels matching query, in load order. Address and
// purpose match case-insensitively; the cadastral number matches as typed.
// An empty query returns everything.
func (c *Catalog) Filter(query string) []types.Parcel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return filterLocked(c.parcels, query)
}

func filterLocked(parcels []types.Parcel, query string) []types.Parcel {
	if query == "" {
		return append([]types.Parcel(nil), parcels...)
	}
	q := strings.ToLower(query)
	out := []types.Parcel{}
	for _, p := range parcels {
		if strings.Contains(strings.ToLower(p.Address), q) ||
			strings.Contains(p.CadastralNumber, query) ||
			strings.Contains(strings.ToLower(p.Purpose), q) {
			out = append(out, p)
		}
	}
	return out
}

// Add puts id on the map. It reports false when id was already selected.
func (c *Catalog) Add(id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.index[id]; !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownParcel, id)
	}
	for _, s := range c.selected {
		if s == id {
			return false, nil
		}
	}
	c.selected = append(c.selected, id)
	return true, nil
}

// AddParcel stores p if its id is new and selects it. An already known id
// keeps the stored record.
func (c *Catalog) AddParcel(p types.Parcel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.index[p.ID]; !ok {
		c.appendLocked([]types.Parcel{p})
	}
	for _, s := range c.selected {
		if s == p.ID {
			return false
		}
	}
	c.selected = append(c.selected, p.ID)
	return true
}

// Remove takes id off the map. It reports whether id was selected.
func (c *Catalog) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.selected {
		if s == id {
			c.selected = append(c.selected[:i], c.selected[i+1:]...)
			return true
		}
	}
	return false
}

// SelectFiltered replaces the selection with everything matching query and
// returns the new selection size.
func (c *Catalog) SelectFiltered(query string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	matched := filterLocked(c.parcels, query)
	c.selected = make([]string, 0, len(matched))
	for _, p := range matched {
		c.selected = append(c.selected, p.ID)
	}
	return len(c.selected)
}

// ClearSelection empties the selection.
func (c *Catalog) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = nil
}

// Selected returns the selected parcels in selection order.
func (c *Catalog) Selected() []types.Parcel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selectedLocked()
}

func (c *Catalog) selectedLocked() []types.Parcel {
	out := make([]types.Parcel, 0, len(c.selected))
	for _, id := range c.selected {
		if i, ok := c.index[id]; ok {
			out = append(out, c.parcels[i])
		}
	}
	return out
}

// IsSelected reports whether id is on the map.
func (c *Catalog) IsSelected(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.selected {
		if s == id {
			return true
		}
	}
	return false
}

// SetFinancial updates the assessed value or the monthly rent of one parcel
// from user input. Unparseable input stores 0. Only the touched record
// changes; its yield follows on the next read.
func (c *Catalog) SetFinancial(id, field, raw string) (types.Parcel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[id]
	if !ok {
		return types.Parcel{}, fmt.Errorf("%w: %s", ErrUnknownParcel, id)
	}
	v := finance.ParseAmount(raw)
	switch field {
	case FieldValue:
		c.parcels[i].Value = v
	case FieldRentIncome, "rent_income":
		c.parcels[i].RentIncome = v
	default:
		return types.Parcel{}, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return c.parcels[i], nil
}
