package state

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/contract"
)

type slotValue struct {
	set   bool
	value any
}

// SlotStore is a fixed-schema mapping from declared slot names to values.
// Unset slots are tracked explicitly; the key set never changes.
type SlotStore struct {
	order  []string
	index  map[string]int
	values []slotValue
}

func NewSlotStore(slots []string) (*SlotStore, error) {
	s := &SlotStore{
		order:  make([]string, 0, len(slots)),
		index:  make(map[string]int, len(slots)),
		values: make([]slotValue, len(slots)),
	}
	for i, name := range slots {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%w: empty slot name at position %d", contractx.ErrInvalidHandler, i)
		}
		if _, dup := s.index[name]; dup {
			return nil, fmt.Errorf("%w: duplicate slot %q", contractx.ErrInvalidHandler, name)
		}
		s.index[name] = i
		s.order = append(s.order, name)
	}
	return s, nil
}

func (s *SlotStore) slot(name string) (*slotValue, error) {
	i, ok := s.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", contractx.ErrUndeclaredSlot, name)
	}
	return &s.values[i], nil
}

// Declared returns the slot names in declaration order.
func (s *SlotStore) Declared() []string {
	return append([]string(nil), s.order...)
}

func (s *SlotStore) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

func (s *SlotStore) Get(name string) (any, bool, error) {
	v, err := s.slot(name)
	if err != nil {
		return nil, false, err
	}
	return v.value, v.set, nil
}

func (s *SlotStore) IsSet(name string) (bool, error) {
	v, err := s.slot(name)
	if err != nil {
		return false, err
	}
	return v.set, nil
}

func (s *SlotStore) Set(name string, value any) error {
	v, err := s.slot(name)
	if err != nil {
		return err
	}
	v.set = true
	v.value = value
	return nil
}

func (s *SlotStore) Unset(name string) error {
	v, err := s.slot(name)
	if err != nil {
		return err
	}
	*v = slotValue{}
	return nil
}

// Ready holds iff no declared slot is unset.
func (s *SlotStore) Ready() bool {
	for _, v := range s.values {
		if !v.set {
			return false
		}
	}
	return true
}

// Missing returns the unset slots in declaration order.
func (s *SlotStore) Missing() []string {
	var missing []string
	for i, v := range s.values {
		if !v.set {
			missing = append(missing, s.order[i])
		}
	}
	return missing
}

// Values returns a copy of every set slot.
func (s *SlotStore) Values() map[string]any {
	out := make(map[string]any, len(s.order))
	for i, v := range s.values {
		if v.set {
			out[s.order[i]] = v.value
		}
	}
	return out
}
