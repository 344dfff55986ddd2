package state

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	contractx "github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/contract"
)

func TestSlotStoreMissingInDeclarationOrder(t *testing.T) {
	t.Parallel()

	store, err := NewSlotStore([]string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("NewSlotStore() error = %v", err)
	}

	if diff := cmp.Diff([]string{"a", "b", "c"}, store.Missing()); diff != "" {
		t.Fatalf("Missing() mismatch (-want +got):\n%s", diff)
	}

	if err := store.Set("c", 3); err != nil {
		t.Fatalf("Set(c) error = %v", err)
	}
	if err := store.Set("a", 1); err != nil {
		t.Fatalf("Set(a) error = %v", err)
	}
	if diff := cmp.Diff([]string{"b"}, store.Missing()); diff != "" {
		t.Fatalf("Missing() mismatch (-want +got):\n%s", diff)
	}
	if store.Ready() {
		t.Fatal("Ready() = true with b unset")
	}

	if err := store.Set("b", 2); err != nil {
		t.Fatalf("Set(b) error = %v", err)
	}
	if !store.Ready() {
		t.Fatal("Ready() = false with every slot set")
	}
	if got := store.Missing(); len(got) != 0 {
		t.Fatalf("Missing() = %v, want empty", got)
	}
}

func TestSlotStoreUndeclaredSlot(t *testing.T) {
	t.Parallel()

	store, err := NewSlotStore([]string{"x"})
	if err != nil {
		t.Fatalf("NewSlotStore() error = %v", err)
	}

	if err := store.Set("y", 1); !errors.Is(err, contractx.ErrUndeclaredSlot) {
		t.Fatalf("Set(y) error = %v, want ErrUndeclaredSlot", err)
	}
	if _, _, err := store.Get("y"); !errors.Is(err, contractx.ErrUndeclaredSlot) {
		t.Fatalf("Get(y) error = %v, want ErrUndeclaredSlot", err)
	}
	if err := store.Unset("y"); !errors.Is(err, contractx.ErrUndeclaredSlot) {
		t.Fatalf("Unset(y) error = %v, want ErrUndeclaredSlot", err)
	}
}

func TestSlotStoreUnsetIsExplicit(t *testing.T) {
	t.Parallel()

	store, err := NewSlotStore([]string{"x"})
	if err != nil {
		t.Fatalf("NewSlotStore() error = %v", err)
	}

	if err := store.Set("x", nil); err != nil {
		t.Fatalf("Set(x, nil) error = %v", err)
	}
	if !store.Ready() {
		t.Fatal("a slot set to nil must count as filled")
	}

	if err := store.Unset("x"); err != nil {
		t.Fatalf("Unset(x) error = %v", err)
	}
	_, set, err := store.Get("x")
	if err != nil {
		t.Fatalf("Get(x) error = %v", err)
	}
	if set {
		t.Fatal("Get(x) reports set after Unset")
	}
	if diff := cmp.Diff([]string{"x"}, store.Declared()); diff != "" {
		t.Fatalf("Declared() mismatch (-want +got):\n%s", diff)
	}
}

func TestSlotStoreValuesOnlySet(t *testing.T) {
	t.Parallel()

	store, err := NewSlotStore([]string{"x", "y"})
	if err != nil {
		t.Fatalf("NewSlotStore() error = %v", err)
	}
	if err := store.Set("y", 7); err != nil {
		t.Fatalf("Set(y) error = %v", err)
	}

	if diff := cmp.Diff(map[string]any{"y": 7}, store.Values()); diff != "" {
		t.Fatalf("Values() mismatch (-want +got):\n%s", diff)
	}
}

func TestNewSlotStoreRejectsDuplicates(t *testing.T) {
	t.Parallel()

	if _, err := NewSlotStore([]string{"x", "x"}); !errors.Is(err, contractx.ErrInvalidHandler) {
		t.Fatalf("NewSlotStore() error = %v, want ErrInvalidHandler", err)
	}
	if _, err := NewSlotStore([]string{" "}); !errors.Is(err, contractx.ErrInvalidHandler) {
		t.Fatalf("NewSlotStore() error = %v, want ErrInvalidHandler", err)
	}
}
