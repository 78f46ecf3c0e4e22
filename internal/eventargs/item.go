package eventargs

import "github.com/ppiankov/hostpatch/internal/model"

// ChangingDurability is raised before an inventory item's durability changes.
type ChangingDurability struct {
	Cancellable
	old        model.Item
	durability int
}

func NewChangingDurability(old model.Item, durability int) *ChangingDurability {
	return &ChangingDurability{old: old, durability: durability}
}

// OldItem returns the item as it was before the change.
func (e *ChangingDurability) OldItem() model.Item { return e.old }
func (e *ChangingDurability) Durability() int     { return e.durability }
func (e *ChangingDurability) SetDurability(n int) { e.durability = n }

// NewItem is the value the host stores back: the old item carrying the
// current durability.
func (e *ChangingDurability) NewItem() model.Item {
	it := e.old
	it.Durability = e.durability
	return it
}
