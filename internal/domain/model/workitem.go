package model

// WorkItem is a registrable task in the external tracking catalogue.
type WorkItem struct {
	ID         string
	Name       string
	FolderName string
	FolderPath string
	SubItems   []WorkItem
}

// Label is the human readable "path/name" form.
func (w WorkItem) Label() string {
	if w.FolderPath == "" {
		return w.Name
	}
	return w.FolderPath + "/" + w.Name
}

// Leaves flattens a work item tree to its most nested children. Only leaves
// accept time entries.
func Leaves(items []WorkItem) []WorkItem {
	var out []WorkItem
	var walk func([]WorkItem)
	walk = func(level []WorkItem) {
		for _, it := range level {
			if len(it.SubItems) == 0 {
				out = append(out, it)
				continue
			}
			walk(it.SubItems)
		}
	}
	walk(items)
	return out
}

// Catalogue is a read-only id index over the leaves of a work item tree.
type Catalogue struct {
	items []WorkItem
	byID  map[string]int
}

// NewCatalogue indexes the leaves of items. When ids repeat the first wins.
func NewCatalogue(items []WorkItem) *Catalogue {
	leaves := Leaves(items)
	c := &Catalogue{byID: make(map[string]int, len(leaves))}
	for _, it := range leaves {
		if _, dup := c.byID[it.ID]; dup {
			continue
		}
		c.byID[it.ID] = len(c.items)
		c.items = append(c.items, it)
	}
	return c
}

// Get returns the work item with id.
func (c *Catalogue) Get(id string) (WorkItem, bool) {
	if c == nil {
		return WorkItem{}, false
	}
	i, ok := c.byID[id]
	if !ok {
		return WorkItem{}, false
	}
	return c.items[i], true
}

// Has reports whether id is in the catalogue.
func (c *Catalogue) Has(id string) bool {
	_, ok := c.Get(id)
	return ok
}

// Items returns the indexed work items in tree order.
func (c *Catalogue) Items() []WorkItem {
	if c == nil {
		return nil
	}
	return append([]WorkItem(nil), c.items...)
}

// Len returns the number of indexed items.
func (c *Catalogue) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}
