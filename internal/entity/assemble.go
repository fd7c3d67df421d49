package entity

// Assembler rebuilds entities from the three relations SQL stores keep them
// in: base rows, declared field names and field items in delta order.
type Assembler struct {
	byID map[int64]*Entity
}

// NewAssembler returns an empty Assembler.
func NewAssembler() *Assembler {
	return &Assembler{byID: make(map[int64]*Entity)}
}

// AddEntity registers a base row. Fields are reset.
func (a *Assembler) AddEntity(e Entity) {
	e.Fields = map[string][]Item{}
	a.byID[e.ID] = &e
}

// AddField declares that entityID carries field name, possibly empty.
func (a *Assembler) AddField(entityID int64, name string) {
	e, ok := a.byID[entityID]
	if !ok {
		return
	}
	if _, ok := e.Fields[name]; !ok {
		e.Fields[name] = []Item{}
	}
}

// AddItem appends an item to a field. Items must arrive in delta order.
func (a *Assembler) AddItem(entityID int64, name string, it Item) {
	e, ok := a.byID[entityID]
	if !ok {
		return
	}
	e.Fields[name] = append(e.Fields[name], it)
}

// Ordered returns the assembled entities in the order of ids, skipping ids
// that were never added. Repeated ids yield independent copies.
func (a *Assembler) Ordered(ids []int64) []*Entity {
	out := make([]*Entity, 0, len(ids))
	for _, id := range ids {
		if e, ok := a.byID[id]; ok {
			out = append(out, e.Clone())
		}
	}
	return out
}
