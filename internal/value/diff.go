package value

import "sort"

// ChangeKind classifies the result of Diff.
type ChangeKind uint8

const (
	// Unchanged means the two values are equivalent.
	Unchanged ChangeKind = iota
	// Replaced means a scalar changed or the value switched kind.
	Replaced
	// SetChanged means a sequence gained or lost members.
	SetChanged
	// FieldsChanged means a mapping gained, lost or changed keys.
	FieldsChanged
)

// Change describes the structural difference between two values.
type Change struct {
	Kind ChangeKind

	// Replaced
	Old, New Value

	// SetChanged
	Added, Removed []Value

	// FieldsChanged
	AddedKeys   []string
	RemovedKeys []string
	Fields      []FieldChange

	addedKey, removedKey bool
}

// FieldChange is the change recorded under one mapping key.
type FieldChange struct {
	Key    string
	Change Change
}

// Empty reports whether the change records no difference.
func (c Change) Empty() bool { return c.Kind == Unchanged }

// Diff compares old against new. Scalars compare by equality, sequences as
// unordered sets of members (duplicates and order are ignored), and mappings
// key by key. A change of kind
// is reported as a replacement.
func Diff(old, new Value) Change {
	if old.kind != new.kind {
		return Change{Kind: Replaced, Old: old, New: new}
	}
	switch old.kind {
	case Null:
		return Change{}
	case Scalar:
		if old.Canonical() == new.Canonical() {
			return Change{}
		}
		return Change{Kind: Replaced, Old: old, New: new}
	case Sequence:
		return diffSequence(old, new)
	case Mapping:
		return diffMapping(old, new)
	}
	return Change{}
}

// Equivalent reports whether Diff finds no difference.
func Equivalent(a, b Value) bool {
	return Diff(a, b).Empty()
}

func diffSequence(old, new Value) Change {
	oldSet := memberSet(old.items)
	newSet := memberSet(new.items)
	var removed []Value
	for _, item := range uniqueMembers(old.items) {
		if _, ok := newSet[item.Canonical()]; !ok {
			removed = append(removed, item)
		}
	}
	var added []Value
	for _, item := range uniqueMembers(new.items) {
		if _, ok := oldSet[item.Canonical()]; !ok {
			added = append(added, item)
		}
	}
	if len(added) == 0 && len(removed) == 0 {
		return Change{}
	}
	return Change{Kind: SetChanged, Added: added, Removed: removed}
}

func memberSet(items []Value) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item.Canonical()] = struct{}{}
	}
	return set
}

// uniqueMembers keeps the first occurrence of each member, in order.
func uniqueMembers(items []Value) []Value {
	seen := make(map[string]struct{}, len(items))
	out := make([]Value, 0, len(items))
	for _, item := range items {
		key := item.Canonical()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func diffMapping(old, new Value) Change {
	var c Change
	for _, k := range old.keys {
		newChild, ok := new.fields[k]
		if !ok {
			c.RemovedKeys = append(c.RemovedKeys, k)
			c.Fields = append(c.Fields, FieldChange{Key: k, Change: Change{Kind: Replaced, Old: old.fields[k], removedKey: true}})
			continue
		}
		if child := Diff(old.fields[k], newChild); !child.Empty() {
			c.Fields = append(c.Fields, FieldChange{Key: k, Change: child})
		}
	}
	for _, k := range new.keys {
		if _, ok := old.fields[k]; ok {
			continue
		}
		c.AddedKeys = append(c.AddedKeys, k)
		c.Fields = append(c.Fields, FieldChange{Key: k, Change: Change{Kind: Replaced, New: new.fields[k], addedKey: true}})
	}
	if len(c.Fields) == 0 {
		return Change{}
	}
	c.Kind = FieldsChanged
	return c
}

// Paths lists the dotted paths touched by the change, sorted. Sequence
// changes end in "[]".
func (c Change) Paths() []string {
	var out []string
	c.collectPaths("", &out)
	sort.Strings(out)
	return out
}

func (c Change) collectPaths(prefix string, out *[]string) {
	switch c.Kind {
	case Replaced:
		*out = append(*out, orRoot(prefix))
	case SetChanged:
		*out = append(*out, orRoot(prefix)+"[]")
	case FieldsChanged:
		for _, f := range c.Fields {
			path := f.Key
			if prefix != "" {
				path = prefix + "." + f.Key
			}
			f.Change.collectPaths(path, out)
		}
	}
}

func orRoot(prefix string) string {
	if prefix == "" {
		return "$"
	}
	return prefix
}

// ToValue renders the change as the diff document stored in change logs:
//
//	replaced:   {"old": <old>, "new": <new>}
//	added key:  {"new": <value>}
//	removed key:{"old": <value>}
//	sequence:   {"added": [...], "removed": [...]}
//	mapping:    {"<key>": <child document>, ...}
func (c Change) ToValue() Value {
	switch c.Kind {
	case Replaced:
		doc := Value{kind: Mapping, fields: make(map[string]Value, 2)}
		if !c.addedKey {
			doc = doc.with("old", c.Old)
		}
		if !c.removedKey {
			doc = doc.with("new", c.New)
		}
		return doc
	case SetChanged:
		doc := Value{kind: Mapping, fields: make(map[string]Value, 2)}
		if len(c.Added) > 0 {
			doc = doc.with("added", NewSequence(c.Added...))
		}
		if len(c.Removed) > 0 {
			doc = doc.with("removed", NewSequence(c.Removed...))
		}
		return doc
	case FieldsChanged:
		doc := Value{kind: Mapping, fields: make(map[string]Value, len(c.Fields))}
		for _, f := range c.Fields {
			doc = doc.with(f.Key, f.Change.ToValue())
		}
		return doc
	}
	return NewMapping()
}
