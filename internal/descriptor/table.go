// Package descriptor implements the table mapping guest descriptor numbers to
// the objects they refer to.
package descriptor

import "math/bits"

// Table is a data structure mapping 32 bit descriptors to objects.
//
// Descriptors are allocated with the same policy as Linux file descriptors:
// Insert always returns the lowest number which is not in use. Free slots are
// tracked with a bitmap, so finding the lowest one costs one bit scan per 64
// descriptors.
//
// The table is not safe for concurrent use, callers are expected to guard it
// with their own lock.
type Table[Descriptor ~int32 | ~uint32, Object any] struct {
	masks []uint64
	table []Object
}

// Len returns the number of objects stored in the table.
func (t *Table[Descriptor, Object]) Len() (n int) {
	for _, mask := range t.masks {
		n += bits.OnesCount64(mask)
	}
	return n
}

// Grow ensures that t has enough room for n objects.
func (t *Table[Descriptor, Object]) Grow(n int) {
	n = (n + 63) / 64

	if n > len(t.masks) {
		masks := make([]uint64, n)
		copy(masks, t.masks)

		table := make([]Object, n*64)
		copy(table, t.table)

		t.masks = masks
		t.table = table
	}
}

// Insert inserts the given object to the table, returning the lowest free
// descriptor that it is now mapped to.
func (t *Table[Descriptor, Object]) Insert(object Object) (desc Descriptor) {
	for index, mask := range t.masks {
		if ^mask != 0 { // not full?
			shift := bits.TrailingZeros64(^mask)
			desc = Descriptor(index)*64 + Descriptor(shift)
			t.table[desc] = object
			t.masks[index] = mask | uint64(1<<shift)
			return desc
		}
	}
	desc = Descriptor(len(t.masks) * 64)
	t.Grow(2*len(t.table) + 64)
	t.table[desc] = object
	t.masks[desc/64] |= 1
	return desc
}

// Assign is similar to Insert but it inserts the object at a specific
// descriptor number. If another object was already associated with that
// number, it is returned and the boolean is set to true to indicate that
// an object was replaced.
func (t *Table[Descriptor, Object]) Assign(desc Descriptor, object Object) (prev Object, replaced bool) {
	if int(desc) >= len(t.table) {
		t.Grow(int(desc) + 1)
	}
	index := uint(desc) / 64
	shift := uint(desc) % 64
	if (t.masks[index] & (1 << shift)) != 0 {
		prev, replaced = t.table[desc], true
	}
	t.masks[index] |= 1 << shift
	t.table[desc] = object
	return
}

// Access returns a pointer to the object associated with the given
// descriptor, which may be nil if it was not found in the table.
func (t *Table[Descriptor, Object]) Access(desc Descriptor) *Object {
	if i := int(desc); i >= 0 && i < len(t.table) {
		index := uint(desc) / 64
		shift := uint(desc) % 64
		if (t.masks[index] & (1 << shift)) != 0 {
			return &t.table[i]
		}
	}
	return nil
}

// Lookup returns the object associated with the given descriptor.
func (t *Table[Descriptor, Object]) Lookup(desc Descriptor) (object Object, found bool) {
	if ptr := t.Access(desc); ptr != nil {
		object, found = *ptr, true
	}
	return
}

// Delete removes the object stored at the given descriptor from the table and
// returns it.
func (t *Table[Descriptor, Object]) Delete(desc Descriptor) (object Object, found bool) {
	if i := int(desc); i >= 0 && i < len(t.table) {
		index, shift := uint(desc)/64, uint(desc)%64
		if mask := t.masks[index]; (mask & (1 << shift)) != 0 {
			var zero Object
			object, found = t.table[i], true
			t.table[i] = zero
			t.masks[index] = mask &^ (1 << shift)
		}
	}
	return
}

// Range calls f for each object and its associated descriptor in the table,
// in ascending descriptor order. The function f might return false to
// interrupt the iteration.
func (t *Table[Descriptor, Object]) Range(f func(Descriptor, Object) bool) {
	for i, mask := range t.masks {
		for mask != 0 {
			j := bits.TrailingZeros64(mask)
			mask &^= 1 << j
			if desc := Descriptor(i*64 + j); !f(desc, t.table[desc]) {
				return
			}
		}
	}
}

// Clone returns a copy of the table where each object is transformed by f,
// preserving the descriptor numbers. Objects for which f returns false are
// left out of the copy.
func Clone[Descriptor ~int32 | ~uint32, From, To any](t *Table[Descriptor, From], f func(Descriptor, From) (To, bool)) *Table[Descriptor, To] {
	c := new(Table[Descriptor, To])
	c.Grow(len(t.table))
	t.Range(func(desc Descriptor, object From) bool {
		if to, ok := f(desc, object); ok {
			c.Assign(desc, to)
		}
		return true
	})
	return c
}

// Reset clears the content of the table.
func (t *Table[Descriptor, Object]) Reset() {
	clear(t.masks)
	clear(t.table)
}
