package descriptor_test

import (
	"testing"

	"github.com/stealthrocket/linux-go/internal/descriptor"
)

type fd int32

type socket struct{ name string }

func TestTable(t *testing.T) {
	table := new(descriptor.Table[fd, socket])

	if n := table.Len(); n != 0 {
		t.Errorf("new table is not empty: length=%d", n)
	}

	v0 := socket{name: "1"}
	v1 := socket{name: "2"}
	v2 := socket{name: "3"}

	k0 := table.Insert(v0)
	k1 := table.Insert(v1)
	k2 := table.Insert(v2)

	for _, lookup := range []struct {
		key fd
		val socket
	}{
		{key: k0, val: v0},
		{key: k1, val: v1},
		{key: k2, val: v2},
	} {
		if v, ok := table.Lookup(lookup.key); !ok {
			t.Errorf("value not found for key '%v'", lookup.key)
		} else if v.name != lookup.val.name {
			t.Errorf("wrong value returned for key '%v': want=%v got=%v", lookup.key, lookup.val.name, v.name)
		}
	}

	if n := table.Len(); n != 3 {
		t.Errorf("wrong table length: want=3 got=%d", n)
	}

	var keys []fd
	table.Range(func(k fd, v socket) bool {
		keys = append(keys, k)
		return true
	})
	if len(keys) != 3 || keys[0] != k0 || keys[1] != k1 || keys[2] != k2 {
		t.Errorf("wrong keys found while ranging over the table: %v", keys)
	}

	for i, deletion := range []struct {
		key fd
		val socket
	}{
		{key: k1, val: v1},
		{key: k0, val: v0},
		{key: k2, val: v2},
	} {
		v, ok := table.Delete(deletion.key)
		if !ok || v.name != deletion.val.name {
			t.Errorf("wrong value returned by deletion of '%v': %v", deletion.key, v)
		}
		if _, ok := table.Lookup(deletion.key); ok {
			t.Errorf("item found after deletion of '%v'", deletion.key)
		}
		if n, want := table.Len(), 3-(i+1); n != want {
			t.Errorf("wrong table length after deletion: want=%d got=%d", want, n)
		}
	}

	if _, ok := table.Delete(k0); ok {
		t.Error("deleting a free descriptor reported a removed value")
	}
}

func TestTableInsertLowestFree(t *testing.T) {
	table := new(descriptor.Table[fd, int])

	for i := 0; i < 200; i++ {
		if k := table.Insert(i); k != fd(i) {
			t.Fatalf("wrong descriptor allocated: want=%d got=%d", i, k)
		}
	}

	table.Delete(130)
	table.Delete(7)

	if k := table.Insert(-1); k != 7 {
		t.Errorf("lowest free descriptor not reused: want=7 got=%d", k)
	}
	if k := table.Insert(-1); k != 130 {
		t.Errorf("lowest free descriptor not reused: want=130 got=%d", k)
	}
	if k := table.Insert(-1); k != 200 {
		t.Errorf("wrong descriptor allocated on a full prefix: want=200 got=%d", k)
	}
}

func TestTableAssign(t *testing.T) {
	table := new(descriptor.Table[fd, string])

	if _, replaced := table.Assign(100, "a"); replaced {
		t.Error("assigning a free descriptor reported a replacement")
	}
	if prev, replaced := table.Assign(100, "b"); !replaced || prev != "a" {
		t.Errorf("wrong replacement: %q %t", prev, replaced)
	}
	if k := table.Insert("c"); k != 0 {
		t.Errorf("wrong descriptor allocated: want=0 got=%d", k)
	}
}

func TestClone(t *testing.T) {
	table := new(descriptor.Table[fd, int])
	for i := 0; i < 10; i++ {
		table.Insert(i)
	}
	table.Delete(3)

	clone := descriptor.Clone(table, func(k fd, v int) (string, bool) {
		return string(rune('a' + v)), v != 5
	})

	if n := clone.Len(); n != 8 {
		t.Errorf("wrong length of cloned table: want=8 got=%d", n)
	}
	if v, ok := clone.Lookup(4); !ok || v != "e" {
		t.Errorf("wrong value at descriptor 4: %q", v)
	}
	for _, k := range []fd{3, 5} {
		if _, ok := clone.Lookup(k); ok {
			t.Errorf("descriptor %d should not be present in the clone", k)
		}
	}
	if n := table.Len(); n != 9 {
		t.Errorf("cloning modified the source table: length=%d", n)
	}
}

func BenchmarkTableInsert(b *testing.B) {
	table := new(descriptor.Table[fd, *socket])
	entry := new(socket)

	for i := 0; i < b.N; i++ {
		table.Insert(entry)

		if (i % 65536) == 0 {
			table.Reset() // to avoid running out of memory
		}
	}
}

func BenchmarkTableLookup(b *testing.B) {
	const sentinel = "42"
	const numSockets = 65536
	table := new(descriptor.Table[fd, *socket])
	sockets := make([]fd, numSockets)
	entry := socket{name: sentinel}

	for i := range sockets {
		sockets[i] = table.Insert(&entry)
	}

	var s *socket
	for i := 0; i < b.N; i++ {
		s, _ = table.Lookup(sockets[i%numSockets])
	}
	if s.name != sentinel {
		b.Error("wrong socket returned by lookup")
	}
}
