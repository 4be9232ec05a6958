package object

import "testing"

func keyVal(lt *LayoutTable, text string) Value {
	_ = lt
	s := NewString(text)
	s.SetFlag(FlagKey)
	return Box(s)
}

func TestSetSelGrowsUnsealedObject(t *testing.T) {
	lt := NewLayoutTable()
	root := lt.NewRoot(nil)
	obj := NewLookup(root)

	kx := keyVal(lt, "x")
	sel, err := lt.SetSel(obj, kx)
	if err != nil {
		t.Fatalf("SetSel: %v", err)
	}
	if !sel.Valid(obj.Layout) {
		t.Fatal("selector must validate against the object's new layout")
	}
	if obj.Slots.Len() <= int(sel.SIndex) {
		t.Fatal("SetSel must grow the object's vslots to cover the new slot")
	}
}

func TestSetSelSameKeyReusesNode(t *testing.T) {
	lt := NewLayoutTable()
	root := lt.NewRoot(nil)
	a := NewLookup(root)
	b := NewLookup(root)

	kx := keyVal(lt, "x")
	if _, err := lt.SetSel(a, kx); err != nil {
		t.Fatal(err)
	}
	if _, err := lt.SetSel(b, kx); err != nil {
		t.Fatal(err)
	}
	if a.Layout != b.Layout {
		t.Fatal("two objects adding the same key from the same root should share one layout node (hidden class sharing)")
	}
}

func TestSetSelDivergentKeysSplit(t *testing.T) {
	lt := NewLayoutTable()
	root := lt.NewRoot(nil)
	a := NewLookup(root)
	b := NewLookup(root)

	if _, err := lt.SetSel(a, keyVal(lt, "x")); err != nil {
		t.Fatal(err)
	}
	if _, err := lt.SetSel(b, keyVal(lt, "y")); err != nil {
		t.Fatal(err)
	}
	if a.Layout == b.Layout {
		t.Fatal("divergent keys from the same root must not share a layout node")
	}
	if a.Layout.Key.AsString().String() != "x" || b.Layout.Key.AsString().String() != "y" {
		t.Fatal("each branch should record its own key")
	}
}

func TestSetSelOnSealedObjectFails(t *testing.T) {
	lt := NewLayoutTable()
	obj := NewLookup(lt.NewRoot(nil))
	obj.Seal()
	if _, err := lt.SetSel(obj, keyVal(lt, "x")); err != ErrSealed {
		t.Fatalf("got %v, want ErrSealed", err)
	}
}

func TestGetSelMissReturnsFalse(t *testing.T) {
	lt := NewLayoutTable()
	obj := NewLookup(lt.NewRoot(nil))
	if _, ok := lt.GetSel(obj, keyVal(lt, "missing")); ok {
		t.Fatal("expected a miss on an empty object")
	}
}

func TestGetSelFindsOwnKey(t *testing.T) {
	lt := NewLayoutTable()
	obj := NewLookup(lt.NewRoot(nil))
	kx := keyVal(lt, "x")
	if _, err := lt.SetSel(obj, kx); err != nil {
		t.Fatal(err)
	}
	obj.Slots.Set(0, Number(42))

	sel, ok := lt.GetSel(obj, kx)
	if !ok {
		t.Fatal("expected to find the key just set")
	}
	if sel.Slot.Valid() {
		t.Fatal("a hit on the object's own chain should return a bare index, not a cached slot")
	}
	if obj.Slots.Get(sel.SIndex).Number() != 42 {
		t.Fatal("slot index did not resolve to the value written")
	}
}

func TestGetSelFallsThroughToPrototype(t *testing.T) {
	lt := NewLayoutTable()
	proto := NewLookup(lt.NewRoot(nil))
	kx := keyVal(lt, "greeting")
	if _, err := lt.SetSel(proto, kx); err != nil {
		t.Fatal(err)
	}
	proto.Slots.Set(0, Number(7))
	lt.SealPrototype(proto)

	instanceRoot, ok := lt.InstanceRoot(proto)
	if !ok {
		t.Fatal("SealPrototype must register an instance root")
	}
	inst := NewLookup(instanceRoot)

	sel, ok := lt.GetSel(inst, kx)
	if !ok {
		t.Fatal("expected the instance to inherit the prototype's key")
	}
	if !sel.Slot.Valid() {
		t.Fatal("a prototype hit must cache an absolute slot pointer")
	}
	if sel.Slot.Get().Number() != 7 {
		t.Fatal("cached slot did not resolve to the prototype's value")
	}
}

func TestDelKeyRewritesSubsequentKeys(t *testing.T) {
	lt := NewLayoutTable()
	obj := NewLookup(lt.NewRoot(nil))
	kx, ky, kz := keyVal(lt, "x"), keyVal(lt, "y"), keyVal(lt, "z")

	for i, k := range []Value{kx, ky, kz} {
		sel, err := lt.SetSel(obj, k)
		if err != nil {
			t.Fatal(err)
		}
		obj.Slots.Set(sel.SIndex, Number(float64(i)))
	}

	if err := lt.DelKey(obj, ky); err != nil {
		t.Fatalf("DelKey: %v", err)
	}
	if _, ok := lt.GetSel(obj, ky); ok {
		t.Fatal("deleted key must no longer be found")
	}
	selX, ok := lt.GetSel(obj, kx)
	if !ok || obj.Slots.Get(selX.SIndex).Number() != 0 {
		t.Fatal("surviving key x lost its value across DelKey")
	}
	selZ, ok := lt.GetSel(obj, kz)
	if !ok || obj.Slots.Get(selZ.SIndex).Number() != 2 {
		t.Fatal("surviving key z lost its value across DelKey")
	}
}

func TestDelKeyMissingKeyErrors(t *testing.T) {
	lt := NewLayoutTable()
	obj := NewLookup(lt.NewRoot(nil))
	if err := lt.DelKey(obj, keyVal(lt, "nope")); err != ErrKeyNotFound {
		t.Fatalf("got %v, want ErrKeyNotFound", err)
	}
}

func TestSelectorInvalidAfterLayoutChange(t *testing.T) {
	lt := NewLayoutTable()
	obj := NewLookup(lt.NewRoot(nil))
	sel, err := lt.SetSel(obj, keyVal(lt, "x"))
	if err != nil {
		t.Fatal(err)
	}
	if !sel.Valid(obj.Layout) {
		t.Fatal("selector should validate immediately after the set")
	}
	if _, err := lt.SetSel(obj, keyVal(lt, "y")); err != nil {
		t.Fatal(err)
	}
	if sel.Valid(obj.Layout) {
		t.Fatal("selector cached before the layout advanced must no longer validate")
	}
}
