package index

import "testing"

func TestInsertLookupSingleField(t *testing.T) {
	c := New()
	if err := c.CreateIndex(Definition{Name: "department", Fields: []string{"department"}}); err != nil {
		t.Fatalf("create index: %v", err)
	}
	if err := c.Insert("department", []interface{}{"Engineering"}, "doc1"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := c.Insert("department", []interface{}{"Engineering"}, "doc2"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	ids, ok := c.Lookup("department", []interface{}{"Engineering"})
	if !ok {
		t.Fatal("expected lookup to find the key")
	}
	if len(ids) != 2 {
		t.Errorf("expected 2 ids, got %d", len(ids))
	}
}

func TestRemoveDropsEmptyEntry(t *testing.T) {
	c := New()
	_ = c.CreateIndex(Definition{Name: "active", Fields: []string{"active"}})
	_ = c.Insert("active", []interface{}{true}, "doc1")
	_ = c.Remove("active", []interface{}{true}, "doc1")

	if _, ok := c.Lookup("active", []interface{}{true}); ok {
		t.Error("expected the entry to be gone after removing its only id")
	}
}

func TestIndexesForFieldDerivedLookup(t *testing.T) {
	c := New()
	_ = c.CreateIndex(Definition{Name: "by_dept", Fields: []string{"department"}})
	_ = c.CreateIndex(Definition{Name: "by_dept_active", Fields: []string{"department", "active"}})

	names := c.IndexesForField("department")
	if len(names) != 2 {
		t.Fatalf("expected 2 indexes covering department, got %d", len(names))
	}
}

func TestRangeIDsOnNumericIndex(t *testing.T) {
	c := New()
	_ = c.CreateIndex(Definition{Name: "age", Fields: []string{"age"}})
	for i := 0; i < 10; i++ {
		_ = c.Insert("age", []interface{}{float64(i)}, "doc")
	}

	if !c.IsRangeCapable("age") {
		t.Fatal("expected an all-numeric index to be range-capable")
	}

	min, max := float64(2), float64(5)
	ids, ok := c.RangeIDs("age", &min, &max, true, false)
	if !ok {
		t.Fatal("expected range query to succeed")
	}
	if len(ids) != 3 { // ages 2,3,4 with max exclusive
		t.Errorf("expected 3 matches, got %d", len(ids))
	}
}

func TestIsRangeCapableFalseWhenMixedTypes(t *testing.T) {
	c := New()
	_ = c.CreateIndex(Definition{Name: "mixed", Fields: []string{"mixed"}})
	_ = c.Insert("mixed", []interface{}{float64(1)}, "doc1")
	_ = c.Insert("mixed", []interface{}{"not-a-number"}, "doc2")

	if c.IsRangeCapable("mixed") {
		t.Error("expected a mixed-type index to not be range-capable")
	}
}

func TestPartialMatchOnCompositeIndex(t *testing.T) {
	c := New()
	_ = c.CreateIndex(Definition{Name: "dept_active", Fields: []string{"department", "active"}})
	_ = c.Insert("dept_active", []interface{}{"Sales", true}, "doc1")
	_ = c.Insert("dept_active", []interface{}{"Sales", false}, "doc2")
	_ = c.Insert("dept_active", []interface{}{"Engineering", true}, "doc3")

	ids, ok := c.PartialMatch("dept_active", 0, "Sales")
	if !ok {
		t.Fatal("expected partial match to succeed")
	}
	if len(ids) != 2 {
		t.Errorf("expected 2 matches for department=Sales, got %d", len(ids))
	}
}
