package models

import "testing"

func TestPathCatalog_DirAndName(t *testing.T) {
	cases := []struct {
		rel, dir, name string
	}{
		{"1.txt", "", "1.txt"},
		{"a/1.txt", "a", "1.txt"},
		{"a/b/2.txt", "a/b", "2.txt"},
	}
	for _, c := range cases {
		p := PathCatalog{RelativePath: c.rel}
		if got := p.Dir(); got != c.dir {
			t.Errorf("Dir(%q) = %q, want %q", c.rel, got, c.dir)
		}
		if got := p.Name(); got != c.name {
			t.Errorf("Name(%q) = %q, want %q", c.rel, got, c.name)
		}
	}
}

func TestTransferOutcome_AddAndRecord(t *testing.T) {
	var total TransferOutcome
	var sub TransferOutcome
	sub.Record(true)
	sub.Record(false)
	sub.Record(true)

	total.Record(true)
	total.Add(sub)

	if total.Succeeded != 3 || total.Failed != 1 {
		t.Errorf("expected {3 1}, got %+v", total)
	}
	if total.Visited() != 4 {
		t.Errorf("expected 4 visited, got %d", total.Visited())
	}
}
