package plan

import (
	"strings"
	"testing"
)

func TestExplainRendersFileScan(t *testing.T) {
	c := newTestCatalog(t)
	users := usersTable(t, c)

	scan := NewFileScan(users.Heap, nil)
	if err := scan.Prepare(); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	out, err := Explain(scan)
	if err != nil {
		t.Fatalf("Explain() error = %v", err)
	}
	if !strings.Contains(out, "FileScan") || !strings.Contains(out, "users") {
		t.Fatalf("Explain() = %q, want it to mention FileScan and users", out)
	}
}

func TestExplainRendersJoinTree(t *testing.T) {
	c := newTestCatalog(t)
	users := usersTable(t, c)
	orders := ordersTable(t, c)

	left := NewFileScan(users.Heap, nil)
	right := NewFileScan(orders.Heap, nil)
	join := NewNestedLoopsJoin(left, right, JoinCross, nil)
	if err := join.Prepare(); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	out, err := Explain(join)
	if err != nil {
		t.Fatalf("Explain() error = %v", err)
	}
	if !strings.Contains(out, "NestedLoopsJoin") {
		t.Fatalf("Explain() = %q, want it to mention NestedLoopsJoin", out)
	}
	if strings.Count(out, "FileScan") != 2 {
		t.Fatalf("Explain() = %q, want both FileScan children present", out)
	}
}
