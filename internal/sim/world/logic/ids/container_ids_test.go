package ids

import "testing"

func TestContainerIDRoundTrip(t *testing.T) {
	id := ContainerID("STORAGE_LOCKER", 12, 0, -9)
	typ, x, y, z, ok := ParseContainerID(id)
	if !ok {
		t.Fatalf("ParseContainerID failed for %q", id)
	}
	if typ != "STORAGE_LOCKER" || x != 12 || y != 0 || z != -9 {
		t.Fatalf("unexpected parse result: typ=%q x=%d y=%d z=%d", typ, x, y, z)
	}
}

func TestParseContainerIDRejectsInvalid(t *testing.T) {
	tests := []string{
		"",
		"STORAGE_LOCKER",
		"STORAGE_LOCKER@1,2",
		"STORAGE_LOCKER@1,2,x",
	}
	for _, tc := range tests {
		if _, _, _, _, ok := ParseContainerID(tc); ok {
			t.Fatalf("expected parse failure for %q", tc)
		}
	}
}

func TestItemIDRoundTrip(t *testing.T) {
	id := ItemID(42)
	if id != "I000042" {
		t.Fatalf("ItemID(42) = %q", id)
	}
	n, ok := ParseItemID(id)
	if !ok || n != 42 {
		t.Fatalf("ParseItemID(%q) = %d, %v", id, n, ok)
	}
	if _, ok := ParseItemID("X000042"); ok {
		t.Fatal("expected prefix mismatch to fail")
	}
	if _, ok := ParseItemID("I"); ok {
		t.Fatal("expected empty number to fail")
	}
}
