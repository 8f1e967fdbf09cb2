package version

import "testing"

func TestFields(t *testing.T) {
	fields := Fields()
	if len(fields) != 3 {
		t.Fatalf("Fields() returned %d fields, want 3", len(fields))
	}
	if fields[0].Key != "version" || fields[0].String != Version {
		t.Errorf("first field = %s=%q, want version=%q", fields[0].Key, fields[0].String, Version)
	}
}
