package main

import (
	"path/filepath"
	"testing"
)

func TestDBPathFor(t *testing.T) {
	if got := dbPathFor("/srv/data", ""); got != filepath.Join("/srv/data", "somnarium.sqlite") {
		t.Fatalf("default=%s", got)
	}
	if got := dbPathFor("/srv/data", " /tmp/other.sqlite "); got != "/tmp/other.sqlite" {
		t.Fatalf("override=%s", got)
	}
}
