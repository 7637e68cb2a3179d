package main

import "testing"

func TestVersion_defaultsToDev(t *testing.T) {
	if version != "dev" {
		t.Errorf("expected default version \"dev\", got %q", version)
	}
}
