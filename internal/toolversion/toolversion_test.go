package toolversion

import "testing"

func TestCheckEmptyIsNoConflict(t *testing.T) {
	if err := Check(""); err != nil {
		t.Fatalf("empty SPOCK_VERSION should never conflict, got %v", err)
	}
}

func TestCheckMatching(t *testing.T) {
	if err := Check(Running); err != nil {
		t.Fatalf("matching version should not conflict, got %v", err)
	}
}

func TestCheckMismatch(t *testing.T) {
	err := Check("0.0.1")
	if err == nil {
		t.Fatal("expected a conflict error")
	}
	if _, ok := err.(*Conflict); !ok {
		t.Fatalf("expected *Conflict, got %T: %v", err, err)
	}
}

func TestCheckMalformed(t *testing.T) {
	if err := Check("not-a-semver"); err == nil {
		t.Fatal("expected an error for a malformed version")
	}
}
