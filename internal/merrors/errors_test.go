package merrors

import (
	"database/sql"
	"errors"
	"testing"
)

func TestWrapAndIs(t *testing.T) {
	err := Wrap(NotFound, "eventstore.GetEvent", errors.New("boom"))
	if !Is(err, NotFound) {
		t.Fatalf("expected NotFound, got %v", CodeOf(err))
	}
	if errors.Is(err, ErrNotFound) != true {
		t.Fatalf("errors.Is against sentinel should match by code")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(Internal, "op", nil) != nil {
		t.Fatalf("Wrap(nil) should return nil")
	}
}

func TestCodeOfDefaultsInternal(t *testing.T) {
	if CodeOf(errors.New("plain")) != Internal {
		t.Fatalf("plain error should classify as Internal")
	}
}

func TestWrapDB(t *testing.T) {
	err := WrapDB("storage.Get", sql.ErrNoRows)
	if !Is(err, NotFound) {
		t.Fatalf("sql.ErrNoRows should map to NotFound, got %v", CodeOf(err))
	}

	err = WrapDB("storage.Get", errors.New("disk full"))
	if !Is(err, Storage) {
		t.Fatalf("generic db error should map to Storage, got %v", CodeOf(err))
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := Wrap(Conflict, "toc.PutNode", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("Unwrap should expose the underlying cause")
	}
}
