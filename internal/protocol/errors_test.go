package protocol

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"somnarium.ai/internal/concoction"
)

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrBadRequest,
		ErrInvalidItems,
		ErrInvalidCode,
		ErrNotFound,
		ErrAllocationExhausted,
		ErrStorage,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("wrap: %w", concoction.ErrInvalidItems), http.StatusBadRequest, ErrInvalidItems},
		{concoction.ErrInvalidCode, http.StatusBadRequest, ErrInvalidCode},
		{fmt.Errorf("%w: ZZZZZZ", concoction.ErrNotFound), http.StatusNotFound, ErrNotFound},
		{concoction.ErrAllocationExhausted, http.StatusInternalServerError, ErrAllocationExhausted},
		{errors.New("disk"), http.StatusInternalServerError, ErrStorage},
	}
	for _, c := range cases {
		status, code := Classify(c.err)
		if status != c.status || code != c.code {
			t.Fatalf("Classify(%v)=%d,%s want %d,%s", c.err, status, code, c.status, c.code)
		}
		if !IsKnownCode(code) {
			t.Fatalf("Classify returned unknown code %q", code)
		}
	}
}
