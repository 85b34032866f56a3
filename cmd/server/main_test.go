package main

import (
	"errors"
	"testing"
)

func TestIsBrokerAuthFailureMatchesKnownRejectionText(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"Not Authorized", true},
		{"bad user name or password", true},
		{"connection Unauthorized", true},
		{"network Error", false},
		{"i/o timeout", false},
	}
	for _, c := range cases {
		if got := isBrokerAuthFailure(errors.New(c.msg)); got != c.want {
			t.Fatalf("isBrokerAuthFailure(%q) = %v, want %v", c.msg, got, c.want)
		}
	}
}
