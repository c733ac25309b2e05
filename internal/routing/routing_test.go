package routing_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/desports/wager-engine/internal/model"
	"github.com/desports/wager-engine/internal/routing"
)

func TestValidateChannel(t *testing.T) {
	for _, ch := range []string{routing.ChannelNative, routing.ChannelWrapped} {
		if err := routing.ValidateChannel(ch); err != nil {
			t.Errorf("ValidateChannel(%q) = %v, want nil", ch, err)
		}
	}
	if err := routing.ValidateChannel("sidechain"); !errors.Is(err, routing.ErrUnknownChannel) {
		t.Errorf("expected ErrUnknownChannel, got %v", err)
	}
	if err := routing.ValidateChannel(""); !errors.Is(err, routing.ErrUnknownChannel) {
		t.Errorf("expected ErrUnknownChannel for empty channel, got %v", err)
	}
}

func TestValidateAddress(t *testing.T) {
	valid := []string{
		"0x4b2fe3a1d9",
		"acct-primary.mainnet",
		"user_7:shard2",
	}
	for _, a := range valid {
		if err := routing.ValidateAddress(a); err != nil {
			t.Errorf("ValidateAddress(%q) = %v, want nil", a, err)
		}
	}

	invalid := []string{
		"",
		"has space",
		"bad!char",
		strings.Repeat("a", 129),
	}
	for _, a := range invalid {
		if err := routing.ValidateAddress(a); !errors.Is(err, routing.ErrInvalidAddress) {
			t.Errorf("ValidateAddress(%q) = %v, want ErrInvalidAddress", a, err)
		}
	}
}

func TestDestination_NoAssociationFallsBackToAccount(t *testing.T) {
	if got := routing.Destination(nil, "alice", false); got != "alice" {
		t.Errorf("expected account fallback, got %q", got)
	}
	if got := routing.Destination(nil, "alice", true); got != "alice" {
		t.Errorf("expected account fallback on secondary route, got %q", got)
	}
}

func TestDestination_RouteSelectsAddress(t *testing.T) {
	assoc := &model.Association{
		Account:   "alice",
		Primary:   "addr-primary",
		Secondary: "addr-secondary",
	}
	if got := routing.Destination(assoc, "alice", false); got != "addr-primary" {
		t.Errorf("expected primary, got %q", got)
	}
	if got := routing.Destination(assoc, "alice", true); got != "addr-secondary" {
		t.Errorf("expected secondary, got %q", got)
	}
}

func TestDestination_EmptySlotFallsBackToAccount(t *testing.T) {
	assoc := &model.Association{Account: "alice", Primary: "addr-primary"}
	if got := routing.Destination(assoc, "alice", true); got != "alice" {
		t.Errorf("expected account fallback for empty secondary, got %q", got)
	}
}
