package engine

import (
	"testing"
)

func TestRegisterStartsEmpty(t *testing.T) {
	reg := NewRegister()

	snap := reg.Snapshot()
	if !snap.IsZero() {
		t.Errorf("Snapshot() = %+v, want sentinel", snap)
	}
}

func TestRegisterWriteAndSnapshot(t *testing.T) {
	reg := NewRegister()
	reg.Write(Request{AgentID: 1, InputURI: []byte("http://x/ok.txt")})

	snap := reg.Snapshot()
	if snap.AgentID != 1 || string(snap.InputURI) != "http://x/ok.txt" {
		t.Errorf("Snapshot() = %+v", snap)
	}

	// Reads are non-destructive
	again := reg.Snapshot()
	if again.IsZero() {
		t.Error("second Snapshot() consumed the slot")
	}
}

func TestRegisterWriteOverwrites(t *testing.T) {
	reg := NewRegister()
	reg.Write(Request{AgentID: 1, InputURI: []byte("http://x/a")})
	reg.Write(Request{AgentID: 2, InputURI: []byte("http://x/b")})

	snap := reg.Snapshot()
	if snap.AgentID != 2 || string(snap.InputURI) != "http://x/b" {
		t.Errorf("Snapshot() = %+v, want the second write", snap)
	}
}

func TestRegisterClearIsIdempotent(t *testing.T) {
	reg := NewRegister()
	reg.Write(Request{AgentID: 1, InputURI: []byte("http://x/a")})

	reg.Clear()
	reg.Clear()

	if snap := reg.Snapshot(); !snap.IsZero() {
		t.Errorf("Snapshot() after Clear = %+v, want sentinel", snap)
	}
}

func TestRegisterSnapshotIsIsolated(t *testing.T) {
	reg := NewRegister()
	reg.Write(Request{AgentID: 1, InputURI: []byte("http://x/a")})

	snap := reg.Snapshot()
	snap.InputURI[0] = 'Z'

	if string(reg.Snapshot().InputURI) != "http://x/a" {
		t.Error("mutating a snapshot leaked into the register")
	}
}

func TestRegisterWriteCopiesCallerBytes(t *testing.T) {
	reg := NewRegister()
	uri := []byte("http://x/a")
	reg.Write(Request{AgentID: 1, InputURI: uri})

	uri[0] = 'Z'

	if string(reg.Snapshot().InputURI) != "http://x/a" {
		t.Error("mutating caller bytes leaked into the register")
	}
}

func TestRequestValidity(t *testing.T) {
	tests := []struct {
		name  string
		req   Request
		zero  bool
		valid bool
	}{
		{"sentinel", Request{}, true, false},
		{"valid", Request{AgentID: 1, InputURI: []byte("u")}, false, true},
		{"zero id with uri", Request{AgentID: 0, InputURI: []byte("u")}, false, false},
		{"id with empty uri", Request{AgentID: 1}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.IsZero(); got != tt.zero {
				t.Errorf("IsZero() = %v, want %v", got, tt.zero)
			}
			if got := tt.req.Valid(); got != tt.valid {
				t.Errorf("Valid() = %v, want %v", got, tt.valid)
			}
		})
	}
}
