package models

import "testing"

func TestDeviceStatusString(t *testing.T) {
	var zero PeerDevice
	if zero.Status != StatusUnknown || zero.Status.String() != "unknown" {
		t.Fatalf("expected zero status to be unknown, got %q", zero.Status)
	}

	cases := []struct {
		status DeviceStatus
		want   string
	}{
		{StatusConnected, "connected"},
		{StatusInvited, "invited"},
		{StatusFailed, "failed"},
		{StatusAvailable, "available"},
		{StatusUnavailable, "unavailable"},
		{DeviceStatus(99), "unknown"},
	}
	for _, tc := range cases {
		if got := tc.status.String(); got != tc.want {
			t.Fatalf("DeviceStatus(%d).String() = %q, want %q", int(tc.status), got, tc.want)
		}
	}
}
