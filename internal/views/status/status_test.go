package status

import (
	"strings"
	"testing"

	"github.com/gautamrajesh007/Interceptor/internal/event"
	"github.com/gautamrajesh007/Interceptor/internal/model"
)

func TestViewConnectionPhase(t *testing.T) {
	tests := []struct {
		name    string
		phase   event.Phase
		retries int
		want    string
	}{
		{"connected", event.PhaseConnected, 0, "Live"},
		{"connecting", event.PhaseConnecting, 0, "Connecting"},
		{"offline", event.PhaseDisconnected, 0, "Offline"},
		{"retrying", event.PhaseDisconnected, 3, "retry 3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(nil)
			m.Width = 120
			m.Phase = tt.phase
			m.Retries = tt.retries
			if v := m.View(); !strings.Contains(v, tt.want) {
				t.Errorf("View() missing %q:\n%s", tt.want, v)
			}
		})
	}
}

func TestViewShowsUserAndTabs(t *testing.T) {
	m := New([]Page{{Key: "1", Label: "Dashboard"}, {Key: "2", Label: "Queries"}})
	m.Width = 120
	m.User = &model.User{Username: "peer1", Role: model.RolePeer}
	m.InFlight = 2

	v := m.View()
	for _, want := range []string{"Dashboard", "Queries", "peer1", "PEER", "2 in flight"} {
		if !strings.Contains(v, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}
