package run

import (
	"encoding/json"
	"testing"
	"time"
)

func TestStatusTerminal(t *testing.T) {
	cases := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{Status("garbage"), false},
	}
	for _, c := range cases {
		if got := c.status.Terminal(); got != c.want {
			t.Errorf("Status(%s).Terminal() = %v, want %v", c.status, got, c.want)
		}
	}
}

func TestAgentRunJSONOmitsEndedAtWhilePending(t *testing.T) {
	r := AgentRun{ID: "run-1", Status: StatusPending, StartedAt: time.Now()}
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var m map[string]interface{}
	json.Unmarshal(b, &m)
	if _, ok := m["ended_at"]; ok {
		t.Error("Pending run must not serialize ended_at")
	}

	ended := time.Now()
	r.Status = StatusCompleted
	r.EndedAt = &ended
	b, _ = json.Marshal(r)
	json.Unmarshal(b, &m)
	if _, ok := m["ended_at"]; !ok {
		t.Error("Terminal run must serialize ended_at")
	}
}
