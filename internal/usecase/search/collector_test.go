package search

import (
	"testing"

	"github.com/kailas-cloud/fedsearch/internal/cluster"
	"github.com/kailas-cloud/fedsearch/internal/coprocessor"
	"github.com/kailas-cloud/fedsearch/internal/domain/field"
	"github.com/kailas-cloud/fedsearch/internal/domain/table"
	"github.com/kailas-cloud/fedsearch/internal/domain/val"
)

func eventTables() []table.Settings {
	return []table.Settings{{
		ComponentID:   "events",
		Columns:       []table.Column{{Name: "user", Field: "UserId"}},
		ExtractValues: true,
		Pipeline:      jsonPipeline,
	}}
}

func TestCollector_SnapshotBeforeInitialisation(t *testing.T) {
	c := NewCollector("k", eventTables(), nil)
	resp := c.Snapshot()
	if resp.State != string(StateInitialising) || resp.Complete {
		t.Errorf("state = %s complete = %v", resp.State, resp.Complete)
	}
	if len(resp.Results) != 1 || resp.Results[0].ComponentID != "events" || resp.Results[0].Fields[0] != "user" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestCollector_ReceiveAndComplete(t *testing.T) {
	c := NewCollector("k", eventTables(), nil)
	c.attach(coprocessor.NewSet(eventTables(), nil, coprocessor.Limits{}))
	c.Expect("n1", "n2")

	c.Receive("n1", cluster.NodeResult{
		Payloads: []cluster.Payload{{
			Pipeline: jsonPipeline.UUID,
			Fields:   []string{field.StreamID, field.EventID, "UserId"},
			Rows:     [][]val.Val{{val.Long(1), val.Long(1), val.String("a")}},
		}},
		Errors:   []string{"boom", "boom"},
		Complete: true,
	})
	if c.nodeFinished("n1") {
		t.Fatal("n2 is still expected")
	}
	if !c.nodeFinished("n2") {
		t.Fatal("all expected nodes finished")
	}

	c.Complete()
	c.Terminate()
	resp := c.Snapshot()
	if !resp.Complete || resp.State != string(StateComplete) {
		t.Errorf("state = %s complete = %v", resp.State, resp.Complete)
	}
	if len(resp.Errors["n1"]) != 1 {
		t.Errorf("errors = %v", resp.Errors)
	}
	if resp.Results[0].TotalResults != 1 {
		t.Errorf("rows = %d", resp.Results[0].TotalResults)
	}
}

func TestCollector_TerminateCancelsAndLatches(t *testing.T) {
	cancelled := false
	c := NewCollector("k", eventTables(), func() { cancelled = true })
	c.setState(StateAwaiting)
	c.Terminate()
	c.setState(StateDispatched)

	if !cancelled || !c.IsComplete() || c.State() != StateTerminated {
		t.Errorf("cancelled=%v complete=%v state=%s", cancelled, c.IsComplete(), c.State())
	}
}
