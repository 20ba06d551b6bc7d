package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// StaticAgent is a section agent used in dev and tests. It returns a
// canned summary per section without calling any model provider.
type StaticAgent struct {
	// Delay simulates the latency of a real agent call.
	Delay time.Duration
}

var _ SectionAgent = (*StaticAgent)(nil)

func (a *StaticAgent) Execute(ctx context.Context, entityID string, sectionID string, opts Options) (Result, error) {
	if a.Delay > 0 {
		select {
		case <-time.After(a.Delay):
		case <-ctx.Done():
			return Result{Success: false, Error: ctx.Err().Error()}, nil
		}
	}

	payload, err := json.Marshal(map[string]string{
		"section": sectionID,
		"entity":  entityID,
		"summary": fmt.Sprintf("placeholder %s analysis for %s", sectionID, entityID),
	})
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	return Result{Success: true, Data: payload}, nil
}
