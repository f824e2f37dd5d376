package pipeline

import (
	"sync"
	"time"
)

// Stage names, in merge order.
const (
	StageStock    = "stock"
	StageZones    = "zones"
	StageForecast = "forecast"
	StageLeadCost = "leadcost"
)

// StageNames lists all stages in their fixed merge order.
var StageNames = []string{StageStock, StageZones, StageForecast, StageLeadCost}

// StageState is one stage's readiness flag. Loading brackets exactly the
// stage's execution window, independent of other stages, so a consumer
// can show partial results while later stages are still in flight.
type StageState struct {
	Loading   bool      `json:"loading"`
	Err       string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type stageStates struct {
	mu     sync.RWMutex
	states map[string]StageState
}

func newStageStates() *stageStates {
	states := make(map[string]StageState, len(StageNames))
	for _, name := range StageNames {
		states[name] = StageState{}
	}
	return &stageStates{states: states}
}

func (s *stageStates) setLoading(stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[stage] = StageState{Loading: true, UpdatedAt: time.Now()}
}

func (s *stageStates) setDone(stage string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := StageState{UpdatedAt: time.Now()}
	if err != nil {
		state.Err = err.Error()
	}
	s.states[stage] = state
}

func (s *stageStates) snapshot() map[string]StageState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]StageState, len(s.states))
	for name, state := range s.states {
		out[name] = state
	}
	return out
}
