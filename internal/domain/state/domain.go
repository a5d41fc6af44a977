package state

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("state not found")

type APIStatus string

const (
	StatusSuccess APIStatus = "success"
	StatusFailure APIStatus = "failure"
)

// EndpointState is the persisted notification state of one endpoint. JSON
// names follow the on-disk layout shared by every backend.
type EndpointState struct {
	MuteItems          bool       `json:"mutePayment"`
	MuteItemsUntil     *time.Time `json:"mutePaymentUntil"`
	MuteAPI            bool       `json:"muteApi"`
	LastAPIStatus      APIStatus  `json:"lastApiStatus"`
	LastFailureMessage string     `json:"lastFailureMessage"`
	ProcessedIDs       []string   `json:"processedPaymentIds"`
	MutedIDs           []string   `json:"mutedPaymentIds"`
}

func New() *EndpointState {
	return &EndpointState{
		LastAPIStatus: StatusSuccess,
		ProcessedIDs:  []string{},
		MutedIDs:      []string{},
	}
}

// Normalize fills gaps left by older or partial documents.
func (s *EndpointState) Normalize() *EndpointState {
	if s.LastAPIStatus == "" {
		s.LastAPIStatus = StatusSuccess
	}
	if s.ProcessedIDs == nil {
		s.ProcessedIDs = []string{}
	}
	if s.MutedIDs == nil {
		s.MutedIDs = []string{}
	}
	return s
}

func (s *EndpointState) Clone() *EndpointState {
	cp := *s
	if s.MuteItemsUntil != nil {
		u := *s.MuteItemsUntil
		cp.MuteItemsUntil = &u
	}
	cp.ProcessedIDs = append([]string{}, s.ProcessedIDs...)
	cp.MutedIDs = append([]string{}, s.MutedIDs...)
	return &cp
}

func (s *EndpointState) IsMuted(id string) bool { return contains(s.MutedIDs, id) }

func (s *EndpointState) AddMuted(ids ...string) { s.MutedIDs = addUnique(s.MutedIDs, ids) }

func (s *EndpointState) AddProcessed(ids ...string) { s.ProcessedIDs = addUnique(s.ProcessedIDs, ids) }

// Mute suppresses item notifications until the given time.
func (s *EndpointState) Mute(until time.Time) {
	s.MuteItems = true
	u := until
	s.MuteItemsUntil = &u
}

// Unmute lifts the item mute and forgets the muted id set.
func (s *EndpointState) Unmute() {
	s.MuteItems = false
	s.MuteItemsUntil = nil
	s.MutedIDs = []string{}
}

// MarkFailure records an API failure.
func (s *EndpointState) MarkFailure(msg string) {
	s.LastAPIStatus = StatusFailure
	s.LastFailureMessage = msg
}

// MarkRecovered flips the API back to success and returns the previous
// failure text.
func (s *EndpointState) MarkRecovered() string {
	prev := s.LastFailureMessage
	s.LastAPIStatus = StatusSuccess
	s.LastFailureMessage = ""
	s.MuteAPI = false
	return prev
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

func addUnique(list []string, ids []string) []string {
	seen := make(map[string]struct{}, len(list)+len(ids))
	for _, v := range list {
		seen[v] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		list = append(list, id)
	}
	return list
}
