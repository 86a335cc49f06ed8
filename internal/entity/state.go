package entity

import (
	"errors"
	"fmt"
)

// EventLogLimit bounds the in-memory session log.
const EventLogLimit = 256

var (
	ErrPartyNotFound    = errors.New("party not found")
	ErrDuplicateUnitID  = errors.New("duplicate unit id across parties")
	ErrNegativeResource = errors.New("negative resource counter")
	ErrWrongPartyCount  = errors.New("state must hold exactly two parties")
)

// Card is a playable asset in a party's hand, deck or discard pile.
type Card struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Cost  int    `json:"cost"`
	Power int    `json:"power"`
}

// Unit is an entity on a party's board.
type Unit struct {
	ID           string `json:"id"`
	CardID       string `json:"card_id,omitempty"`
	Name         string `json:"name"`
	Attack       int    `json:"attack"`
	Health       int    `json:"health"`
	Slot         int    `json:"slot"`
	Trait        string `json:"trait,omitempty"`
	CanIntercept bool   `json:"can_intercept,omitempty"`
	Concealed    bool   `json:"concealed,omitempty"`
}

const TraitMine = "mine"

// PartyState is one side's sub-state: resources, board and card zones.
type PartyState struct {
	ID          string `json:"id"`
	Automated   bool   `json:"automated,omitempty"`
	Energy      int    `json:"energy"`
	MaxEnergy   int    `json:"max_energy"`
	Shields     []Card `json:"shields,omitempty"`
	Hand        []Card `json:"hand,omitempty"`
	Deck        []Card `json:"deck,omitempty"`
	DiscardPile []Card `json:"discard_pile,omitempty"`
	Board       []Unit `json:"board,omitempty"`
}

// Interception is the single pending cross-party decision: an attack paused
// while the defender chooses whether to intercept.
type Interception struct {
	AttackerPartyID string   `json:"attacker_party_id"`
	DefenderPartyID string   `json:"defender_party_id"`
	AttackerUnitID  string   `json:"attacker_unit_id"`
	TargetUnitID    string   `json:"target_unit_id"`
	Candidates      []string `json:"candidates"`
}

// LogEntry records a past event for diagnostics and replays within the session.
type LogEntry struct {
	Round   int    `json:"round"`
	Phase   Phase  `json:"phase"`
	Message string `json:"message"`
}

// GameState is the canonical snapshot of a session. It is owned exclusively
// by its Store and mutated only through the Store's guarded entry point.
type GameState struct {
	Phase               Phase                     `json:"phase"`
	Round               int                       `json:"round"`
	ActivePartyID       string                    `json:"active_party_id"`
	Winner              string                    `json:"winner,omitempty"`
	Passes              map[string]bool           `json:"passes"`
	Parties             map[string]*PartyState    `json:"parties"`
	Commitments         map[Phase]map[string]bool `json:"commitments,omitempty"`
	PendingInterception *Interception             `json:"pending_interception,omitempty"`
	EventLog            []LogEntry                `json:"event_log,omitempty"`
}

// NewGameState creates a fresh pre-game snapshot for the two given parties.
func NewGameState(partyA, partyB string) *GameState {
	return &GameState{
		Phase:  PhasePreGame,
		Round:  0,
		Passes: map[string]bool{partyA: false, partyB: false},
		Parties: map[string]*PartyState{
			partyA: {ID: partyA},
			partyB: {ID: partyB},
		},
		Commitments: map[Phase]map[string]bool{},
	}
}

func (that *GameState) Party(id string) (*PartyState, error) {
	party, ok := that.Parties[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPartyNotFound, id)
	}
	return party, nil
}

// OpponentID returns the other party's identifier.
func (that *GameState) OpponentID(id string) string {
	for candidate := range that.Parties {
		if candidate != id {
			return candidate
		}
	}
	return ""
}

// FindUnit looks a unit up across both boards.
func (that *GameState) FindUnit(unitID string) (*Unit, string, bool) {
	for partyID, party := range that.Parties {
		for i := range party.Board {
			if party.Board[i].ID == unitID {
				return &party.Board[i], partyID, true
			}
		}
	}
	return nil, "", false
}

// Commit records a party's completion flag for a simultaneous phase.
func (that *GameState) Commit(phase Phase, partyID string) {
	if that.Commitments == nil {
		that.Commitments = map[Phase]map[string]bool{}
	}
	if that.Commitments[phase] == nil {
		that.Commitments[phase] = map[string]bool{}
	}
	that.Commitments[phase][partyID] = true
}

// CommitmentsComplete reports whether both parties committed for the phase.
func (that *GameState) CommitmentsComplete(phase Phase) bool {
	record := that.Commitments[phase]
	if record == nil {
		return false
	}
	for partyID := range that.Parties {
		if !record[partyID] {
			return false
		}
	}
	return true
}

// BothPassed reports whether both parties passed in the current phase.
func (that *GameState) BothPassed() bool {
	for partyID := range that.Parties {
		if !that.Passes[partyID] {
			return false
		}
	}
	return true
}

// ResetPasses clears pass flags, typically on a phase transition.
func (that *GameState) ResetPasses() {
	for partyID := range that.Parties {
		that.Passes[partyID] = false
	}
}

// AppendLog appends an entry, evicting the oldest past EventLogLimit.
func (that *GameState) AppendLog(message string) {
	that.EventLog = append(that.EventLog, LogEntry{Round: that.Round, Phase: that.Phase, Message: message})
	if len(that.EventLog) > EventLogLimit {
		that.EventLog = that.EventLog[len(that.EventLog)-EventLogLimit:]
	}
}

// Validate checks snapshot invariants: exactly two parties, non-negative
// resource counters and no duplicate unit identifiers across boards.
func (that *GameState) Validate() error {
	if len(that.Parties) != 2 {
		return fmt.Errorf("%w: got %d", ErrWrongPartyCount, len(that.Parties))
	}

	seen := map[string]bool{}
	for partyID, party := range that.Parties {
		if party.Energy < 0 || party.MaxEnergy < 0 {
			return fmt.Errorf("%w: party %s", ErrNegativeResource, partyID)
		}
		for _, unit := range party.Board {
			if seen[unit.ID] {
				return fmt.Errorf("%w: %s", ErrDuplicateUnitID, unit.ID)
			}
			seen[unit.ID] = true
		}
	}

	return nil
}

// Clone returns an independent copy of the snapshot. Card and Unit values are
// copied by value; no referenced structure is shared with the receiver.
func (that *GameState) Clone() *GameState {
	next := &GameState{
		Phase:         that.Phase,
		Round:         that.Round,
		ActivePartyID: that.ActivePartyID,
		Winner:        that.Winner,
		Passes:        make(map[string]bool, len(that.Passes)),
		Parties:       make(map[string]*PartyState, len(that.Parties)),
	}

	for partyID, passed := range that.Passes {
		next.Passes[partyID] = passed
	}

	for partyID, party := range that.Parties {
		next.Parties[partyID] = party.clone()
	}

	if that.Commitments != nil {
		next.Commitments = make(map[Phase]map[string]bool, len(that.Commitments))
		for phase, record := range that.Commitments {
			copied := make(map[string]bool, len(record))
			for partyID, done := range record {
				copied[partyID] = done
			}
			next.Commitments[phase] = copied
		}
	}

	if that.PendingInterception != nil {
		pending := *that.PendingInterception
		pending.Candidates = append([]string(nil), that.PendingInterception.Candidates...)
		next.PendingInterception = &pending
	}

	next.EventLog = append([]LogEntry(nil), that.EventLog...)

	return next
}

func (that *PartyState) clone() *PartyState {
	return &PartyState{
		ID:          that.ID,
		Automated:   that.Automated,
		Energy:      that.Energy,
		MaxEnergy:   that.MaxEnergy,
		Shields:     append([]Card(nil), that.Shields...),
		Hand:        append([]Card(nil), that.Hand...),
		Deck:        append([]Card(nil), that.Deck...),
		DiscardPile: append([]Card(nil), that.DiscardPile...),
		Board:       append([]Unit(nil), that.Board...),
	}
}

// GameplayEqual compares the gameplay-relevant fields of two snapshots:
// phase, round, active party, winner, pending interception, and per-party
// resources, hand, board, shield and pile composition. Log entries and
// commitments are ignored.
func (that *GameState) GameplayEqual(other *GameState) bool {
	if other == nil {
		return false
	}
	if that.Phase != other.Phase || that.Round != other.Round ||
		that.ActivePartyID != other.ActivePartyID || that.Winner != other.Winner {
		return false
	}
	if !samePending(that.PendingInterception, other.PendingInterception) {
		return false
	}
	if len(that.Parties) != len(other.Parties) {
		return false
	}

	for partyID, party := range that.Parties {
		counterpart, ok := other.Parties[partyID]
		if !ok || !party.gameplayEqual(counterpart) {
			return false
		}
	}

	return true
}

func (that *PartyState) gameplayEqual(other *PartyState) bool {
	if that.Energy != other.Energy || that.MaxEnergy != other.MaxEnergy {
		return false
	}
	if len(that.Deck) != len(other.Deck) || len(that.DiscardPile) != len(other.DiscardPile) {
		return false
	}
	if !sameCards(that.Hand, other.Hand) || !sameCards(that.Shields, other.Shields) {
		return false
	}
	if len(that.Board) != len(other.Board) {
		return false
	}
	for i := range that.Board {
		if that.Board[i] != other.Board[i] {
			return false
		}
	}
	return true
}

func samePending(a, b *Interception) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.AttackerPartyID != b.AttackerPartyID || a.DefenderPartyID != b.DefenderPartyID ||
		a.AttackerUnitID != b.AttackerUnitID || a.TargetUnitID != b.TargetUnitID {
		return false
	}
	if len(a.Candidates) != len(b.Candidates) {
		return false
	}
	for i := range a.Candidates {
		if a.Candidates[i] != b.Candidates[i] {
			return false
		}
	}
	return true
}

func sameCards(a, b []Card) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}
