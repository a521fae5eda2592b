package redis

import (
	"fmt"

	"github.com/mcoot/matchsync/internal/model"
)

// Key prefix for all match data
const keyPrefix = "matchsync"

func participantKey(id model.ParticipantID) string {
	return fmt.Sprintf("%s:participant:%s", keyPrefix, id)
}

func matchKey(id model.MatchID) string {
	return fmt.Sprintf("%s:match:%s", keyPrefix, id)
}

func playerKey(matchID model.MatchID, slot model.Slot) string {
	return fmt.Sprintf("%s:player:%s:%d", keyPrefix, matchID, slot)
}

func unitKey(id model.UnitID) string {
	return fmt.Sprintf("%s:unit:%s", keyPrefix, id)
}

// unitsForMatchIndexKey returns the SET of unit ids belonging to a match
func unitsForMatchIndexKey(matchID model.MatchID) string {
	return fmt.Sprintf("%s:idx:match_units:%s", keyPrefix, matchID)
}

// spectatorsKey returns the HASH of participant id to spectator row
func spectatorsKey(matchID model.MatchID) string {
	return fmt.Sprintf("%s:spectators:%s", keyPrefix, matchID)
}
