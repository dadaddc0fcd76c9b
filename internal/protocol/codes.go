package protocol

import "strconv"

// Error codes carried in err envelopes. Clients switch on these, the
// accompanying message is for humans.
const (
	CodeAuthRequired       = "AUTH_REQUIRED"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeInvalidMessage     = "INVALID_MESSAGE"
	CodeMissingType        = "MISSING_TYPE"
	CodeMissingRoomID      = "MISSING_ROOM_ID"
	CodeMissingCard        = "MISSING_CARD"
	CodeUnknownMessageType = "UNKNOWN_MESSAGE_TYPE"
	CodeRoomNotFound       = "ROOM_NOT_FOUND"
	CodeRoomFull           = "ROOM_FULL"
	CodeNotInRoom          = "NOT_IN_ROOM"
	CodeNotRoomOwner       = "NOT_ROOM_OWNER"
	CodeNotEnoughPlayers   = "NOT_ENOUGH_PLAYERS"
	CodeMatchNotFound      = "MATCH_NOT_FOUND"
	CodeMatchInProgress    = "MATCH_IN_PROGRESS"
	CodeNotYourTurn        = "NOT_YOUR_TURN"
	CodeCardNotInHand      = "CARD_NOT_IN_HAND"
	CodeIllegalCard        = "ILLEGAL_CARD"
	CodeGameFinished       = "GAME_FINISHED"
	CodeNotChallengeable   = "NOT_CHALLENGEABLE"
	CodeUnoNotEligible     = "UNO_NOT_ELIGIBLE"
	CodePenaltyNotEligible = "PENALTY_NOT_ELIGIBLE"
	CodeInternalError      = "INTERNAL_ERROR"
)

// RoomChannel names the broadcast channel for a room
func RoomChannel(game string, roomID int64) string {
	return "room:" + game + ":" + strconv.FormatInt(roomID, 10)
}

// MatchChannel names the broadcast channel for a match
func MatchChannel(game string, matchID int64) string {
	return "match:" + game + ":" + strconv.FormatInt(matchID, 10)
}
