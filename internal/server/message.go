package server

import (
	"github.com/techox/unotable/internal/store"
	"github.com/techox/unotable/internal/uno"
)

// Command types. Legacy underscore aliases from older clients are
// normalized in the router before dispatch.
const (
	CmdAuth         = "auth"
	CmdPing         = "ping"
	CmdRoomJoin     = "room.join"
	CmdRoomLeave    = "room.leave"
	CmdRoomReady    = "room.ready"
	CmdRoomDisband  = "room.disband"
	CmdMatchStart   = "match.start"
	CmdMatchPlay    = "match.play"
	CmdMatchDraw    = "match.draw"
	CmdCallUno      = "call_uno"
	CmdChallengeD4  = "challenge_wild_draw4"
	CmdPenalizeUno  = "penalize_forget_uno"
	CmdGetGameState = "get_game_state"
	CmdSyncState    = "sync_state"
)

var legacyAliases = map[string]string{
	"join_room":  CmdRoomJoin,
	"leave_room": CmdRoomLeave,
	"ready":      CmdRoomReady,
	"play_card":  CmdMatchPlay,
	"draw_card":  CmdMatchDraw,
}

// Event types pushed by the broadcaster
const (
	EvtRoomUserEvent  = "room_user_event"
	EvtRoomUpdated    = "room_updated"
	EvtRoomDisbanding = "room_disbanding"
	EvtRoomKicked     = "room_kicked"
	EvtRoomDisbanded  = "room_disbanded"
	EvtGameStarted    = "game_started"
	EvtGameAction     = "game_action"
	EvtGameFinished   = "game_finished"
)

// Client → Server payloads

type AuthData struct {
	Token string `json:"token"`
}

type JoinRoomData struct {
	RoomID int64 `json:"roomId"`
}

type ReadyData struct {
	Ready *bool `json:"ready,omitempty"` // omitted means true
}

type PlayCardData struct {
	Card  string `json:"card"`
	Color string `json:"color,omitempty"` // wild color choice
}

type PenalizeData struct {
	UserID int64 `json:"userId"`
}

// Server → Client payloads

type AuthAckData struct {
	UserID      int64  `json:"userId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Superseded  bool   `json:"superseded"`
}

type PongData struct {
	Time int64 `json:"time"`
}

type RoomStateData struct {
	Room    Room           `json:"room"`
	Members []store.Member `json:"members"`
}

type RoomUserEventData struct {
	RoomID  int64          `json:"roomId"`
	UserID  int64          `json:"userId"`
	Event   string         `json:"event"` // joined | left
	Members []store.Member `json:"members"`
}

type RoomClosingData struct {
	RoomID int64  `json:"roomId"`
	Reason string `json:"reason"`
}

type MatchStartedData struct {
	MatchID int64 `json:"matchId"`
	RoomID  int64 `json:"roomId"`
}

type DrawAckData struct {
	Drawn []string `json:"drawn"`
	State uno.View `json:"state"`
}

type SyncStateData struct {
	Room    Room           `json:"room"`
	Members []store.Member `json:"members"`
	Match   *GameEventData `json:"match,omitempty"`
}
