package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/techox/unotable/internal/auth"
	"github.com/techox/unotable/internal/protocol"
	"github.com/techox/unotable/internal/session"
	"github.com/techox/unotable/internal/store"
	"github.com/techox/unotable/internal/uno"
)

// Router authenticates and dispatches inbound envelopes. One Handle call
// runs at a time per connection (the read pump is sequential); different
// connections dispatch concurrently.
type Router struct {
	logger   zerolog.Logger
	clock    quartz.Clock
	verifier auth.Verifier
	registry *session.Registry
	service  *GameService

	mu         sync.RWMutex
	identities map[int64]*auth.Identity
}

func NewRouter(verifier auth.Verifier, registry *session.Registry, service *GameService, clock quartz.Clock, logger zerolog.Logger) *Router {
	return &Router{
		logger:     logger.With().Str("component", "router").Logger(),
		clock:      clock,
		verifier:   verifier,
		registry:   registry,
		service:    service,
		identities: make(map[int64]*auth.Identity),
	}
}

// Handle processes one inbound envelope and writes the ack or error back
// on the same connection. Events triggered by the command go out through
// the broadcaster as a side effect.
func (r *Router) Handle(ctx context.Context, conn session.Conn, env *protocol.Envelope) {
	// Legacy clients omit kind on commands.
	if env.Kind != "" && env.Kind != protocol.KindCommand {
		r.sendErr(conn, env, protocol.CodeInvalidMessage, "only cmd envelopes are accepted")
		return
	}
	if env.Type == "" {
		r.sendErr(conn, env, protocol.CodeMissingType, "envelope has no type")
		return
	}

	cmdType := env.Type
	if canonical, ok := legacyAliases[cmdType]; ok {
		cmdType = canonical
	}

	r.logger.Debug().Str("type", cmdType).Str("conn_id", conn.ID()).Msg("command received")

	switch cmdType {
	case CmdAuth:
		r.handleAuth(ctx, conn, env)
		return
	case CmdPing:
		r.sendAck(conn, env, PongData{Time: r.clock.Now().UnixMilli()})
		return
	}

	userID, ok := r.registry.User(conn)
	if !ok {
		r.sendErr(conn, env, protocol.CodeAuthRequired, "authenticate first")
		return
	}

	switch cmdType {
	case CmdRoomJoin:
		var data JoinRoomData
		if !r.decode(conn, env, &data) {
			return
		}
		if data.RoomID == 0 {
			r.sendErr(conn, env, protocol.CodeMissingRoomID, "roomId is required")
			return
		}
		r.respond(conn, env, func() (interface{}, error) {
			return r.service.JoinRoom(userID, data.RoomID)
		})

	case CmdRoomLeave:
		r.respond(conn, env, func() (interface{}, error) {
			roomID, err := r.service.LeaveRoom(userID)
			if err != nil {
				return nil, err
			}
			return map[string]int64{"roomId": roomID}, nil
		})

	case CmdRoomReady:
		var data ReadyData
		if !r.decode(conn, env, &data) {
			return
		}
		ready := true
		if data.Ready != nil {
			ready = *data.Ready
		}
		r.respond(conn, env, func() (interface{}, error) {
			return r.service.SetReady(userID, ready)
		})

	case CmdRoomDisband:
		var data JoinRoomData
		if !r.decode(conn, env, &data) {
			return
		}
		if data.RoomID == 0 {
			r.sendErr(conn, env, protocol.CodeMissingRoomID, "roomId is required")
			return
		}
		r.respond(conn, env, func() (interface{}, error) {
			if err := r.service.Disband(userID, data.RoomID); err != nil {
				return nil, err
			}
			return map[string]int64{"roomId": data.RoomID}, nil
		})

	case CmdMatchStart:
		r.respond(conn, env, func() (interface{}, error) {
			return r.service.StartMatch(userID)
		})

	case CmdMatchPlay:
		var data PlayCardData
		if !r.decode(conn, env, &data) {
			return
		}
		if data.Card == "" {
			r.sendErr(conn, env, protocol.CodeMissingCard, "card is required")
			return
		}
		r.respond(conn, env, func() (interface{}, error) {
			return r.service.Play(userID, data.Card, data.Color)
		})

	case CmdMatchDraw:
		r.respond(conn, env, func() (interface{}, error) {
			return r.service.Draw(userID)
		})

	case CmdCallUno:
		r.respond(conn, env, func() (interface{}, error) {
			return r.service.CallUno(userID)
		})

	case CmdChallengeD4:
		r.respond(conn, env, func() (interface{}, error) {
			res, err := r.service.ChallengeWildDraw4(userID)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"successful":   res.Successful,
				"challengedId": res.ChallengedID,
				"penaltyCards": res.PenaltyCards,
				"reason":       res.Reason,
			}, nil
		})

	case CmdPenalizeUno:
		var data PenalizeData
		if !r.decode(conn, env, &data) {
			return
		}
		r.respond(conn, env, func() (interface{}, error) {
			res, err := r.service.PenalizeForgetUno(userID, data.UserID)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"penalizedId":  res.PenalizedID,
				"penaltyCards": res.PenaltyCards,
			}, nil
		})

	case CmdGetGameState:
		r.respond(conn, env, func() (interface{}, error) {
			return r.service.GameState(userID)
		})

	case CmdSyncState:
		r.respond(conn, env, func() (interface{}, error) {
			return r.service.SyncState(userID)
		})

	default:
		r.sendErr(conn, env, protocol.CodeUnknownMessageType, "unknown message type: "+env.Type)
	}
}

// Disconnect tears down everything a closed connection owned
func (r *Router) Disconnect(conn session.Conn) {
	userID, roomID, ok := r.registry.Unregister(conn)
	if !ok {
		return
	}

	r.mu.Lock()
	delete(r.identities, userID)
	r.mu.Unlock()

	r.service.HandleDisconnect(userID, roomID)
}

// Identity returns the cached identity for an authenticated user
func (r *Router) Identity(userID int64) (*auth.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.identities[userID]
	return id, ok
}

func (r *Router) handleAuth(ctx context.Context, conn session.Conn, env *protocol.Envelope) {
	var data AuthData
	if !r.decode(conn, env, &data) {
		return
	}

	identity, err := r.verifier.Verify(ctx, data.Token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			r.sendErr(conn, env, protocol.CodeInvalidToken, "invalid token")
			return
		}
		r.logger.Warn().Err(err).Msg("identity service unavailable")
		r.sendErr(conn, env, protocol.CodeInternalError, "identity service unavailable")
		return
	}

	superseded := r.registry.Register(identity.UserID, conn)
	r.mu.Lock()
	r.identities[identity.UserID] = identity
	r.mu.Unlock()

	r.logger.Info().
		Int64("user_id", identity.UserID).
		Str("username", identity.Username).
		Bool("superseded", superseded).
		Msg("authenticated")

	r.sendAck(conn, env, AuthAckData{
		UserID:      identity.UserID,
		Username:    identity.Username,
		DisplayName: identity.DisplayName,
		Superseded:  superseded,
	})
}

// respond runs a service call and converts its outcome to an ack or a
// typed error
func (r *Router) respond(conn session.Conn, env *protocol.Envelope, fn func() (interface{}, error)) {
	result, err := fn()
	if err != nil {
		code, msg := errorFor(err)
		r.sendErr(conn, env, code, msg)
		return
	}
	r.sendAck(conn, env, result)
}

func (r *Router) decode(conn session.Conn, env *protocol.Envelope, out interface{}) bool {
	if len(env.Data) == 0 {
		return true
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		r.sendErr(conn, env, protocol.CodeInvalidMessage, "malformed payload")
		return false
	}
	return true
}

func (r *Router) sendAck(conn session.Conn, cmd *protocol.Envelope, data interface{}) {
	ack, err := protocol.NewAck(cmd, data, r.clock.Now())
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to build ack")
		return
	}
	if err := conn.Send(ack); err != nil {
		r.logger.Debug().Err(err).Msg("failed to send ack")
	}
}

func (r *Router) sendErr(conn session.Conn, cmd *protocol.Envelope, code, message string) {
	if err := conn.Send(protocol.NewError(cmd, code, message, r.clock.Now())); err != nil {
		r.logger.Debug().Err(err).Msg("failed to send error")
	}
}

// errorFor maps rule and store errors to protocol error codes
func errorFor(err error) (string, string) {
	if ce, ok := IsCommandError(err); ok {
		return ce.Code, ce.Message
	}

	switch {
	case errors.Is(err, uno.ErrNotYourTurn):
		return protocol.CodeNotYourTurn, err.Error()
	case errors.Is(err, uno.ErrCardNotInHand):
		return protocol.CodeCardNotInHand, err.Error()
	case errors.Is(err, uno.ErrCardNotPlayable):
		return protocol.CodeIllegalCard, err.Error()
	case errors.Is(err, uno.ErrGameFinished):
		return protocol.CodeGameFinished, err.Error()
	case errors.Is(err, uno.ErrNotChallengeable):
		return protocol.CodeNotChallengeable, err.Error()
	case errors.Is(err, uno.ErrUnoNotEligible):
		return protocol.CodeUnoNotEligible, err.Error()
	case errors.Is(err, uno.ErrPenaltyNotEligible):
		return protocol.CodePenaltyNotEligible, err.Error()
	case errors.Is(err, uno.ErrPlayerNotFound):
		return protocol.CodeNotInRoom, err.Error()
	case errors.Is(err, store.ErrSessionNotFound):
		return protocol.CodeMatchNotFound, err.Error()
	default:
		return protocol.CodeInternalError, "internal error"
	}
}
