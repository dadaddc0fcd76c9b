package server

import (
	"errors"
	"sync"
)

// Room statuses
const (
	RoomStatusWaiting = "waiting"
	RoomStatusPlaying = "playing"
)

var ErrRoomNotFound = errors.New("room not found")

// Room is the record the external room directory supplies. Creation,
// invites and durable storage live with that collaborator; this side only
// reads the record and flips its status around match lifecycle.
type Room struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Game       string `json:"game"`
	OwnerID    int64  `json:"ownerId"`
	MaxPlayers int    `json:"maxPlayers"`
	Status     string `json:"status"`
}

// RoomDirectory is the boundary to the room collaborator
type RoomDirectory interface {
	Room(id int64) (*Room, error)
	SetStatus(id int64, status string) error
}

// MemoryDirectory is an in-process RoomDirectory, seeded from config in dev
// and from test fixtures.
type MemoryDirectory struct {
	mu    sync.RWMutex
	rooms map[int64]*Room
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{rooms: make(map[int64]*Room)}
}

// Put seeds or replaces a room record
func (d *MemoryDirectory) Put(room Room) {
	if room.Game == "" {
		room.Game = "uno"
	}
	if room.MaxPlayers <= 0 {
		room.MaxPlayers = 4
	}
	if room.Status == "" {
		room.Status = RoomStatusWaiting
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.rooms[room.ID] = &room
}

func (d *MemoryDirectory) Room(id int64) (*Room, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	room, ok := d.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	copied := *room
	return &copied, nil
}

func (d *MemoryDirectory) SetStatus(id int64, status string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	room, ok := d.rooms[id]
	if !ok {
		return ErrRoomNotFound
	}
	room.Status = status
	return nil
}
