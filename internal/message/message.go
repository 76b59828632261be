// internal/message/message.go
// Contains the typed messages exchanged between the game server and its clients.
package message

import "strconv"

// Tag is the first token of an encoded line and names the message variant.
type Tag string

const (
	TagGameObjectCreated   Tag = "GAME_OBJECT_CREATED"
	TagGameObjectUpdated   Tag = "GAME_OBJECT_POSITION_UPDATED"
	TagGameObjectDestroyed Tag = "GAME_OBJECT_DESTROYED"
	TagScoreUpdated        Tag = "SCORE_UPDATED"
	TagKeyInput            Tag = "KEY"
	TagGameStatus          Tag = "GAME"
	TagPlayerIdentity      Tag = "PLAYER_GAME_OBJECT_IDENTIFIER"
	TagGameTime            Tag = "GAME_TIME"
	TagHeartbeat           Tag = "STATUS"
)

// Message is one of the variants declared in this package. The set is closed:
// only types in this package can satisfy it.
type Message interface {
	Tag() Tag
	args() []string
	validate() error
}

// GameObjectCreated announces a new object on the board.
type GameObjectCreated struct {
	ObjectID   int
	ObjectType ObjectType
	Row        int // must be >= 0
	Col        int // must be >= 0
}

// GameObjectUpdated moves an existing object.
type GameObjectUpdated struct {
	ObjectID int
	Row      int // must be >= 0
	Col      int // must be >= 0
}

// GameObjectDestroyed removes an object from the board.
type GameObjectDestroyed struct {
	ObjectID int
}

// ScoreUpdated carries the new score of a player object. Scores may be negative.
type ScoreUpdated struct {
	ObjectID int
	Score    int
}

// KeyInput is sent by a client when a key is pressed or released.
type KeyInput struct {
	ObjectID int
	Key      Key
	Action   KeyAction
}

// GameStatus reports a change of the round state.
type GameStatus struct {
	Action      GameAction
	PlayerCount int
}

// PlayerIdentity tells a client which object it controls.
type PlayerIdentity struct {
	ObjectID int
}

// GameTime carries the seconds left in the current round.
type GameTime struct {
	SecondsRemaining int
}

// Heartbeat carries no payload. Connections drop it on receipt.
type Heartbeat struct{}

func (GameObjectCreated) Tag() Tag   { return TagGameObjectCreated }
func (GameObjectUpdated) Tag() Tag   { return TagGameObjectUpdated }
func (GameObjectDestroyed) Tag() Tag { return TagGameObjectDestroyed }
func (ScoreUpdated) Tag() Tag        { return TagScoreUpdated }
func (KeyInput) Tag() Tag            { return TagKeyInput }
func (GameStatus) Tag() Tag          { return TagGameStatus }
func (PlayerIdentity) Tag() Tag      { return TagPlayerIdentity }
func (GameTime) Tag() Tag            { return TagGameTime }
func (Heartbeat) Tag() Tag           { return TagHeartbeat }

func (m GameObjectCreated) args() []string {
	return []string{itoa(m.ObjectID), string(m.ObjectType), itoa(m.Row), itoa(m.Col)}
}

func (m GameObjectUpdated) args() []string {
	return []string{itoa(m.ObjectID), itoa(m.Row), itoa(m.Col)}
}

func (m GameObjectDestroyed) args() []string { return []string{itoa(m.ObjectID)} }

func (m ScoreUpdated) args() []string { return []string{itoa(m.ObjectID), itoa(m.Score)} }

func (m KeyInput) args() []string {
	return []string{itoa(m.ObjectID), string(m.Key), string(m.Action)}
}

func (m GameStatus) args() []string { return []string{string(m.Action), itoa(m.PlayerCount)} }

func (m PlayerIdentity) args() []string { return []string{itoa(m.ObjectID)} }

func (m GameTime) args() []string { return []string{itoa(m.SecondsRemaining)} }

func (Heartbeat) args() []string { return nil }

func (m GameObjectCreated) validate() error {
	if _, err := parseEnum(objectTypes, "object type", string(m.ObjectType)); err != nil {
		return err
	}
	return checkCoords(m.Row, m.Col)
}

func (m GameObjectUpdated) validate() error { return checkCoords(m.Row, m.Col) }

func (GameObjectDestroyed) validate() error { return nil }
func (ScoreUpdated) validate() error        { return nil }
func (PlayerIdentity) validate() error      { return nil }
func (GameTime) validate() error            { return nil }
func (Heartbeat) validate() error           { return nil }

func (m KeyInput) validate() error {
	if _, err := parseEnum(keys, "key", string(m.Key)); err != nil {
		return err
	}
	_, err := parseEnum(keyActions, "key action", string(m.Action))
	return err
}

func (m GameStatus) validate() error {
	_, err := parseEnum(gameActions, "game action", string(m.Action))
	return err
}

func checkCoords(row, col int) error {
	if row < 0 || col < 0 {
		return malformed("negative coordinate (%d, %d)", row, col)
	}
	return nil
}

func itoa(n int) string { return strconv.Itoa(n) }
