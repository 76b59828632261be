package message

// Key is a controller key a player can press.
type Key string

const (
	KeyUp    Key = "UP"
	KeyDown  Key = "DOWN"
	KeyLeft  Key = "LEFT"
	KeyRight Key = "RIGHT"
	KeySpace Key = "SPACE"
)

// KeyAction says whether a key went down or up.
type KeyAction string

const (
	Press   KeyAction = "PRESS"
	Depress KeyAction = "DEPRESS"
)

// GameAction is the round state carried by GameStatus.
type GameAction string

const (
	GameStart   GameAction = "START"
	GameStop    GameAction = "STOP"
	GameWaiting GameAction = "WAITING"
)

// ObjectType is the kind of board object carried by GameObjectCreated.
type ObjectType string

const (
	ObjectPlayer    ObjectType = "PLAYER"
	ObjectBomb      ObjectType = "BOMB"
	ObjectExplosion ObjectType = "EXPLOSION"
	ObjectWall      ObjectType = "WALL"
	ObjectBox       ObjectType = "BOX"
	ObjectPowerUp   ObjectType = "POWER_UP"
)

var (
	keys        = setOf(KeyUp, KeyDown, KeyLeft, KeyRight, KeySpace)
	keyActions  = setOf(Press, Depress)
	gameActions = setOf(GameStart, GameStop, GameWaiting)
	objectTypes = setOf(ObjectPlayer, ObjectBomb, ObjectExplosion, ObjectWall, ObjectBox, ObjectPowerUp)
)

func setOf[T ~string](values ...T) map[string]T {
	m := make(map[string]T, len(values))
	for _, v := range values {
		m[string(v)] = v
	}
	return m
}

// ParseKey returns the Key named by s.
func ParseKey(s string) (Key, error) { return parseEnum(keys, "key", s) }

// ParseKeyAction returns the KeyAction named by s.
func ParseKeyAction(s string) (KeyAction, error) { return parseEnum(keyActions, "key action", s) }

// ParseGameAction returns the GameAction named by s.
func ParseGameAction(s string) (GameAction, error) { return parseEnum(gameActions, "game action", s) }

// ParseObjectType returns the ObjectType named by s.
func ParseObjectType(s string) (ObjectType, error) { return parseEnum(objectTypes, "object type", s) }

func parseEnum[T ~string](set map[string]T, what, s string) (T, error) {
	v, ok := set[s]
	if !ok {
		var zero T
		return zero, malformed("unknown %s %q", what, s)
	}
	return v, nil
}
