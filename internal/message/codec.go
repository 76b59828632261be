package message

import (
	"fmt"
	"strconv"
	"strings"
)

// Validate reports whether m can be encoded as exactly one line that decodes
// back to m: enum fields must hold a known value and coordinates must not be
// negative. Failures wrap ErrMalformedMessage.
func Validate(m Message) error {
	if m == nil {
		return malformed("nil message")
	}
	if err := m.validate(); err != nil {
		return fmt.Errorf("%s: %w", m.Tag(), err)
	}
	return nil
}

// Encode renders m as a single line: the tag followed by its arguments,
// separated by single spaces. m must pass Validate, otherwise the line may not
// decode back to m.
func Encode(m Message) string {
	args := m.args()
	if len(args) == 0 {
		return string(m.Tag())
	}
	var b strings.Builder
	b.WriteString(string(m.Tag()))
	for _, a := range args {
		b.WriteByte(' ')
		b.WriteString(a)
	}
	return b.String()
}

type decoder struct {
	argc  int
	build func(p *parser) Message
}

var decoders = map[Tag]decoder{
	TagGameObjectCreated: {4, func(p *parser) Message {
		return GameObjectCreated{ObjectID: p.integer(), ObjectType: p.objectType(), Row: p.coord(), Col: p.coord()}
	}},
	TagGameObjectUpdated: {3, func(p *parser) Message {
		return GameObjectUpdated{ObjectID: p.integer(), Row: p.coord(), Col: p.coord()}
	}},
	TagGameObjectDestroyed: {1, func(p *parser) Message {
		return GameObjectDestroyed{ObjectID: p.integer()}
	}},
	TagScoreUpdated: {2, func(p *parser) Message {
		return ScoreUpdated{ObjectID: p.integer(), Score: p.integer()}
	}},
	TagKeyInput: {3, func(p *parser) Message {
		return KeyInput{ObjectID: p.integer(), Key: p.key(), Action: p.keyAction()}
	}},
	TagGameStatus: {2, func(p *parser) Message {
		return GameStatus{Action: p.gameAction(), PlayerCount: p.integer()}
	}},
	TagPlayerIdentity: {1, func(p *parser) Message {
		return PlayerIdentity{ObjectID: p.integer()}
	}},
	TagGameTime: {1, func(p *parser) Message {
		return GameTime{SecondsRemaining: p.integer()}
	}},
	TagHeartbeat: {0, func(*parser) Message {
		return Heartbeat{}
	}},
}

// Decode parses one line produced by Encode. A trailing "\n" or "\r\n" is
// ignored; any other stray whitespace makes the line malformed. Every failure
// wraps ErrMalformedMessage.
func Decode(line string) (Message, error) {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	if line == "" {
		return nil, malformed("empty line")
	}

	tokens := strings.Split(line, " ")
	tag := Tag(tokens[0])
	dec, ok := decoders[tag]
	if !ok {
		return nil, malformed("unknown tag %q", tokens[0])
	}
	if got := len(tokens) - 1; got != dec.argc {
		return nil, malformed("%s takes %d arguments, got %d", tag, dec.argc, got)
	}

	p := &parser{tag: tag, tokens: tokens[1:]}
	m := dec.build(p)
	if p.err != nil {
		return nil, p.err
	}
	return m, nil
}

// parser consumes argument tokens left to right and keeps the first error.
type parser struct {
	tag    Tag
	tokens []string
	pos    int
	err    error
}

func (p *parser) next() string {
	tok := p.tokens[p.pos]
	p.pos++
	return tok
}

func (p *parser) integer() int {
	tok := p.next()
	if p.err != nil {
		return 0
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		p.err = malformed("%s argument %d: %q is not an integer", p.tag, p.pos, tok)
	}
	return n
}

func (p *parser) coord() int {
	n := p.integer()
	if p.err == nil && n < 0 {
		p.err = malformed("%s argument %d: negative coordinate %d", p.tag, p.pos, n)
	}
	return n
}

func (p *parser) key() Key               { return enumArg(p, ParseKey) }
func (p *parser) keyAction() KeyAction   { return enumArg(p, ParseKeyAction) }
func (p *parser) gameAction() GameAction { return enumArg(p, ParseGameAction) }
func (p *parser) objectType() ObjectType { return enumArg(p, ParseObjectType) }

func enumArg[T ~string](p *parser, parse func(string) (T, error)) T {
	tok := p.next()
	if p.err != nil {
		var zero T
		return zero
	}
	v, err := parse(tok)
	if err != nil {
		p.err = malformed("%s argument %d: unknown value %q", p.tag, p.pos, tok)
	}
	return v
}
