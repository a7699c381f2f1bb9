package protocol

// EntityState is sent per entity in every snapshot
type EntityState struct {
	ID        uint32  `msgpack:"id"`
	Kind      uint8   `msgpack:"k"`
	X         float64 `msgpack:"x"`
	Y         float64 `msgpack:"y"`
	VX        float64 `msgpack:"vx"`
	VY        float64 `msgpack:"vy"`
	Heading   float64 `msgpack:"h"`
	Radius    int     `msgpack:"r"`
	Shields   int     `msgpack:"sh,omitempty"` // craft
	Fuel      int     `msgpack:"fu,omitempty"` // craft
	Missiles  int     `msgpack:"ms,omitempty"` // craft
	Life      int     `msgpack:"l,omitempty"`  // missile, debris
	Tumble    float64 `msgpack:"tu,omitempty"` // debris
	Explosion int     `msgpack:"ex,omitempty"` // debris
	Source    uint32  `msgpack:"src,omitempty"`
}

// Snapshot is the full galaxy state sent to a client once per tick
type Snapshot struct {
	Galaxy     string        `msgpack:"g"`
	Entities   []EntityState `msgpack:"e"`
	Color      uint32        `msgpack:"c"` // 0xRRGGBB
	Background int           `msgpack:"bg"`
	Viewer     uint32        `msgpack:"v"` // the receiving client's craft
	Tick       uint64        `msgpack:"t"`
}

// Find returns the entity with the given id
func (s *Snapshot) Find(id uint32) (EntityState, bool) {
	for _, e := range s.Entities {
		if e.ID == id {
			return e, true
		}
	}
	return EntityState{}, false
}

// Input is the instantaneous key state a client sends after each snapshot
type Input struct {
	Left    bool
	Right   bool
	Forward bool
	Fire    bool
	Jump    bool
	Restart bool
	Exit    bool
}

// Binary input frame: [MsgInput, flags]
const (
	MsgInput  byte = 0x01
	InputSize      = 2
)

const (
	flagLeft byte = 1 << iota
	flagRight
	flagForward
	flagFire
	flagJump
	flagRestart
	flagExit
)
