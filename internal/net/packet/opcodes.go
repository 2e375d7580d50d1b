package packet

// Client → server opcodes.
const (
	C_OPCODE_JOIN     byte = 1
	C_OPCODE_INPUT    byte = 2
	C_OPCODE_SPECTATE byte = 3
	C_OPCODE_PING     byte = 4
	C_OPCODE_LEAVE    byte = 5
)

// Server → client opcodes.
const (
	S_OPCODE_JOINED   byte = 101
	S_OPCODE_UPDATE   byte = 102
	S_OPCODE_GAMEOVER byte = 103
	S_OPCODE_PONG     byte = 104
	S_OPCODE_KICKED   byte = 105
)

// Kick reasons carried by S_OPCODE_KICKED.
const (
	KickMalformed byte = 1
	KickRateLimit byte = 2
	KickSlow      byte = 3
	KickFull      byte = 4
	KickRoundOver byte = 5
)
