package wire

// Command strings, exhaustive per spec.md §6. Every command is a known
// lowercase ASCII tag; anything else decodes as *MsgUnknown.
const (
	CmdVersion    = "version"
	CmdVerAck     = "verack"
	CmdPing       = "ping"
	CmdPong       = "pong"
	CmdAddr       = "addr"
	CmdGetAddr    = "getaddr"
	CmdInv        = "inv"
	CmdGetHeaders = "getheaders"
	CmdHeaders    = "headers"
)
