package wire

func init() {
	Register(DiscHello, func() Command { return &HelloCommand{} })
	Register(DiscLogin, func() Command { return &LoginCommand{} })
	Register(DiscLogout, func() Command { return &LogoutCommand{} })
	Register(DiscBeginTransaction, func() Command { return &BeginTransactionCommand{} })
	Register(DiscCommitTransaction, func() Command { return &CommitTransactionCommand{} })
	Register(DiscRollbackTransaction, func() Command { return &RollbackTransactionCommand{} })
	Register(DiscTerminal, func() Command { return &TerminalResponse{} })
}

// HelloCommand is the first frame a client may send to negotiate a
// protocol version before Login; ClientName is advisory, for logs only.
type HelloCommand struct {
	ProtocolVersion int32
	ClientName      string
}

func (c *HelloCommand) Discriminator() uint8 { return DiscHello }

func (c *HelloCommand) EncodeBody(e *Encoder) error {
	e.WriteInt32(c.ProtocolVersion)
	e.WriteString(c.ClientName)
	return e.Err()
}

func (c *HelloCommand) DecodeBody(d *Decoder) error {
	c.ProtocolVersion = d.ReadInt32()
	c.ClientName = d.ReadString()
	return d.Err()
}

// LoginCommand transitions NonAuthenticated -> Authenticated. SessionID
// is stamped onto every notification this connection's writes produce,
// so the connection's own subscriber can filter echoes.
type LoginCommand struct {
	SessionID string
}

func (c *LoginCommand) Discriminator() uint8 { return DiscLogin }

func (c *LoginCommand) EncodeBody(e *Encoder) error {
	e.WriteString(c.SessionID)
	return e.Err()
}

func (c *LoginCommand) DecodeBody(d *Decoder) error {
	c.SessionID = d.ReadString()
	return d.Err()
}

// LogoutCommand transitions any state -> LoggingOut: pending writes
// drain, then the socket closes.
type LogoutCommand struct{}

func (c *LogoutCommand) Discriminator() uint8 { return DiscLogout }
func (c *LogoutCommand) EncodeBody(e *Encoder) error { return e.Err() }
func (c *LogoutCommand) DecodeBody(d *Decoder) error { return d.Err() }

// BeginTransactionCommand opens a transaction; a second Begin on the
// same connection before Commit/Rollback is an error.
type BeginTransactionCommand struct{}

func (c *BeginTransactionCommand) Discriminator() uint8 { return DiscBeginTransaction }
func (c *BeginTransactionCommand) EncodeBody(e *Encoder) error { return e.Err() }
func (c *BeginTransactionCommand) DecodeBody(d *Decoder) error { return d.Err() }

// CommitTransactionCommand commits the open transaction and releases
// any notifications buffered during it.
type CommitTransactionCommand struct{}

func (c *CommitTransactionCommand) Discriminator() uint8 { return DiscCommitTransaction }
func (c *CommitTransactionCommand) EncodeBody(e *Encoder) error { return e.Err() }
func (c *CommitTransactionCommand) DecodeBody(d *Decoder) error { return d.Err() }

// RollbackTransactionCommand rolls back the open transaction and
// discards any notifications buffered during it.
type RollbackTransactionCommand struct{}

func (c *RollbackTransactionCommand) Discriminator() uint8 { return DiscRollbackTransaction }
func (c *RollbackTransactionCommand) EncodeBody(e *Encoder) error { return e.Err() }
func (c *RollbackTransactionCommand) DecodeBody(d *Decoder) error { return d.Err() }

// TerminalResponse is the generic success/failure response emitted for
// every command that has no specialized response payload.
type TerminalResponse struct {
	OK               bool
	ErrorMessage     string
	ConflictRevision int64 // set when ErrorMessage reports a revision conflict
}

func (r *TerminalResponse) Discriminator() uint8 { return DiscTerminal }

func (r *TerminalResponse) EncodeBody(e *Encoder) error {
	e.WriteBool(r.OK)
	e.WriteString(r.ErrorMessage)
	e.WriteInt64(r.ConflictRevision)
	return e.Err()
}

func (r *TerminalResponse) DecodeBody(d *Decoder) error {
	r.OK = d.ReadBool()
	r.ErrorMessage = d.ReadString()
	r.ConflictRevision = d.ReadInt64()
	return d.Err()
}
