package handler

// table maps a command discriminator to the Func that handles it.
// Individual command-family files populate it via registerHandler in
// their own init(), mirroring internal/wire's discriminator→factory
// registry.
var table = make(map[uint8]Func)

func registerHandler(disc uint8, fn Func) {
	if _, exists := table[disc]; exists {
		panic("handler: duplicate registration for discriminator")
	}
	table[disc] = fn
}

// Lookup returns the Func registered for disc, or nil if none is.
func Lookup(disc uint8) Func {
	return table[disc]
}

// Known reports whether any handler is registered for disc, letting the
// server distinguish "unknown discriminator" (protocol error, terminal)
// from "known but disallowed in this connection state" (a BAD response).
func Known(disc uint8) bool {
	_, ok := table[disc]
	return ok
}
