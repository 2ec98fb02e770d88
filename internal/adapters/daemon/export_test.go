package daemon

// NewConnectorFor returns a connector that spawns exe.
func NewConnectorFor(exe string) *Connector {
	return &Connector{executablePath: exe}
}
