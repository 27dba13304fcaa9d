package session

// Guard is a capability bound to one session id. Every check re-reads the
// registry's current pointer, so a guard held past a switch goes inert on its own.
type Guard struct {
	sessionID string
	current   *currentCell
}

// SessionID returns the id the guard was issued for.
func (g *Guard) SessionID() string {
	if g == nil {
		return ""
	}
	return g.sessionID
}

// IsActive reports whether the bound session is current right now.
func (g *Guard) IsActive() bool {
	if g == nil || g.current == nil || g.sessionID == "" {
		return false
	}
	return g.current.load() == g.sessionID
}

// CanUpdateChat reports whether a foreground chat mutation would be accepted.
func (g *Guard) CanUpdateChat() bool {
	return g.IsActive()
}

// CanUpdateWorkspace reports whether a foreground workspace mutation would be accepted.
func (g *Guard) CanUpdateWorkspace() bool {
	return g.IsActive()
}
