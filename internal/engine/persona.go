package engine

// PersonaNone is the sentinel the host platform uses for "no persona
// selected". It is never stored; records fall back to the configured
// default persona instead.
const PersonaNone = "[%None]"

// Origin is the contract an origin handle may satisfy. The handle is the
// opaque per-request context the host passes in; when it resolves personas
// the engine filters retrieval and tags stored memories with them.
type Origin interface {
	GetSessionID() string
	GetPersonaID() string
	GetDefaultPersona() string
}

// resolvePersona walks the persona chain: the origin's current persona,
// then the origin's platform default, then the configured default. The
// PersonaNone sentinel and empty strings are treated as unresolved at each
// step.
func (e *Engine) resolvePersona(origin any) string {
	fallback := e.cfg.Summary.DefaultPersona

	o, ok := origin.(Origin)
	if !ok {
		return fallback
	}

	if p := o.GetPersonaID(); p != "" && p != PersonaNone {
		return p
	}
	if p := o.GetDefaultPersona(); p != "" && p != PersonaNone {
		return p
	}
	return fallback
}

// personaFilter returns the persona to filter retrieval by, empty when
// persona filtering is disabled. It resolves through the same chain as
// storage so filtered searches see the records summarization wrote.
func (e *Engine) personaFilter(origin any) string {
	if !e.cfg.Retrieval.UsePersonaFiltering {
		return ""
	}
	return e.resolvePersona(origin)
}
