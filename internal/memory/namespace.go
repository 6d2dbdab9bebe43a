package memory

import "fmt"

// Namespace derives the hierarchical store key for a memory type and identity
// scope. Derivation is pure and deterministic:
//
//	preferences     -> /sre/users/{actor}/preferences        (session always ignored)
//	infrastructure  -> /sre/infra/{actor}[/{session}]
//	investigations  -> /sre/investigations/{actor}[/{session}]
//
// An empty sessionID for the session-scoped types yields the actor-level
// namespace, which is the cross-session search scope.
func Namespace(memType Type, actorID, sessionID string) (string, error) {
	if actorID == "" {
		return "", ErrActorRequired
	}

	switch memType {
	case TypePreferences:
		return fmt.Sprintf("/sre/users/%s/preferences", actorID), nil
	case TypeInfrastructure:
		if sessionID == "" {
			return fmt.Sprintf("/sre/infra/%s", actorID), nil
		}
		return fmt.Sprintf("/sre/infra/%s/%s", actorID, sessionID), nil
	case TypeInvestigations:
		if sessionID == "" {
			return fmt.Sprintf("/sre/investigations/%s", actorID), nil
		}
		return fmt.Sprintf("/sre/investigations/%s/%s", actorID, sessionID), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownType, memType)
	}
}

// requiresSession reports whether a memory type must carry a session id on
// writes. Preferences never do; the session-scoped types always do, so that
// every write lands in an explicit session namespace.
func requiresSession(memType Type) bool {
	return memType == TypeInfrastructure || memType == TypeInvestigations
}
