package events

const (
	TypeSessionAuthenticated = "session.authenticated"
	TypeSessionLoggedOut     = "session.logged_out"
	TypeSessionExpired       = "session.expired"
	TypeMaintenanceDetected  = "maintenance.detected"
	TypeMaintenanceResolved  = "maintenance.resolved"

	// TypeResourceMutated is published after a successful mutating call;
	// the "resource" field names the cache prefix to drop.
	TypeResourceMutated = "resource.mutated"
	// TypePermissionsStale is published when the backend rejects a call the
	// cached grants allowed.
	TypePermissionsStale = "permissions.stale"
)

func SessionAuthenticated(sessionID, userID, role string) BaseEvent {
	return NewEvent(TypeSessionAuthenticated, map[string]interface{}{
		"session_id": sessionID,
		"user_id":    userID,
		"role":       role,
	})
}

func SessionLoggedOut(sessionID, userID string) BaseEvent {
	return NewEvent(TypeSessionLoggedOut, map[string]interface{}{
		"session_id": sessionID,
		"user_id":    userID,
	})
}

func SessionExpired(sessionID string) BaseEvent {
	return NewEvent(TypeSessionExpired, map[string]interface{}{"session_id": sessionID})
}

func MaintenanceDetected(message string) BaseEvent {
	return NewEvent(TypeMaintenanceDetected, map[string]interface{}{"message": message})
}

func MaintenanceResolved() BaseEvent {
	return NewEvent(TypeMaintenanceResolved, map[string]interface{}{})
}

func ResourceMutated(resource, id, action string) BaseEvent {
	return NewEvent(TypeResourceMutated, map[string]interface{}{
		"resource": resource,
		"id":       id,
		"action":   action,
	})
}

func PermissionsStale(sessionID string) BaseEvent {
	return NewEvent(TypePermissionsStale, map[string]interface{}{"session_id": sessionID})
}
