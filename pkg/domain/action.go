package domain

// Action tags an Envelope on the wire.
type Action string

// Storage actions, sent by the worker to the client's storage service.
const (
	ActionGetStorage    Action = "GET_STORAGE"
	ActionSetStorage    Action = "SET_STORAGE"
	ActionRemoveStorage Action = "REMOVE_STORAGE"
	ActionClearStorage  Action = "CLEAR_STORAGE"
)

// Reply actions.
const (
	ActionSuccess Action = "SUCCESS"
	ActionFailed  Action = "FAILED"
	ActionAck     Action = "ACK"
)

// Control-plane actions, sent by the client to the worker.
const (
	ActionRegister   Action = "REGISTER"
	ActionUnregister Action = "UNREGISTER"
	ActionUpdate     Action = "UPDATE"
	ActionConnect    Action = "CONNECT"
	ActionDisconnect Action = "DISCONNECT"

	// ActionControllerChange is pushed by the worker, without a reply
	// channel, when a new worker version takes control.
	ActionControllerChange Action = "CONTROLLER_CHANGE"
)

// IsStorage reports whether a is one of the four storage actions.
func (a Action) IsStorage() bool {
	switch a {
	case ActionGetStorage, ActionSetStorage, ActionRemoveStorage, ActionClearStorage:
		return true
	}
	return false
}

func (a Action) String() string {
	return string(a)
}
