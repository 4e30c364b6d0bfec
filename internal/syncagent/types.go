package syncagent

// Push event names, mirrored from the server.
const (
	EventNew     = "notification:new"
	EventCount   = "notifications:count"
	EventRead    = "notification:read"
	EventReadAll = "notifications:readAll"
	EventPong    = "pong"
)

type EntityRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Notification is one event as the API renders it.
type Notification struct {
	ID        string         `json:"id"`
	Seq       int64          `json:"seq"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message,omitempty"`
	Entity    *EntityRef     `json:"entity,omitempty"`
	ActorID   int64          `json:"actor_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Read      bool           `json:"read"`
	ReadAt    *string        `json:"read_at,omitempty"`
	CreatedAt string         `json:"created_at"`
}

// CollaborationID returns the collaboration the event is about, if any.
func (n Notification) CollaborationID() string {
	if n.Entity == nil || n.Entity.Type != "collaboration" {
		return ""
	}
	return n.Entity.ID
}

type NotificationPage struct {
	Notifications []Notification `json:"notifications"`
	NextCursor    string         `json:"next_cursor,omitempty"`
	HasMore       bool           `json:"has_more"`
	UnreadCount   int64          `json:"unread_count"`
}

// Envelope is one message received on the push channel.
type Envelope struct {
	Type         string        `json:"type"`
	Notification *Notification `json:"notification,omitempty"`
	ID           string        `json:"id,omitempty"`
	UnreadCount  *int64        `json:"unread_count,omitempty"`
}

type PostRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type Compensation struct {
	Type       string   `json:"type"`
	Amount     *float64 `json:"amount,omitempty"`
	Percentage *float64 `json:"percentage,omitempty"`
}

type Signatures struct {
	ContractVersion     int  `json:"contract_version"`
	OwnerSigned         bool `json:"owner_signed"`
	CollaboratorSigned  bool `json:"collaborator_signed"`
	FullySigned         bool `json:"fully_signed"`
	AwaitingResignature bool `json:"awaiting_resignature"`
}

type Step struct {
	Key                   string `json:"key"`
	Label                 string `json:"label"`
	OwnerValidated        bool   `json:"owner_validated"`
	CollaboratorValidated bool   `json:"collaborator_validated"`
	Completed             bool   `json:"completed"`
}

// Collaboration is the client view of one collaboration.
type Collaboration struct {
	ID                  string       `json:"id"`
	Post                PostRef      `json:"post"`
	OwnerID             int64        `json:"owner_id"`
	CollaboratorID      int64        `json:"collaborator_id"`
	Role                string       `json:"role"`
	Status              string       `json:"status"`
	Compensation        Compensation `json:"compensation"`
	CurrentProgressStep string       `json:"current_progress_step,omitempty"`
	ContractText        string       `json:"contract_text"`
	Signatures          Signatures   `json:"signatures"`
	Steps               []Step       `json:"progress_steps,omitempty"`
	UpdatedAt           string       `json:"updated_at"`
}

// Snapshot is the authoritative notification state fetched from the backlog.
type Snapshot struct {
	Items  []Notification
	Unread int64
}
