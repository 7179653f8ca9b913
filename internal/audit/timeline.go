package audit

import "time"

// Activity actions recorded by the portal.
const (
	ActionLogin          = "login"
	ActionLogout         = "logout"
	ActionRegister       = "register"
	ActionSessionExpired = "session_expired"
	ActionUserCreated    = "user_created"
	ActionUserUpdated    = "user_updated"
	ActionUserDeleted    = "user_deleted"
	ActionProfileUpdated = "profile_updated"
)

// Activity mewakili satu entri log aktivitas pengguna.
type Activity struct {
	UserID    string    `json:"userId"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
	Origin    string    `json:"origin"`
}

// TimelineFilters menampung filter dasar untuk timeline aktivitas.
type TimelineFilters struct {
	UserID   string
	Action   string
	Page     int
	PageSize int
}

// PagingInfo menyimpan metadata pagination sederhana.
type PagingInfo struct {
	Page     int  `json:"page"`
	HasNext  bool `json:"hasNext"`
	PageSize int  `json:"pageSize"`
	PrevPage int  `json:"prevPage,omitempty"`
	NextPage int  `json:"nextPage,omitempty"`
}

// Result membungkus hasil timeline dengan informasi paging.
type Result struct {
	Rows   []Activity `json:"rows"`
	Paging PagingInfo `json:"paging"`
}

func (f TimelineFilters) match(a Activity) bool {
	if f.UserID != "" && a.UserID != f.UserID {
		return false
	}
	if f.Action != "" && a.Action != f.Action {
		return false
	}
	return true
}
