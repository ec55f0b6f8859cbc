package models

import "time"

// Group is the root of a shared namespace. Members of a group see each
// other's session summaries.
type Group struct {
	ID        string `json:"id"`
	Name      string `json:"groupName"`
	OwnerName string `json:"ownerName"`
}

// Member is one user inside a group. (GroupID, UserName) identifies a member.
type Member struct {
	ID       string `json:"id"`
	GroupID  string `json:"groupId"`
	UserName string `json:"userName"`
}

// Membership records which group this device uploads to and as whom.
// It only exists in the local database.
type Membership struct {
	ID        uint      `gorm:"primarykey" json:"-"`
	GroupID   string    `gorm:"not null;uniqueIndex" json:"groupId"`
	GroupName string    `json:"groupName"`
	UserName  string    `gorm:"not null" json:"userName"`
	JoinedAt  time.Time `json:"joinedAt"`
}
