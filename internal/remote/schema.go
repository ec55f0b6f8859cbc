package remote

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/balkashynov/crewclock/internal/models"
)

// Record types stored in the group zone
const (
	TypeGroup   = "Group"
	TypeShare   = "Share"
	TypeMember  = "Member"
	TypeSession = "SessionRecord"
	TypeTask    = "TaskUsageSummary"
	TypeApp     = "AppUsage"
)

// Field names
const (
	FieldGroupName      = "groupName"
	FieldOwnerName      = "ownerName"
	FieldGroupRef       = "groupRef"
	FieldTitle          = "title"
	FieldLink           = "link"
	FieldUserName       = "userName"
	FieldMemberRef      = "memberRef"
	FieldEndTime        = "endTime"
	FieldCompletedCount = "completedCount"
	FieldSessionRef     = "sessionRef"
	FieldReminderID     = "reminderId"
	FieldTaskName       = "taskName"
	FieldIsCompleted    = "isCompleted"
	FieldStartTime      = "startTime"
	FieldTotalSeconds   = "totalSeconds"
	FieldComment        = "comment"
	FieldTaskRef        = "taskRef"
	FieldName           = "name"
	FieldSeconds        = "seconds"
)

// EncodeGroup builds the root record of a group
func EncodeGroup(g models.Group) Record {
	return NewRecord(TypeGroup, g.ID).
		Set(FieldGroupName, String(g.Name)).
		Set(FieldOwnerName, String(g.OwnerName))
}

func DecodeGroup(rec Record) (models.Group, error) {
	g := models.Group{ID: rec.ID}
	var err error
	if g.Name, err = rec.GetString(FieldGroupName); err != nil {
		return g, err
	}
	if g.OwnerName, err = rec.GetString(FieldOwnerName); err != nil {
		return g, err
	}
	return g, nil
}

// EncodeShare builds the share record that publishes a group's join link
func EncodeShare(id, groupID, title, link string) Record {
	return NewRecord(TypeShare, id).
		Set(FieldGroupRef, Ref(groupID)).
		Set(FieldTitle, String(title)).
		Set(FieldLink, String(link))
}

func EncodeMember(m models.Member) Record {
	return NewRecord(TypeMember, m.ID).
		Set(FieldUserName, String(m.UserName)).
		Set(FieldGroupRef, Ref(m.GroupID))
}

func DecodeMember(rec Record) (models.Member, error) {
	m := models.Member{ID: rec.ID}
	var err error
	if m.UserName, err = rec.GetString(FieldUserName); err != nil {
		return m, err
	}
	if m.GroupID, err = rec.GetRef(FieldGroupRef); err != nil {
		return m, err
	}
	return m, nil
}

// EncodeSession flattens a session graph into records. The session is
// parented to memberID, tasks to the session and apps to their task. Ids
// must already be assigned.
func EncodeSession(memberID string, s models.SessionRecord) []Record {
	out := make([]Record, 0, s.RecordCount())
	out = append(out, NewRecord(TypeSession, s.ID).
		Set(FieldMemberRef, Ref(memberID)).
		Set(FieldEndTime, Timestamp(s.EndTime)).
		Set(FieldCompletedCount, Int(int64(s.CompletedCount))))
	for _, t := range s.Tasks {
		rec := NewRecord(TypeTask, t.ID).
			Set(FieldSessionRef, Ref(s.ID)).
			Set(FieldReminderID, String(t.ReminderID)).
			Set(FieldTaskName, String(t.TaskName)).
			Set(FieldIsCompleted, Bool(t.IsCompleted)).
			Set(FieldStartTime, Timestamp(t.StartTime)).
			Set(FieldEndTime, Timestamp(t.EndTime)).
			Set(FieldTotalSeconds, Double(t.TotalSeconds))
		if t.Comment != nil {
			rec = rec.Set(FieldComment, String(*t.Comment))
		}
		out = append(out, rec)
		for _, a := range t.Apps {
			out = append(out, NewRecord(TypeApp, a.ID).
				Set(FieldTaskRef, Ref(t.ID)).
				Set(FieldName, String(a.Name)).
				Set(FieldSeconds, Double(a.Seconds)))
		}
	}
	return out
}

// DecodeSession returns the session header and the member it belongs to.
// Tasks are attached by the caller.
func DecodeSession(rec Record) (models.SessionRecord, string, error) {
	s := models.SessionRecord{ID: rec.ID}
	memberID, err := rec.GetRef(FieldMemberRef)
	if err != nil {
		return s, "", err
	}
	if s.EndTime, err = rec.GetTime(FieldEndTime); err != nil {
		return s, "", err
	}
	n, err := rec.GetInt(FieldCompletedCount)
	if err != nil {
		return s, "", err
	}
	s.CompletedCount = int(n)
	return s, memberID, nil
}

func DecodeTask(rec Record) (models.TaskUsageSummary, error) {
	t := models.TaskUsageSummary{ID: rec.ID}
	var err error
	if t.SessionID, err = rec.GetRef(FieldSessionRef); err != nil {
		return t, err
	}
	if t.ReminderID, err = rec.GetString(FieldReminderID); err != nil {
		return t, err
	}
	if t.TaskName, err = rec.GetString(FieldTaskName); err != nil {
		return t, err
	}
	if t.IsCompleted, err = rec.GetBool(FieldIsCompleted); err != nil {
		return t, err
	}
	if t.StartTime, err = rec.GetTime(FieldStartTime); err != nil {
		return t, err
	}
	if t.EndTime, err = rec.GetTime(FieldEndTime); err != nil {
		return t, err
	}
	if t.TotalSeconds, err = rec.GetDouble(FieldTotalSeconds); err != nil {
		return t, err
	}
	if t.Comment, err = rec.GetOptionalString(FieldComment); err != nil {
		return t, err
	}
	return t, nil
}

func DecodeApp(rec Record) (models.AppUsage, error) {
	a := models.AppUsage{ID: rec.ID}
	var err error
	if a.TaskID, err = rec.GetRef(FieldTaskRef); err != nil {
		return a, err
	}
	if a.Name, err = rec.GetString(FieldName); err != nil {
		return a, err
	}
	if a.Seconds, err = rec.GetDouble(FieldSeconds); err != nil {
		return a, err
	}
	return a, nil
}

// ShareLink formats the link other users open to join a group
func ShareLink(scheme, groupID string) string {
	return fmt.Sprintf("%s://join?group=%s", scheme, url.QueryEscape(groupID))
}

// ParseShareLink extracts the group id from a share link. A bare group id
// is accepted as well.
func ParseShareLink(link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", fmt.Errorf("empty share link: %w", ErrEncoding)
	}
	if !strings.Contains(link, "://") {
		return link, nil
	}
	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse share link: %w", ErrEncoding)
	}
	if u.Host != "join" {
		return "", fmt.Errorf("share link %q is not a join link: %w", link, ErrEncoding)
	}
	id := u.Query().Get("group")
	if id == "" {
		return "", fmt.Errorf("share link %q has no group: %w", link, ErrEncoding)
	}
	return id, nil
}
