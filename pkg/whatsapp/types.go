package whatsapp

import (
	"time"

	"go.mau.fi/whatsmeow/types"
)

// GroupParticipant is the transport-neutral view of one group member.
// Policies compare identities as strings so they never depend on whatsmeow
// types directly.
type GroupParticipant struct {
	JID          string `json:"JID"`
	IsAdmin      bool   `json:"IsAdmin"`
	IsSuperAdmin bool   `json:"IsSuperAdmin"`
}

// GroupInfo is the transport-neutral view of a group's live metadata.
type GroupInfo struct {
	JID          string             `json:"JID"`
	Name         string             `json:"Name"`
	Topic        string             `json:"Topic,omitempty"`
	Announce     bool               `json:"IsAnnounce"`
	Participants []GroupParticipant `json:"Participants"`
	FetchedAt    time.Time          `json:"FetchedAt"`
}

// Admins returns the JIDs of every participant holding admin rights.
func (g *GroupInfo) Admins() []string {
	var admins []string
	for _, p := range g.Participants {
		if p.IsAdmin || p.IsSuperAdmin {
			admins = append(admins, p.JID)
		}
	}
	return admins
}

// IsAdmin reports whether the given JID holds admin rights in this group.
// The match tolerates device suffixes on either side.
func (g *GroupInfo) IsAdmin(jid string) bool {
	for _, p := range g.Participants {
		if (p.IsAdmin || p.IsSuperAdmin) && sameUser(p.JID, jid) {
			return true
		}
	}
	return false
}

// IsMember reports whether the given JID is currently in the group.
func (g *GroupInfo) IsMember(jid string) bool {
	for _, p := range g.Participants {
		if sameUser(p.JID, jid) {
			return true
		}
	}
	return false
}

// MemberJIDs returns every participant JID.
func (g *GroupInfo) MemberJIDs() []string {
	out := make([]string, 0, len(g.Participants))
	for _, p := range g.Participants {
		out = append(out, p.JID)
	}
	return out
}

func sameUser(a, b string) bool {
	ja, errA := types.ParseJID(a)
	jb, errB := types.ParseJID(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return ja.User == jb.User
}

func convertGroupInfo(group *types.GroupInfo) *GroupInfo {
	converted := &GroupInfo{
		JID:       group.JID.String(),
		Name:      group.Name,
		Topic:     group.Topic,
		Announce:  group.IsAnnounce,
		FetchedAt: time.Now(),
	}
	converted.Participants = make([]GroupParticipant, 0, len(group.Participants))
	for _, p := range group.Participants {
		converted.Participants = append(converted.Participants, GroupParticipant{
			JID:          p.JID.String(),
			IsAdmin:      p.IsAdmin,
			IsSuperAdmin: p.IsSuperAdmin,
		})
	}
	return converted
}
