package model

import (
	"time"
)

type PollStatus string

const (
	PollStatusActive   PollStatus = "active"
	PollStatusClosed   PollStatus = "closed"
	PollStatusArchived PollStatus = "archived"
)

type PollOption struct {
	Id    string `json:"id"`
	Text  string `json:"text"`
	Votes int    `json:"votes"`
}

type Poll struct {
	Id         string        `json:"id"`
	CreatorId  string        `json:"creatorId"`
	Creator    *Author       `json:"creator"`
	Question   string        `json:"question"`
	Options    []*PollOption `json:"options"`
	TotalVotes int           `json:"totalVotes"`
	Status     PollStatus    `json:"status"`
	ExpiresAt  *time.Time    `json:"expiresAt"`
	CreatedAt  time.Time     `json:"createdAt"`
}

func (p *Poll) Option(id string) *PollOption {
	for _, option := range p.Options {
		if option.Id == id {
			return option
		}
	}
	return nil
}

// IsOpen is true while the poll is active and has not expired
func (p *Poll) IsOpen(now time.Time) bool {
	if p.Status != PollStatusActive {
		return false
	}
	return p.ExpiresAt == nil || now.Before(*p.ExpiresAt)
}

type Vote struct {
	Id        string    `json:"id"`
	PollId    string    `json:"pollId"`
	VoterId   string    `json:"voterId"`
	OptionId  string    `json:"optionId"`
	CreatedAt time.Time `json:"createdAt"`
}
