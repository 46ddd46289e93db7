package model

import (
	"strings"
	"time"
)

type FlagTarget string

const (
	FlagTargetPost FlagTarget = "post"
	FlagTargetPoll FlagTarget = "poll"
)

type FlagStatus string

const (
	FlagStatusPending   FlagStatus = "pending"
	FlagStatusReviewed  FlagStatus = "reviewed"
	FlagStatusDismissed FlagStatus = "dismissed"
)

func ParseFlagStatus(val string) (FlagStatus, bool) {
	switch status := FlagStatus(strings.ToLower(strings.TrimSpace(val))); status {
	case FlagStatusPending, FlagStatusReviewed, FlagStatusDismissed:
		return status, true
	default:
		return "", false
	}
}

type Flag struct {
	Id         string     `json:"id"`
	TargetType FlagTarget `json:"targetType"`
	TargetId   string     `json:"targetId"`
	ReporterId string     `json:"reporterId"`
	Reason     string     `json:"reason"`
	Status     FlagStatus `json:"status"`
	ReviewedBy string     `json:"reviewedBy,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}
