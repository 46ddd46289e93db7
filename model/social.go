package model

import "time"

type Follow struct {
	FollowerId  string    `json:"followerId"`
	FollowingId string    `json:"followingId"`
	CreatedAt   time.Time `json:"createdAt"`
}

type NotificationKind string

const (
	NotificationReply  NotificationKind = "reply"
	NotificationLike   NotificationKind = "like"
	NotificationFollow NotificationKind = "follow"
)

type Notification struct {
	Id        string           `json:"id"`
	UserId    string           `json:"userId"`
	Kind      NotificationKind `json:"kind"`
	ActorId   string           `json:"actorId"`
	TargetId  string           `json:"targetId"`
	Message   string           `json:"message"`
	IsRead    bool             `json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
}
