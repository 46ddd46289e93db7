package model

import (
	"strings"
	"time"
)

type Category string

const (
	CategoryCrime       Category = "crime"
	CategoryHealth      Category = "health"
	CategoryEducation   Category = "education"
	CategoryCorruption  Category = "corruption"
	CategoryEnvironment Category = "environment"
	CategoryEmergency   Category = "emergency"
	CategoryGeneral     Category = "general"
)

var Categories = []Category{
	CategoryCrime,
	CategoryHealth,
	CategoryEducation,
	CategoryCorruption,
	CategoryEnvironment,
	CategoryEmergency,
	CategoryGeneral,
}

// ParseCategory maps any value outside the known set to CategoryGeneral
func ParseCategory(val string) Category {
	category := Category(strings.ToLower(strings.TrimSpace(val)))
	for _, known := range Categories {
		if category == known {
			return category
		}
	}
	return CategoryGeneral
}

func (c *Category) UnmarshalText(text []byte) error {
	*c = ParseCategory(string(text))
	return nil
}

type PostType string

const (
	PostTypeOpinion   PostType = "opinion"
	PostTypeIncident  PostType = "incident"
	PostTypeFeedback  PostType = "feedback"
	PostTypeEmergency PostType = "emergency"
)

func ParsePostType(val string) PostType {
	switch postType := PostType(strings.ToLower(strings.TrimSpace(val))); postType {
	case PostTypeOpinion, PostTypeIncident, PostTypeFeedback, PostTypeEmergency:
		return postType
	default:
		return PostTypeOpinion
	}
}

func (pt *PostType) UnmarshalText(text []byte) error {
	*pt = ParsePostType(string(text))
	return nil
}

type PostStatus string

const (
	PostStatusActive  PostStatus = "active"
	PostStatusFlagged PostStatus = "flagged"
	PostStatusHidden  PostStatus = "hidden"
	PostStatusDeleted PostStatus = "deleted"
)

func ParsePostStatus(val string) (PostStatus, bool) {
	switch status := PostStatus(strings.ToLower(strings.TrimSpace(val))); status {
	case PostStatusActive, PostStatusFlagged, PostStatusHidden, PostStatusDeleted:
		return status, true
	default:
		return "", false
	}
}

type Post struct {
	Id          string     `json:"id"`
	AuthorId    string     `json:"authorId"`
	Author      *Author    `json:"author"`
	Content     string     `json:"content"`
	MediaUrls   []string   `json:"mediaUrls"`
	Category    Category   `json:"category"`
	PostType    PostType   `json:"postType"`
	ParentId    string     `json:"parentId,omitempty"`
	LikeCount   int        `json:"likeCount"`
	ReplyCount  int        `json:"replyCount"`
	RepostCount int        `json:"repostCount"`
	FlagCount   int        `json:"flagCount"`
	Status      PostStatus `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	Replies     []*Post    `json:"replies,omitempty"`
}

func (p *Post) IsReply() bool {
	return p.ParentId != ""
}

// CanDelete is true for the author and for admins
func (p *Post) CanDelete(user *Profile) bool {
	return user != nil && (user.IsAdmin() || user.Id == p.AuthorId)
}

type Like struct {
	Id        string    `json:"id"`
	PostId    string    `json:"postId"`
	UserId    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}
