package app

import (
	"math"
	"time"

	"github.com/civicconnect/civic-connect-be/model"
)

const RecentWindow = 24 * time.Hour

type Analytics struct {
	TotalPosts    int                    `json:"totalPosts"`
	CategoryStats map[model.Category]int `json:"categoryStats"`
	TypeStats     map[model.PostType]int `json:"typeStats"`
	TotalReplies  int                    `json:"totalReplies"`
	TotalLikes    int                    `json:"totalLikes"`
	RecentPosts   int                    `json:"recentPosts"`
	// EngagementRate is (replies + likes) / posts * 100, rounded to two decimals
	EngagementRate float64 `json:"engagementRate"`
}

// ComputeAnalytics reduces over already fetched posts; it never queries the store
func ComputeAnalytics(posts []*model.Post, now time.Time) *Analytics {
	analytics := &Analytics{
		TotalPosts:    len(posts),
		CategoryStats: make(map[model.Category]int, len(model.Categories)),
		TypeStats:     make(map[model.PostType]int),
	}
	for _, category := range model.Categories {
		analytics.CategoryStats[category] = 0
	}

	since := now.Add(-RecentWindow)
	for _, post := range posts {
		analytics.CategoryStats[model.ParseCategory(string(post.Category))]++
		analytics.TypeStats[model.ParsePostType(string(post.PostType))]++
		analytics.TotalReplies += post.ReplyCount
		analytics.TotalLikes += post.LikeCount
		if post.CreatedAt.After(since) {
			analytics.RecentPosts++
		}
	}

	if analytics.TotalPosts > 0 {
		rate := float64(analytics.TotalReplies+analytics.TotalLikes) / float64(analytics.TotalPosts) * 100
		analytics.EngagementRate = math.Round(rate*100) / 100
	}
	return analytics
}
