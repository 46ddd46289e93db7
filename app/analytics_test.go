package app

import (
	"testing"
	"time"

	"github.com/civicconnect/civic-connect-be/model"
	"github.com/stretchr/testify/assert"
)

func TestComputeAnalyticsWithoutPosts(t *testing.T) {
	analytics := ComputeAnalytics(nil, base)
	assert.Equal(t, 0, analytics.TotalPosts)
	assert.Equal(t, 0.0, analytics.EngagementRate)
	assert.Len(t, analytics.CategoryStats, len(model.Categories))
	for _, category := range model.Categories {
		assert.Equal(t, 0, analytics.CategoryStats[category])
	}
}

func TestComputeAnalytics(t *testing.T) {
	now := base.Add(48 * time.Hour)
	posts := []*model.Post{
		{Category: model.CategoryHealth, PostType: model.PostTypeIncident, ReplyCount: 2, LikeCount: 3, CreatedAt: now.Add(-time.Hour)},
		{Category: model.CategoryHealth, PostType: model.PostTypeOpinion, ReplyCount: 0, LikeCount: 1, CreatedAt: now.Add(-30 * time.Hour)},
		{Category: model.Category("weather"), PostType: model.PostTypeFeedback, ReplyCount: 1, LikeCount: 0, CreatedAt: now.Add(-23 * time.Hour)},
	}

	analytics := ComputeAnalytics(posts, now)
	assert.Equal(t, 3, analytics.TotalPosts)
	assert.Equal(t, 2, analytics.CategoryStats[model.CategoryHealth])
	assert.Equal(t, 1, analytics.CategoryStats[model.CategoryGeneral])
	assert.Equal(t, 0, analytics.CategoryStats[model.CategoryEmergency])
	assert.Equal(t, 1, analytics.TypeStats[model.PostTypeIncident])
	assert.Equal(t, 3, analytics.TotalReplies)
	assert.Equal(t, 4, analytics.TotalLikes)
	assert.Equal(t, 2, analytics.RecentPosts)
	assert.Equal(t, 233.33, analytics.EngagementRate)
}

func TestEmergencyPostCounted(t *testing.T) {
	posts := []*model.Post{{Category: model.CategoryGeneral, CreatedAt: base}}
	before := ComputeAnalytics(posts, base)

	posts = append(posts, &model.Post{Category: model.CategoryEmergency, PostType: model.PostTypeEmergency, CreatedAt: base})
	after := ComputeAnalytics(posts, base)

	assert.Equal(t, before.TotalPosts+1, after.TotalPosts)
	assert.Equal(t, before.CategoryStats[model.CategoryEmergency]+1, after.CategoryStats[model.CategoryEmergency])
}
