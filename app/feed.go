package app

import (
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/civicconnect/civic-connect-be/model"
)

type FeedItemKind string

const (
	FeedItemKindPost FeedItemKind = "post"
	FeedItemKindPoll FeedItemKind = "poll"
)

var UnknownFeedItemKindErr = errors.New("unknown feed item kind")

// FeedItem is a tagged union over posts and polls. Exactly one of Post and
// Poll is set, matching Kind.
type FeedItem struct {
	Kind FeedItemKind
	Post *model.Post
	Poll *model.Poll
}

func (fi *FeedItem) CreatedAt() time.Time {
	switch fi.Kind {
	case FeedItemKindPost:
		return fi.Post.CreatedAt
	case FeedItemKindPoll:
		return fi.Poll.CreatedAt
	default:
		return time.Time{}
	}
}

func (fi *FeedItem) Id() string {
	switch fi.Kind {
	case FeedItemKindPost:
		return fi.Post.Id
	case FeedItemKindPoll:
		return fi.Poll.Id
	default:
		return ""
	}
}

type taggedFeedItem struct {
	Kind FeedItemKind     `json:"kind"`
	Item *json.RawMessage `json:"item"`
}

func (fi *FeedItem) MarshalJSON() ([]byte, error) {
	var item interface{}
	switch fi.Kind {
	case FeedItemKindPost:
		item = fi.Post
	case FeedItemKindPoll:
		item = fi.Poll
	default:
		return nil, UnknownFeedItemKindErr
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, err
	}
	message := json.RawMessage(raw)
	return json.Marshal(&taggedFeedItem{Kind: fi.Kind, Item: &message})
}

func (fi *FeedItem) UnmarshalJSON(data []byte) error {
	if fi == nil {
		return nil
	}
	var tagged taggedFeedItem
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}

	var itemRef interface{}
	switch tagged.Kind {
	case FeedItemKindPost:
		fi.Post = &model.Post{}
		itemRef = fi.Post
	case FeedItemKindPoll:
		fi.Poll = &model.Poll{}
		itemRef = fi.Poll
	default:
		return UnknownFeedItemKindErr
	}
	fi.Kind = tagged.Kind

	if tagged.Item != nil {
		if err := json.Unmarshal(*tagged.Item, itemRef); err != nil {
			return err
		}
	}
	return nil
}

// AggregateFeed merges posts and polls into one list ordered newest first.
// Items with equal timestamps keep posts before polls and their input order.
func AggregateFeed(posts []*model.Post, polls []*model.Poll) []*FeedItem {
	items := make([]*FeedItem, 0, len(posts)+len(polls))
	for _, post := range posts {
		items = append(items, &FeedItem{Kind: FeedItemKindPost, Post: post})
	}
	for _, poll := range polls {
		items = append(items, &FeedItem{Kind: FeedItemKindPoll, Poll: poll})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt().After(items[j].CreatedAt())
	})
	return items
}

// FilterByAuthors keeps posts by the given authors and polls by the given creators
func FilterByAuthors(items []*FeedItem, authorIds []string) []*FeedItem {
	allowed := make(map[string]bool, len(authorIds))
	for _, id := range authorIds {
		allowed[id] = true
	}
	filtered := make([]*FeedItem, 0, len(items))
	for _, item := range items {
		switch {
		case item.Kind == FeedItemKindPost && allowed[item.Post.AuthorId]:
			filtered = append(filtered, item)
		case item.Kind == FeedItemKindPoll && allowed[item.Poll.CreatorId]:
			filtered = append(filtered, item)
		}
	}
	return filtered
}

// FilterByCategory keeps posts of category. Polls carry no category and are dropped.
func FilterByCategory(items []*FeedItem, category model.Category) []*FeedItem {
	filtered := make([]*FeedItem, 0, len(items))
	for _, item := range items {
		if item.Kind == FeedItemKindPost && item.Post.Category == category {
			filtered = append(filtered, item)
		}
	}
	return filtered
}
