package models

import (
	"sort"
	"time"
)

// User represents an account on the evaluation service
type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	RollNo       string `json:"rollNo"`
	AccessCode   string `json:"accessCode"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

// Post represents a single post written by a user
type Post struct {
	ID        int    `json:"id"`
	UserID    string `json:"userId"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Likes     int    `json:"likes"`
	Shares    int    `json:"shares"`
}

// Comment represents a comment left on a post
type Comment struct {
	ID        int    `json:"id"`
	PostID    int    `json:"postId"`
	UserID    string `json:"userId"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// UnknownUser stands in for authors that are missing from a snapshot
var UnknownUser = User{
	ID:   "",
	Name: "Unknown User",
}

// Snapshot is everything fetched during a single polling cycle
type Snapshot struct {
	Users          []User            `json:"users"`
	PostsByUser    map[string][]Post `json:"postsByUser"`
	CommentsByPost map[int][]Comment `json:"commentsByPost"`
	FetchedAt      time.Time         `json:"fetchedAt"`
}

// LookupUser resolves a user id, falling back to UnknownUser
func (s *Snapshot) LookupUser(id string) User {
	if s == nil {
		return UnknownUser
	}
	for _, user := range s.Users {
		if user.ID == id {
			return user
		}
	}
	return UnknownUser
}

// Posts flattens PostsByUser in user order. Buckets keyed by ids that are not
// among Users come last, ordered by key, so the result never depends on map order.
// A post id listed more than once is kept at its first position only.
func (s *Snapshot) Posts() []Post {
	if s == nil {
		return nil
	}

	posts := make([]Post, 0)
	seenPosts := make(map[int]bool)
	appendBucket := func(bucket []Post) {
		for _, post := range bucket {
			if seenPosts[post.ID] {
				continue
			}
			seenPosts[post.ID] = true
			posts = append(posts, post)
		}
	}

	for _, user := range s.UniqueUsers() {
		appendBucket(s.PostsByUser[user.ID])
	}

	known := make(map[string]bool, len(s.Users))
	for _, user := range s.Users {
		known[user.ID] = true
	}
	orphans := make([]string, 0)
	for key := range s.PostsByUser {
		if !known[key] {
			orphans = append(orphans, key)
		}
	}
	sort.Strings(orphans)
	for _, key := range orphans {
		appendBucket(s.PostsByUser[key])
	}

	return posts
}

// UniqueUsers returns Users with repeated ids dropped, first occurrence wins
func (s *Snapshot) UniqueUsers() []User {
	if s == nil {
		return nil
	}

	users := make([]User, 0, len(s.Users))
	seen := make(map[string]bool, len(s.Users))
	for _, user := range s.Users {
		if seen[user.ID] {
			continue
		}
		seen[user.ID] = true
		users = append(users, user)
	}
	return users
}

// CommentCount returns the number of comments fetched for a post
func (s *Snapshot) CommentCount(postID int) int {
	if s == nil {
		return 0
	}
	return len(s.CommentsByPost[postID])
}

// TotalComments returns the number of comments across every post in the snapshot
func (s *Snapshot) TotalComments() int {
	if s == nil {
		return 0
	}
	total := 0
	for _, comments := range s.CommentsByPost {
		total += len(comments)
	}
	return total
}

// UserStats is one row of the top users ranking
type UserStats struct {
	User          User `json:"user"`
	TotalComments int  `json:"totalComments"`
}

// PostWithComments pairs a post with its author and comment count.
// Used by both the trending set and the feed.
type PostWithComments struct {
	Post         Post `json:"post"`
	User         User `json:"user"`
	CommentCount int  `json:"commentCount"`
}

// PostAnalytics summarizes posts in a snapshot
type PostAnalytics struct {
	TotalPosts    int     `json:"totalPosts"`
	AverageLikes  float64 `json:"averageLikes"`
	AverageShares float64 `json:"averageShares"`
	TopPosts      []Post  `json:"topPosts"`
}

// UserAnalytics summarizes users in a snapshot
type UserAnalytics struct {
	TotalUsers  int    `json:"totalUsers"`
	ActiveUsers int    `json:"activeUsers"`
	TopUsers    []User `json:"topUsers"`
}

// EngagementAnalytics summarizes likes, shares and comments in a snapshot
type EngagementAnalytics struct {
	TotalEngagement   int     `json:"totalEngagement"`
	AverageEngagement float64 `json:"averageEngagement"`
	TopEngagedPosts   []Post  `json:"topEngagedPosts"`
}

// Views holds every view derived from one snapshot
type Views struct {
	TopUsers      []UserStats         `json:"topUsers"`
	TrendingPosts []PostWithComments  `json:"trendingPosts"`
	Feed          []PostWithComments  `json:"feed"`
	Posts         PostAnalytics       `json:"postAnalytics"`
	Users         UserAnalytics       `json:"userAnalytics"`
	Engagement    EngagementAnalytics `json:"engagementAnalytics"`
	GeneratedAt   time.Time           `json:"generatedAt"`
}

// CollectorState is the state of the polling collector
type CollectorState string

const (
	StateIdle    CollectorState = "idle"
	StateLoading CollectorState = "loading"
	StateReady   CollectorState = "ready"
	StateFailed  CollectorState = "failed"
)

// Status is what the presentation layer renders
type Status struct {
	State       CollectorState `json:"state"`
	Views       *Views         `json:"views,omitempty"`
	Error       string         `json:"error,omitempty"`
	Cycles      int            `json:"cycles"`
	StartTime   time.Time      `json:"startTime"`
	LastUpdated time.Time      `json:"lastUpdated"`
}
