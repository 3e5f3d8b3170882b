package stats

import (
	"sort"
	"time"

	"github.com/brettboylen/social-analytics/models"
)

const (
	defaultTopUsersLimit = 5
	defaultTopPostsLimit = 5
)

// RankUsersByComments ranks users by the total number of comments on their
// own posts. Ties keep the snapshot's user order, and a repeated user id is
// ranked once. At most five users are returned.
func RankUsersByComments(snapshot *models.Snapshot) []models.UserStats {
	ranking := make([]models.UserStats, 0)
	if snapshot == nil {
		return ranking
	}

	totals := make(map[string]int, len(snapshot.Users))
	for _, post := range snapshot.Posts() {
		totals[post.UserID] += snapshot.CommentCount(post.ID)
	}

	for _, user := range snapshot.UniqueUsers() {
		ranking = append(ranking, models.UserStats{
			User:          user,
			TotalComments: totals[user.ID],
		})
	}

	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].TotalComments > ranking[j].TotalComments
	})

	if len(ranking) > defaultTopUsersLimit {
		ranking = ranking[:defaultTopUsersLimit]
	}
	return ranking
}

// FindTrendingPosts returns every post tied for the highest comment count.
// A snapshot without posts yields an empty slice.
func FindTrendingPosts(snapshot *models.Snapshot) []models.PostWithComments {
	trending := make([]models.PostWithComments, 0)

	posts := withComments(snapshot)
	if len(posts) == 0 {
		return trending
	}

	highest := posts[0].CommentCount
	for _, post := range posts[1:] {
		if post.CommentCount > highest {
			highest = post.CommentCount
		}
	}

	for _, post := range posts {
		if post.CommentCount == highest {
			trending = append(trending, post)
		}
	}
	return trending
}

// BuildFeed returns every post, newest first. Newer means a higher post id;
// the timestamp is not consulted.
func BuildFeed(snapshot *models.Snapshot) []models.PostWithComments {
	feed := withComments(snapshot)
	sort.SliceStable(feed, func(i, j int) bool {
		return feed[i].Post.ID > feed[j].Post.ID
	})
	return feed
}

// SummarizePosts computes post totals, averages and the most liked posts
func SummarizePosts(snapshot *models.Snapshot) models.PostAnalytics {
	posts := snapshot.Posts()

	summary := models.PostAnalytics{
		TotalPosts: len(posts),
		TopPosts:   make([]models.Post, 0),
	}
	if len(posts) == 0 {
		return summary
	}

	likes, shares := 0, 0
	for _, post := range posts {
		likes += post.Likes
		shares += post.Shares
	}
	summary.AverageLikes = float64(likes) / float64(len(posts))
	summary.AverageShares = float64(shares) / float64(len(posts))

	summary.TopPosts = topPosts(posts, func(p models.Post) int { return p.Likes })
	return summary
}

// SummarizeUsers counts users, how many of them posted, and who posted most
func SummarizeUsers(snapshot *models.Snapshot) models.UserAnalytics {
	summary := models.UserAnalytics{TopUsers: make([]models.User, 0)}
	if snapshot == nil {
		return summary
	}
	unique := snapshot.UniqueUsers()
	summary.TotalUsers = len(unique)

	postCounts := make(map[string]int, len(unique))
	for _, post := range snapshot.Posts() {
		postCounts[post.UserID]++
	}

	users := make([]models.User, 0, len(unique))
	for _, user := range unique {
		if postCounts[user.ID] > 0 {
			summary.ActiveUsers++
		}
		users = append(users, user)
	}

	sort.SliceStable(users, func(i, j int) bool {
		return postCounts[users[i].ID] > postCounts[users[j].ID]
	})
	if len(users) > defaultTopUsersLimit {
		users = users[:defaultTopUsersLimit]
	}
	summary.TopUsers = users
	return summary
}

// SummarizeEngagement measures engagement as likes + shares + comments per post
func SummarizeEngagement(snapshot *models.Snapshot) models.EngagementAnalytics {
	posts := snapshot.Posts()

	summary := models.EngagementAnalytics{TopEngagedPosts: make([]models.Post, 0)}
	if len(posts) == 0 {
		return summary
	}

	engagement := func(p models.Post) int {
		return p.Likes + p.Shares + snapshot.CommentCount(p.ID)
	}

	for _, post := range posts {
		summary.TotalEngagement += engagement(post)
	}
	summary.AverageEngagement = float64(summary.TotalEngagement) / float64(len(posts))
	summary.TopEngagedPosts = topPosts(posts, engagement)
	return summary
}

// BuildViews derives every view from a snapshot
func BuildViews(snapshot *models.Snapshot) *models.Views {
	return &models.Views{
		TopUsers:      RankUsersByComments(snapshot),
		TrendingPosts: FindTrendingPosts(snapshot),
		Feed:          BuildFeed(snapshot),
		Posts:         SummarizePosts(snapshot),
		Users:         SummarizeUsers(snapshot),
		Engagement:    SummarizeEngagement(snapshot),
		GeneratedAt:   time.Now(),
	}
}

// withComments pairs each post with its resolved author and comment count,
// in snapshot order
func withComments(snapshot *models.Snapshot) []models.PostWithComments {
	posts := snapshot.Posts()
	result := make([]models.PostWithComments, 0, len(posts))
	for _, post := range posts {
		result = append(result, models.PostWithComments{
			Post:         post,
			User:         snapshot.LookupUser(post.UserID),
			CommentCount: snapshot.CommentCount(post.ID),
		})
	}
	return result
}

// topPosts returns up to defaultTopPostsLimit posts with the highest score,
// keeping snapshot order on ties. The input is not modified.
func topPosts(posts []models.Post, score func(models.Post) int) []models.Post {
	sorted := make([]models.Post, len(posts))
	copy(sorted, posts)

	sort.SliceStable(sorted, func(i, j int) bool {
		return score(sorted[i]) > score(sorted[j])
	})
	if len(sorted) > defaultTopPostsLimit {
		sorted = sorted[:defaultTopPostsLimit]
	}
	return sorted
}
