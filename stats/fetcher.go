package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/brettboylen/social-analytics/models"
)

const defaultMaxConcurrentFetches = 4

// Stage names the step of a fetch cycle that failed
type Stage string

const (
	StageUsers    Stage = "users"
	StagePosts    Stage = "posts"
	StageComments Stage = "comments"
)

// FetchError aborts a whole fetch cycle
type FetchError struct {
	Stage Stage
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed at %s stage: %v", e.Stage, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// DataSource is the remote API a Fetcher reads from
type DataSource interface {
	GetUsers(ctx context.Context) ([]models.User, error)
	GetPosts(ctx context.Context, userID string) ([]models.Post, error)
	GetComments(ctx context.Context, postID int) ([]models.Comment, error)
}

// Fetcher assembles a complete snapshot: users, then their posts, then the
// comments on every post. Any single failure aborts the snapshot.
type Fetcher struct {
	source        DataSource
	maxConcurrent int
	log           *logrus.Logger
}

// NewFetcher creates a new fetcher that runs at most maxConcurrent requests at once
func NewFetcher(source DataSource, maxConcurrent int, log *logrus.Logger) *Fetcher {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentFetches
	}
	return &Fetcher{
		source:        source,
		maxConcurrent: maxConcurrent,
		log:           log,
	}
}

// Fetch builds a snapshot. The result is ordered as if every request had
// been made one after another, regardless of completion order.
func (f *Fetcher) Fetch(ctx context.Context) (*models.Snapshot, error) {
	start := time.Now()

	fetched, err := f.source.GetUsers(ctx)
	if err != nil {
		return nil, &FetchError{Stage: StageUsers, Err: err}
	}

	// a repeated user id is fetched and published once, first occurrence wins
	users := (&models.Snapshot{Users: fetched}).UniqueUsers()
	userIDs := make([]string, 0, len(users))
	for _, user := range users {
		userIDs = append(userIDs, user.ID)
	}

	postsPerUser := make([][]models.Post, len(userIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.maxConcurrent)
	for i, userID := range userIDs {
		i, userID := i, userID
		g.Go(func() error {
			posts, err := f.source.GetPosts(gctx, userID)
			if err != nil {
				return err
			}
			postsPerUser[i] = posts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &FetchError{Stage: StagePosts, Err: err}
	}

	postsByUser := make(map[string][]models.Post, len(userIDs))
	postIDs := make([]int, 0)
	seenPosts := make(map[int]bool)
	for i, userID := range userIDs {
		posts := postsPerUser[i]
		if posts == nil {
			posts = make([]models.Post, 0)
		}
		postsByUser[userID] = posts

		for _, post := range posts {
			if !seenPosts[post.ID] {
				seenPosts[post.ID] = true
				postIDs = append(postIDs, post.ID)
			}
		}
	}

	commentsPerPost := make([][]models.Comment, len(postIDs))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(f.maxConcurrent)
	for i, postID := range postIDs {
		i, postID := i, postID
		g.Go(func() error {
			comments, err := f.source.GetComments(gctx, postID)
			if err != nil {
				return err
			}
			commentsPerPost[i] = comments
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &FetchError{Stage: StageComments, Err: err}
	}

	commentsByPost := make(map[int][]models.Comment, len(postIDs))
	commentCount := 0
	for i, postID := range postIDs {
		comments := commentsPerPost[i]
		if comments == nil {
			comments = make([]models.Comment, 0)
		}
		commentsByPost[postID] = comments
		commentCount += len(comments)
	}

	f.log.WithFields(logrus.Fields{
		"users":    len(users),
		"posts":    len(postIDs),
		"comments": commentCount,
		"duration": time.Since(start).String(),
	}).Info("Fetched snapshot")

	return &models.Snapshot{
		Users:          users,
		PostsByUser:    postsByUser,
		CommentsByPost: commentsByPost,
		FetchedAt:      time.Now(),
	}, nil
}
