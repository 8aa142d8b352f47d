package pubsub

import "fmt"

// Channel naming convention: content:{kind}:{id}:changed. The id segment is
// the entity identifier and becomes the partition key on Kafka.
const (
	ChannelContentChanged = "content:%s:%s:changed"

	KindPost    = "post"
	KindComment = "comment"
)

// Event types carried on content channels.
const (
	EventPostCreated    = "post_created"
	EventPostUpdated    = "post_updated"
	EventPostDeleted    = "post_deleted"
	EventCommentCreated = "comment_created"
)

// PostChannel returns the channel name for events about a single post.
func PostChannel(postID string) string {
	return fmt.Sprintf(ChannelContentChanged, KindPost, postID)
}

// CommentChannel returns the channel name for events about a single comment.
func CommentChannel(commentID string) string {
	return fmt.Sprintf(ChannelContentChanged, KindComment, commentID)
}

// PostPattern matches every post-change channel; listing-cache invalidation
// subscribes to this.
func PostPattern() string {
	return fmt.Sprintf(ChannelContentChanged, KindPost, "*")
}

// PostChangedPayload describes a created/updated/deleted post.
type PostChangedPayload struct {
	PostID    uint   `json:"post_id"`
	AuthorID  string `json:"author_id"`
	GroupSlug string `json:"group_slug,omitempty"`
}

// CommentCreatedPayload describes a newly created comment.
type CommentCreatedPayload struct {
	CommentID uint `json:"comment_id"`
	PostID    uint `json:"post_id"`
}
