package model

import (
	"time"

	"github.com/google/uuid"
)

type ReportReason string

const (
	ReasonSpam          ReportReason = "spam"
	ReasonInappropriate ReportReason = "inappropriate"
	ReasonOffensive     ReportReason = "offensive"
	ReasonHarassment    ReportReason = "harassment"
	ReasonOther         ReportReason = "other"
)

func (r ReportReason) Valid() bool {
	switch r {
	case ReasonSpam, ReasonInappropriate, ReasonOffensive, ReasonHarassment, ReasonOther:
		return true
	}
	return false
}

type Comment struct {
	ID              uuid.UUID    `json:"id"`
	CampaignID      uuid.UUID    `json:"campaignId"`
	Campaign        *CampaignRef `json:"campaign,omitempty"`
	AuthorID        uuid.UUID    `json:"authorId"`
	Author          *UserSummary `json:"author,omitempty"`
	Content         string       `json:"content"`
	ParentCommentID *uuid.UUID   `json:"parentComment,omitempty"`
	IsEdited        bool         `json:"isEdited"`
	EditedAt        *time.Time   `json:"editedAt,omitempty"`
	IsDeleted       bool         `json:"isDeleted"`
	DeletedAt       *time.Time   `json:"deletedAt,omitempty"`
	IsReported      bool         `json:"isReported"`
	IsModerated     bool         `json:"isModerated"`
	ModeratedBy     *uuid.UUID   `json:"moderatedBy,omitempty"`
	ModeratedAt     *time.Time   `json:"moderatedAt,omitempty"`
	LikeCount       int          `json:"likeCount"`
	ReportCount     int          `json:"reportCount,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// CommentThread 顶层评论及其直接回复
type CommentThread struct {
	Comment
	Replies []Comment `json:"replies"`
}

type CommentReport struct {
	CommentID uuid.UUID    `json:"commentId"`
	UserID    uuid.UUID    `json:"userId"`
	Reason    ReportReason `json:"reason"`
	CreatedAt time.Time    `json:"createdAt"`
}

// LikeState 点赞切换后的结果
type LikeState struct {
	IsLiked   bool `json:"isLiked"`
	LikeCount int  `json:"likeCount"`
}

type ModerationAction string

const (
	ModerationHide    ModerationAction = "hide"
	ModerationDismiss ModerationAction = "dismiss"
)
