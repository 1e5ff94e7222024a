package model

import "time"

// Post 圈子帖子。AuthorID 创建后不可修改。
type Post struct {
	ID           string `gorm:"primaryKey;type:varchar(32)" json:"id"`
	CircleID     string `gorm:"index:idx_posts_circle_created,priority:1;not null;type:varchar(64)" json:"circle_id"`
	AuthorID     string `gorm:"index;not null;type:varchar(64)" json:"author_id"`
	Title        string `gorm:"not null;type:varchar(255)" json:"title"`
	Body         string `gorm:"not null;type:text" json:"body"`
	CommentCount int    `gorm:"not null;default:0" json:"comment_count"`

	CreatedAt time.Time `gorm:"index:idx_posts_circle_created,priority:2;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Post) TableName() string {
	return "posts"
}

func ValidatePostFields(title, body string) error {
	if err := checkLength("title", title, 1, 200); err != nil {
		return err
	}
	return checkLength("body", body, 1, 5000)
}

// Validate checks a stored post row.
func (p *Post) Validate() error {
	switch {
	case p.ID == "":
		return malformed("posts", p.ID, "missing id")
	case p.CircleID == "":
		return malformed("posts", p.ID, "missing circle")
	case p.AuthorID == "":
		return malformed("posts", p.ID, "missing author")
	case p.CommentCount < 0:
		return malformed("posts", p.ID, "negative comment count")
	}
	return nil
}

type Comment struct {
	ID       string `gorm:"primaryKey;type:varchar(32)" json:"id"`
	PostID   string `gorm:"index;not null;type:varchar(32)" json:"post_id"`
	AuthorID string `gorm:"index;not null;type:varchar(64)" json:"author_id"`
	Body     string `gorm:"not null;type:text" json:"body"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Comment) TableName() string {
	return "comments"
}

func ValidateCommentBody(body string) error {
	return checkLength("body", body, 1, 1000)
}

// Validate checks a stored comment row.
func (c *Comment) Validate() error {
	switch {
	case c.ID == "":
		return malformed("comments", c.ID, "missing id")
	case c.PostID == "":
		return malformed("comments", c.ID, "missing post")
	case c.AuthorID == "":
		return malformed("comments", c.ID, "missing author")
	}
	return nil
}
