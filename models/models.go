package models

import (
	"time"
)

// Image points at a stored media object.
type Image struct {
	PublicID string `json:"public_id"`
	URL      string `json:"url"`
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Avatar       Image     `json:"avatar"`
	Posts        []string  `json:"posts"`
	Following    IDSet     `json:"following"`
	Followers    IDSet     `json:"followers"`
	ResetToken   string    `json:"-"` // sha256 of the emailed token
	ResetExpires time.Time `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Version      int64     `json:"-"`
}

// RemovePost drops id from the ordered posts list and reports whether it was there.
func (u *User) RemovePost(id string) bool {
	for i, p := range u.Posts {
		if p == id {
			u.Posts = append(u.Posts[:i], u.Posts[i+1:]...)
			return true
		}
	}
	return false
}

// AddPost appends id unless it is already listed.
func (u *User) AddPost(id string) bool {
	for _, p := range u.Posts {
		if p == id {
			return false
		}
	}
	u.Posts = append(u.Posts, id)
	return true
}

// ClearReset wipes the password reset fields.
func (u *User) ClearReset() {
	u.ResetToken = ""
	u.ResetExpires = time.Time{}
}

type Post struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Caption   string    `json:"caption"`
	Image     Image     `json:"image"`
	Likes     IDSet     `json:"likes"`
	Comments  []Comment `json:"comments"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"-"`
}

// Comment lives inside its Post and has no lifecycle of its own.
type Comment struct {
	ID        string    `json:"id"`
	User      string    `json:"user"`
	Text      string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// CommentBy returns the index of userID's comment, or -1.
func (p *Post) CommentBy(userID string) int {
	for i, c := range p.Comments {
		if c.User == userID {
			return i
		}
	}
	return -1
}

// RemoveComments drops every comment match accepts and returns how many went.
func (p *Post) RemoveComments(match func(Comment) bool) int {
	kept := p.Comments[:0]
	removed := 0
	for _, c := range p.Comments {
		if match(c) {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	p.Comments = kept
	return removed
}
