package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"redgraph/models"
)

func TestUserFilterMatch(t *testing.T) {
	now := time.Now()
	u := &models.User{ID: "u1", Email: "Ann@Example.com", ResetToken: "h", ResetExpires: now.Add(time.Minute)}

	tests := []struct {
		name string
		f    UserFilter
		want bool
	}{
		{"empty matches", UserFilter{}, true},
		{"id hit", UserFilter{IDs: []string{"u0", "u1"}}, true},
		{"id miss", UserFilter{IDs: []string{"u2"}}, false},
		{"email case-insensitive", UserFilter{Email: " ann@example.COM "}, true},
		{"email miss", UserFilter{Email: "bob@example.com"}, false},
		{"reset token live", UserFilter{ResetToken: "h", ResetAfter: now}, true},
		{"reset token expired", UserFilter{ResetToken: "h", ResetAfter: now.Add(time.Hour)}, false},
		{"reset token wrong", UserFilter{ResetToken: "x", ResetAfter: now}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.f.Match(u))
		})
	}
}

func TestPostFilterMatch(t *testing.T) {
	p := &models.Post{ID: "p1", Owner: "u1"}
	assert.True(t, PostFilter{}.Match(p))
	assert.True(t, PostFilter{Owners: []string{"u1"}}.Match(p))
	assert.False(t, PostFilter{Owners: []string{"u2"}}.Match(p))
	assert.True(t, PostFilter{IDs: []string{"p1"}, Owners: []string{"u1"}}.Match(p))
	assert.False(t, PostFilter{IDs: []string{"p2"}, Owners: []string{"u1"}}.Match(p))
}
