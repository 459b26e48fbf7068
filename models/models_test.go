package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDSetAddRemove(t *testing.T) {
	assert := assert.New(t)
	var s IDSet
	assert.False(s.Has("a"))
	assert.True(s.Add("a"))
	assert.False(s.Add("a"), "second add reports already present")
	assert.True(s.Has("a"))
	assert.Equal(1, s.Len())
	assert.True(s.Remove("a"))
	assert.False(s.Remove("a"), "second remove reports already absent")
	assert.Equal(0, s.Len())
}

func TestIDSetJSON(t *testing.T) {
	s := NewIDSet("c", "a", "b")
	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `["a","b","c"]`, string(b))

	var back IDSet
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, back.Has("b"))
	assert.Equal(t, 3, back.Len())

	var empty IDSet
	b, err = json.Marshal(empty)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(b))
}

func TestUserPosts(t *testing.T) {
	assert := assert.New(t)
	u := &User{}
	assert.True(u.AddPost("p1"))
	assert.True(u.AddPost("p2"))
	assert.False(u.AddPost("p1"))
	assert.Equal([]string{"p1", "p2"}, u.Posts)
	assert.True(u.RemovePost("p1"))
	assert.False(u.RemovePost("p1"))
	assert.Equal([]string{"p2"}, u.Posts)
}

func TestUserJSONHidesSecrets(t *testing.T) {
	u := User{ID: "u1", PasswordHash: "secret", ResetToken: "tok"}
	b, err := json.Marshal(u)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "secret")
	assert.NotContains(t, string(b), "tok")
}

func TestPostComments(t *testing.T) {
	assert := assert.New(t)
	p := &Post{Comments: []Comment{
		{ID: "c1", User: "u1"},
		{ID: "c2", User: "u2"},
	}}
	assert.Equal(1, p.CommentBy("u2"))
	assert.Equal(-1, p.CommentBy("u3"))

	n := p.RemoveComments(func(c Comment) bool { return c.ID == "c1" })
	assert.Equal(1, n)
	assert.Len(p.Comments, 1)
	assert.Equal(0, p.RemoveComments(func(c Comment) bool { return c.ID == "nope" }))
}
