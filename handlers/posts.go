package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"redgraph/middleware"
	"redgraph/service"
)

// createPost takes a multipart form (caption, optional image file) or a JSON
// body with a caption only.
func (h *Handler) createPost(c *gin.Context) {
	in := service.PostInput{}

	if c.ContentType() == binding.MIMEJSON {
		var body struct {
			Caption string `json:"caption"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		in.Caption = body.Caption
	} else {
		in.Caption = c.PostForm("caption")
		file, err := c.FormFile("image")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			badRequest(c, "failed to read image")
			return
		default:
			src, err := file.Open()
			if err != nil {
				badRequest(c, "failed to open image")
				return
			}
			defer src.Close()
			in.Image = &service.Upload{
				Filename:    file.Filename,
				ContentType: file.Header.Get("Content-Type"),
				Size:        file.Size,
				Body:        src,
			}
		}
	}

	p, err := h.svc.CreatePost(c.Request.Context(), middleware.ActorID(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, p)
}

func (h *Handler) likePost(c *gin.Context) {
	applied, err := h.svc.ToggleLike(c.Request.Context(), c.Param("id"), middleware.ActorID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"applied": applied})
}

func (h *Handler) post(c *gin.Context) {
	p, err := h.svc.Post(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

func (h *Handler) updateCaption(c *gin.Context) {
	var input struct {
		Caption string `json:"caption"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	p, err := h.svc.UpdateCaption(c.Request.Context(), c.Param("id"), middleware.ActorID(c), input.Caption)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

func (h *Handler) deletePost(c *gin.Context) {
	if err := h.svc.DeletePost(c.Request.Context(), c.Param("id"), middleware.ActorID(c)); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "post deleted"})
}

func (h *Handler) feed(c *gin.Context) {
	posts, err := h.svc.Feed(c.Request.Context(), middleware.ActorID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, posts)
}

func (h *Handler) comment(c *gin.Context) {
	var input struct {
		Comment string `json:"comment"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	created, err := h.svc.UpsertComment(c.Request.Context(), c.Param("id"), middleware.ActorID(c), input.Comment)
	if err != nil {
		h.fail(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	ok(c, status, gin.H{"created": created})
}

// deleteComment reads the comment id from a JSON body or the commentId query.
func (h *Handler) deleteComment(c *gin.Context) {
	var input struct {
		CommentID string `json:"commentId"`
	}
	if err := c.ShouldBindJSON(&input); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid request body")
		return
	}
	if input.CommentID == "" {
		input.CommentID = c.Query("commentId")
	}

	n, err := h.svc.DeleteComment(c.Request.Context(), c.Param("id"), middleware.ActorID(c), input.CommentID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"deleted": n})
}
