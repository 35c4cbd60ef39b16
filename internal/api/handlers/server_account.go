package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"tenantdesk.io/console/internal/account"
	"tenantdesk.io/console/internal/asset"
	apperrors "tenantdesk.io/console/internal/pkg/errors"
)

// readForm decodes an account form from a JSON object or a urlencoded body.
func readForm(c *gin.Context) (account.Form, error) {
	if c.ContentType() == binding.MIMEJSON {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			return account.Form{}, apperrors.BadRequest(apperrors.CodeInvalidRequest, "request body must be a JSON object")
		}
		form, err := account.FormFromMap(body)
		if err != nil {
			return account.Form{}, apperrors.BadRequest(apperrors.CodeInvalidRequest, err.Error())
		}
		return form, nil
	}

	if err := c.Request.ParseForm(); err != nil {
		return account.Form{}, apperrors.BadRequest(apperrors.CodeInvalidRequest, "malformed form body")
	}
	form, err := account.FormFromValues(c.Request.PostForm)
	if err != nil {
		return account.Form{}, apperrors.BadRequest(apperrors.CodeInvalidRequest, err.Error())
	}
	return form, nil
}

// UpdateAccount handles POST /account.
// Only the names of the saved fields are echoed back.
func (s *Server) UpdateAccount(c *gin.Context) {
	actor, ok := actorFromCtx(c)
	if !ok {
		return
	}
	form, err := readForm(c)
	if err != nil {
		fail(c, err)
		return
	}

	patch, err := s.self.Submit(c.Request.Context(), actor.UserID, form)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"updated": patch.Keys()})
}

// UploadPfp handles POST /account/pfp (multipart field "file").
func (s *Server) UploadPfp(c *gin.Context) {
	actor, ok := actorFromCtx(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, apperrors.BadRequest(apperrors.CodeInvalidRequest, "multipart field \"file\" is required"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, err)
		return
	}
	defer f.Close()

	r := io.Reader(f)
	if limit := s.assets.Options.MaxBytes; limit > 0 {
		// One byte past the limit is enough for the controller to reject it.
		r = io.LimitReader(f, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		fail(c, err)
		return
	}

	ref, err := asset.NewController(actor.UserID, s.assets).Upload(c.Request.Context(), data)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"pfp": ref})
}

// RemovePfp handles DELETE /account/pfp.
func (s *Server) RemovePfp(c *gin.Context) {
	actor, ok := actorFromCtx(c)
	if !ok {
		return
	}
	if err := asset.NewController(actor.UserID, s.assets).Remove(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"pfp": nil})
}

// GetUserPfp handles GET /users/{id}/pfp. Versioned URLs are immutable.
func (s *Server) GetUserPfp(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}
	ref, data, err := s.assets.Store.ReadPfp(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}

	if v := c.Query("v"); v != "" && v == ref.ID {
		c.Header("Cache-Control", "public, max-age=31536000, immutable")
	} else {
		c.Header("Cache-Control", "no-cache")
	}
	c.Header("ETag", strconv.Quote(ref.ID))
	c.Data(http.StatusOK, ref.ContentType, data)
}

func pathUserID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		fail(c, apperrors.BadRequest(apperrors.CodeInvalidRequest, "user id must be a positive integer"))
		return 0, false
	}
	return id, true
}
