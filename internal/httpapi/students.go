package httpapi

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"presence/internal/attendance"
	"presence/internal/model"
)

const maxPhotoBytes = 8 << 20

func (a *API) listStudents(c *gin.Context) {
	list, err := a.Attendance.ListStudents(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": list})
}

func (a *API) createStudent(c *gin.Context) {
	var req model.Student
	if !bindJSON(c, &req) {
		return
	}
	st, err := a.Attendance.CreateStudent(c.Request.Context(), req)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (a *API) getStudent(c *gin.Context) {
	st, err := a.Attendance.GetStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (a *API) updateStudent(c *gin.Context) {
	var req attendance.StudentPatch
	if !bindJSON(c, &req) {
		return
	}
	st, err := a.Attendance.UpdateStudent(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (a *API) deleteStudent(c *gin.Context) {
	if err := a.Attendance.DeleteStudent(c.Request.Context(), c.Param("id")); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// setStudentPhoto accepts a multipart "file", a JSON base64 "data" image,
// or a JSON "photoURL" that is already hosted.
func (a *API) setStudentPhoto(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := a.Attendance.GetStudent(ctx, c.Param("id")); err != nil {
		a.fail(c, err)
		return
	}
	var url string

	if strings.Contains(c.ContentType(), "multipart/form-data") {
		if a.Photos == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
			return
		}
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			imageError(c, err, "file field required")
			return
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxPhotoBytes+1))
		if err != nil {
			imageError(c, err, "read file failed")
			return
		}
		if len(data) > maxPhotoBytes {
			tooLarge(c)
			return
		}
		res, err := a.Photos.UploadBytes(ctx, data, header.Filename)
		if err != nil {
			a.uploadFailed(c, err)
			return
		}
		url = res.SecureURL
	} else {
		var req struct {
			Data     string `json:"data"`
			PhotoURL string `json:"photoURL"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || (req.Data == "" && req.PhotoURL == "") {
			imageError(c, err, `provide {"data": "<base64 image>"} or {"photoURL": "<url>"}`)
			return
		}
		url = req.PhotoURL
		if req.Data != "" {
			if _, err := decodeImage(req.Data); err != nil {
				imageError(c, err, "data must be base64")
				return
			}
			if a.Photos == nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
				return
			}
			res, err := a.Photos.UploadDataURL(ctx, req.Data)
			if err != nil {
				a.uploadFailed(c, err)
				return
			}
			url = res.SecureURL
		}
	}

	st, err := a.Attendance.SetStudentPhoto(ctx, c.Param("id"), url)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (a *API) uploadFailed(c *gin.Context, err error) {
	a.log.Warn("photo upload failed", zap.String("student_id", c.Param("id")), zap.Error(err))
	c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
}
