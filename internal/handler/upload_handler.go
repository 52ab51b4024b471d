package handler

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"hhfoundation/internal/middleware"
	"hhfoundation/pkg/cloudinary"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const maxImageBytes = 8 << 20

var errImageTooLarge = errors.New("image must be 8MB or smaller")

type UploadHandler struct {
	cloud  cloudinary.Client
	folder string
}

func NewUploadHandler(cloud cloudinary.Client, folder string) *UploadHandler {
	return &UploadHandler{cloud: cloud, folder: folder}
}

// save uploads an image under <folder>/<kind>/<userID> and returns its URL.
func (h *UploadHandler) save(c *gin.Context, file *multipart.FileHeader, kind string) (string, error) {
	if file.Size > maxImageBytes {
		return "", errImageTooLarge
	}
	f, err := file.Open()
	if err != nil {
		return "", errors.Wrap(err, "open upload")
	}
	defer f.Close()
	folder := h.folder + "/" + kind + "/" + strconv.FormatUint(uint64(middleware.GetUserID(c)), 10)
	publicID := "img_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
	url, _, err := h.cloud.UploadImage(c.Request.Context(), f, folder, publicID)
	return url, err
}

// Upload handles POST /uploads?kind=chat|proof|ticket and returns the image URL.
func (h *UploadHandler) Upload(c *gin.Context) {
	kind := c.DefaultQuery("kind", "chat")
	switch kind {
	case "chat", "proof", "ticket":
	default:
		badRequest(c, "kind must be chat, proof or ticket")
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file required")
		return
	}
	url, err := h.save(c, file, kind)
	if err != nil {
		if errors.Is(err, errImageTooLarge) {
			badRequest(c, err.Error())
			return
		}
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// screenshotURL returns the uploaded "screenshot" form file, or fallback when none was sent.
func (h *UploadHandler) screenshotURL(c *gin.Context, fallback string) (string, error) {
	file, err := c.FormFile("screenshot")
	if err != nil {
		return fallback, nil
	}
	return h.save(c, file, "proof")
}
