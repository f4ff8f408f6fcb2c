package api

import (
	"io"

	"github.com/gofiber/fiber/v2"

	"secondbrain/app/middleware"
	"secondbrain/types"
	"secondbrain/upload"
)

type UploadHandler struct {
	registry *upload.Registry
}

func NewUploadHandler(registry *upload.Registry) *UploadHandler {
	return &UploadHandler{
		registry: registry,
	}
}

type UploadResponse struct {
	State     upload.State          `json:"state"`
	Committed bool                  `json:"committed"`
	File      *types.FileInfo       `json:"file,omitempty"`
	Report    *types.ConflictReport `json:"report,omitempty"`
	Warning   string                `json:"warning,omitempty"`
}

func newUploadResponse(out upload.Outcome) UploadResponse {
	resp := UploadResponse{
		State:     out.State,
		Committed: out.Committed,
		Report:    out.Report,
		Warning:   out.Warning,
	}
	if out.Document != nil {
		info := types.NewFileInfo(*out.Document)
		resp.File = &info
	}
	return resp
}

func (h *UploadHandler) gate(c *fiber.Ctx) *upload.Gate {
	return h.registry.Gate(middleware.OwnerID(c), middleware.SessionID(c))
}

// HandleUpload takes the multipart field "file" and starts the upload.
// 201 means stored; 200 with state awaiting_decision means conflicts were
// found and the client must proceed or cancel.
func (h *UploadHandler) HandleUpload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return ErrMissingFile()
	}

	file, err := fileHeader.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}

	out, err := h.gate(c).Start(c.UserContext(), upload.File{
		Name:     fileHeader.Filename,
		MimeType: fileHeader.Header.Get(fiber.HeaderContentType),
		Data:     data,
	})
	if err != nil {
		return err
	}

	status := fiber.StatusOK
	if out.Committed {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(newUploadResponse(out))
}

// HandleStatus reports the session's gate without creating one.
func (h *UploadHandler) HandleStatus(c *fiber.Ctx) error {
	g := h.registry.Lookup(middleware.OwnerID(c), middleware.SessionID(c))
	if g == nil {
		return c.JSON(UploadResponse{State: upload.StateIdle})
	}
	return c.JSON(UploadResponse{State: g.State(), Report: g.Report()})
}

// lookup returns the existing gate of the session. A session without one
// has nothing to decide on.
func (h *UploadHandler) lookup(c *fiber.Ctx) (*upload.Gate, error) {
	g := h.registry.Lookup(middleware.OwnerID(c), middleware.SessionID(c))
	if g == nil {
		return nil, upload.ErrNoPendingUpload
	}
	return g, nil
}

func (h *UploadHandler) HandleProceed(c *fiber.Ctx) error {
	g, err := h.lookup(c)
	if err != nil {
		return err
	}
	out, err := g.Proceed(c.UserContext())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(newUploadResponse(out))
}

func (h *UploadHandler) HandleCancel(c *fiber.Ctx) error {
	g, err := h.lookup(c)
	if err != nil {
		return err
	}
	if err := g.Cancel(); err != nil {
		return err
	}
	return c.JSON(UploadResponse{State: g.State()})
}
