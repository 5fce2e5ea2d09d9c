package web

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Skufu/diagportal/internal/portal"
	"github.com/Skufu/diagportal/internal/upstream"
)

var scanTypes = []string{"xray", "mri", "ct"}

// dropzoneView is the content of a drop-zone: the picker when FileName is
// empty, the chosen file otherwise.
type dropzoneView struct {
	Kind      portal.Kind
	FileName  string
	ScanTypes []string
	OOB       bool
}

func newDropzone(kind portal.Kind, fileName string) dropzoneView {
	v := dropzoneView{Kind: kind, FileName: fileName}
	if kind == portal.KindScan {
		v.ScanTypes = scanTypes
	}
	return v
}

type uploadView struct {
	Kind     portal.Kind
	Alert    *alert
	Scan     *portal.ScanAnalysis
	Report   *portal.ReportAnalysis
	Dropzone *dropzoneView
}

func (h *Handler) uploadActions() []action {
	return []action{
		{trigger: trigger{http.MethodPost, "/ui/upload/:kind"}, guard: validKind, effect: h.handleFiles},
		{trigger: trigger{http.MethodGet, "/ui/upload/:kind/picker"}, guard: validKind, effect: h.chooseDifferent},
		{trigger: trigger{http.MethodGet, "/ui/upload/:kind/selected"}, guard: validKind, effect: h.showChosen},
	}
}

func validKind(c *gin.Context) error {
	kind, err := portal.ParseKind(c.Param("kind"))
	if err != nil {
		return err
	}
	c.Set(kindKey, kind)
	return nil
}

func kindOf(c *gin.Context) portal.Kind {
	return c.MustGet(kindKey).(portal.Kind)
}

// handleFiles analyzes the first file of the submission, whether it came
// from the picker or from a drop.
func (h *Handler) handleFiles(c *gin.Context) {
	kind := kindOf(c)

	var files []*multipart.FileHeader
	form, err := c.MultipartForm()
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		a := warningAlert("The file is too large to upload.")
		h.render(c, http.StatusOK, "upload-result", uploadView{Kind: kind, Alert: &a})
		return
	case err == nil:
		files = form.File["file"]
	}
	var fh *multipart.FileHeader
	fh, err = portal.FirstFile(files)
	if err == nil {
		err = portal.CheckFileName(fh.Filename)
	}
	if err != nil {
		msg := "Please choose a file to analyze."
		if errors.Is(err, portal.ErrUnsupportedFile) {
			msg = "Unsupported file type. Please upload an image, PDF or DICOM file."
		}
		a := warningAlert(msg)
		h.render(c, http.StatusOK, "upload-result", uploadView{Kind: kind, Alert: &a})
		return
	}

	f, err := fh.Open()
	if err != nil {
		h.logger.Error("open upload", zap.String("file", fh.Filename), zap.Error(err))
		a := dangerAlert(kind.FailedText())
		h.render(c, http.StatusOK, "upload-result", uploadView{Kind: kind, Alert: &a})
		return
	}
	defer f.Close()

	dz := newDropzone(kind, fh.Filename)
	dz.OOB = true
	view := uploadView{Kind: kind, Dropzone: &dz}

	ctx := c.Request.Context()
	file := upstream.File{Name: fh.Filename, Content: f}
	switch kind {
	case portal.KindScan:
		var res *upstream.ScanResult
		if res, err = h.backend.AnalyzeScan(ctx, file, c.PostForm("scan_type")); err == nil {
			a := portal.NormalizeScan(res)
			view.Scan = &a
		}
	case portal.KindReport:
		var res *upstream.ReportResult
		if res, err = h.backend.AnalyzeReport(ctx, file); err == nil {
			a := portal.NormalizeReport(res)
			view.Report = &a
		}
	}
	if err != nil {
		msg, ok := upstream.IsServerError(err)
		if !ok {
			h.logger.Error("analyze upload",
				zap.String("kind", string(kind)),
				zap.String("file", fh.Filename),
				zap.Error(err))
			msg = kind.FailedText()
		}
		a := dangerAlert(msg)
		view.Alert = &a
	}
	h.render(c, http.StatusOK, "upload-result", view)
}

// chooseDifferent puts the drop-zone back into its picker state.
func (h *Handler) chooseDifferent(c *gin.Context) {
	h.render(c, http.StatusOK, "dropzone-content", newDropzone(kindOf(c), ""))
}

// showChosen renders the drop-zone for a file the browser is about to
// upload. The upload response swaps in the same content when it lands.
func (h *Handler) showChosen(c *gin.Context) {
	name := strings.TrimSpace(c.Query("file"))
	if name == "" {
		c.Status(http.StatusNoContent)
		return
	}
	h.render(c, http.StatusOK, "dropzone-content", newDropzone(kindOf(c), name))
}
