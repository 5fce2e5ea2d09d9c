package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Skufu/diagportal/internal/portal"
	"github.com/Skufu/diagportal/internal/session"
)

type selectorView struct {
	Checklist []portal.CatalogEntry
	Selected  []string
}

func newSelectorView(st *session.State) selectorView {
	return selectorView{
		Checklist: portal.Checklist(st.Catalog, st.Selection),
		Selected:  st.Selection.List(),
	}
}

type pageView struct {
	Selector  selectorView
	Chat      chatView
	Dropzones []dropzoneView
	ScanTypes []string
}

func (h *Handler) pageActions() []action {
	return []action{
		{trigger: trigger{http.MethodGet, "/"}, effect: h.index},
	}
}

func (h *Handler) symptomActions() []action {
	return []action{
		{trigger: trigger{http.MethodPost, "/ui/symptoms/toggle"}, effect: h.toggleSymptom},
		{trigger: trigger{http.MethodPost, "/ui/symptoms/add"}, effect: h.addSymptom},
		{trigger: trigger{http.MethodPost, "/ui/symptoms/remove"}, effect: h.removeSymptom},
	}
}

// index renders the whole page. A page load starts the page's components
// over: the selection is emptied, the chat goes back to its welcome
// message and the advice panel is cleared. The catalog is fetched once per
// page load and kept in the session; a failed fetch leaves the checklist
// empty.
func (h *Handler) index(c *gin.Context) {
	catalog, err := h.backend.Symptoms(c.Request.Context())
	if err != nil {
		h.logger.Warn("load symptom catalog", zap.Error(err))
		catalog = nil
	}

	st, err := h.update(c, func(st *session.State) error {
		st.Catalog = catalog
		st.Selection = nil
		st.Panel = portal.Panel{}
		st.Chat = portal.NewChat()
		return nil
	})
	if err != nil {
		h.storeFailed(c, err)
		return
	}

	h.render(c, http.StatusOK, "index", pageView{
		Selector: newSelectorView(st),
		Chat:     newChatView(st.Chat),
		Dropzones: []dropzoneView{
			newDropzone(portal.KindScan, ""),
			newDropzone(portal.KindReport, ""),
		},
		ScanTypes: scanTypes,
	})
}

func (h *Handler) toggleSymptom(c *gin.Context) {
	symptom := c.Query("symptom")
	checked := c.PostForm("checked") == "true"
	h.mutateSelection(c, func(sel *portal.Selection) {
		if symptom != "" {
			sel.Toggle(symptom, checked)
		}
	})
}

func (h *Handler) addSymptom(c *gin.Context) {
	text := c.PostForm("symptom")
	h.mutateSelection(c, func(sel *portal.Selection) {
		sel.AddManual(text)
	})
}

func (h *Handler) removeSymptom(c *gin.Context) {
	symptom := c.Query("symptom")
	h.mutateSelection(c, func(sel *portal.Selection) {
		sel.Remove(symptom)
	})
}

// mutateSelection applies fn and re-renders the selector. The selector is
// re-rendered even when fn changed nothing.
func (h *Handler) mutateSelection(c *gin.Context, fn func(*portal.Selection)) {
	st, err := h.update(c, func(st *session.State) error {
		fn(&st.Selection)
		return nil
	})
	if err != nil {
		h.storeFailed(c, err)
		return
	}
	h.render(c, http.StatusOK, "selector", newSelectorView(st))
}
