package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Skufu/diagportal/internal/portal"
	"github.com/Skufu/diagportal/internal/session"
	"github.com/Skufu/diagportal/internal/upstream"
)

type diagnosisView struct {
	portal.DiagnosisView
	Panel portal.Panel
}

func (h *Handler) diagnosisActions() []action {
	return []action{
		{trigger: trigger{http.MethodPost, "/ui/diagnose"}, guard: h.requireSelection, effect: h.submitDiagnosis},
	}
}

func (h *Handler) requireSelection(c *gin.Context) error {
	st, err := h.load(c)
	if err != nil {
		return err
	}
	return portal.RequireSymptoms(st.Selection)
}

// submitDiagnosis posts the selection in display order. Only a successful
// diagnosis resets and reveals the advice panel.
func (h *Handler) submitDiagnosis(c *gin.Context) {
	st, err := h.load(c)
	if err != nil {
		h.storeFailed(c, err)
		return
	}

	d, err := h.backend.Diagnose(c.Request.Context(), st.Selection.List())
	if err != nil {
		if msg, ok := upstream.IsServerError(err); ok {
			h.render(c, http.StatusOK, "alert", dangerAlert(msg))
			return
		}
		h.logger.Error("diagnose", zap.Strings("symptoms", st.Selection), zap.Error(err))
		h.render(c, http.StatusOK, "alert", dangerAlert(portal.DiagnosisFailedMessage))
		return
	}

	st, err = h.update(c, func(st *session.State) error {
		st.Panel.Reset(d.PredictedDisease)
		return nil
	})
	if err != nil {
		h.storeFailed(c, err)
		return
	}
	h.render(c, http.StatusOK, "diagnosis", diagnosisView{
		DiagnosisView: portal.NewDiagnosisView(d),
		Panel:         st.Panel,
	})
}
