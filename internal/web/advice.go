package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Skufu/diagportal/internal/portal"
	"github.com/Skufu/diagportal/internal/session"
	"github.com/Skufu/diagportal/internal/upstream"
)

type precautionsView struct {
	Disease     string
	Precautions []string
}

type doctorsView struct {
	Disease string
	Doctors []upstream.Doctor
}

func (h *Handler) adviceActions() []action {
	return []action{
		{
			trigger: trigger{http.MethodPost, "/ui/precautions"},
			guard:   h.panelNotShown(portal.Panel.CanShowPrecautions),
			effect:  h.showPrecautions,
		},
		{
			trigger: trigger{http.MethodPost, "/ui/doctors"},
			guard:   h.panelNotShown(portal.Panel.CanShowDoctors),
			effect:  h.showDoctors,
		},
	}
}

// panelNotShown refuses a reveal once its list was loaded for the current
// diagnosis, or when there is no diagnosis yet.
func (h *Handler) panelNotShown(check func(portal.Panel) error) guard {
	return func(c *gin.Context) error {
		st, err := h.load(c)
		if err != nil {
			return err
		}
		return check(st.Panel)
	}
}

func (h *Handler) showPrecautions(c *gin.Context) {
	st, err := h.load(c)
	if err != nil {
		h.storeFailed(c, err)
		return
	}
	disease := st.Panel.Disease

	list, err := h.backend.Precautions(c.Request.Context(), disease)
	if err != nil {
		h.adviceFailed(c, "precautions", disease, err, portal.PrecautionsFailed)
		return
	}
	if !h.markShown(c, disease, portal.Panel.CanShowPrecautions, func(p *portal.Panel) { p.PrecautionsShown = true }) {
		return
	}

	list = portal.PadPrecautions(list)
	if len(list) == 0 {
		h.render(c, http.StatusOK, "alert", warningAlert(portal.NoPrecautionsFound))
		return
	}
	h.render(c, http.StatusOK, "precautions", precautionsView{Disease: disease, Precautions: list})
}

func (h *Handler) showDoctors(c *gin.Context) {
	st, err := h.load(c)
	if err != nil {
		h.storeFailed(c, err)
		return
	}
	disease := st.Panel.Disease

	doctors, err := h.backend.Doctors(c.Request.Context(), disease)
	if err != nil {
		h.adviceFailed(c, "doctors", disease, err, portal.DoctorsFailed)
		return
	}
	if !h.markShown(c, disease, portal.Panel.CanShowDoctors, func(p *portal.Panel) { p.DoctorsShown = true }) {
		return
	}

	if len(doctors) == 0 {
		h.render(c, http.StatusOK, "alert", warningAlert(portal.NoDoctorsFound))
		return
	}
	h.render(c, http.StatusOK, "doctors", doctorsView{Disease: disease, Doctors: doctors})
}

// adviceFailed renders a failed lookup. The trigger stays in place so the
// user can retry.
func (h *Handler) adviceFailed(c *gin.Context, what, disease string, err error, generic string) {
	msg, ok := upstream.IsServerError(err)
	if !ok {
		h.logger.Error("load "+what, zap.String("disease", disease), zap.Error(err))
		msg = generic
	}
	h.render(c, http.StatusOK, "advice-error", struct {
		Alert   alert
		Trigger string
	}{Alert: dangerAlert(msg), Trigger: what})
}

// markShown records a successful reveal. A diagnosis that landed while the
// lookup was in flight wins and the stale list is dropped. Of two
// overlapping reveals only the first to get here renders.
func (h *Handler) markShown(c *gin.Context, disease string, check func(portal.Panel) error, set func(*portal.Panel)) bool {
	_, err := h.update(c, func(st *session.State) error {
		if st.Panel.Disease != disease {
			return portal.ErrNoDiagnosis
		}
		if err := check(st.Panel); err != nil {
			return err
		}
		set(&st.Panel)
		return nil
	})
	if err != nil {
		h.reject(c, err)
		return false
	}
	return true
}
