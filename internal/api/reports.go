package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mesikahq/outbreak-exchange/internal/model"
)

func (h *Handler) CreateReport(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var patch model.ReportPatch
	if !bindPatch(c, &patch) {
		return
	}

	report, err := h.reports.CreateReport(c.Request.Context(), p, patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

func (h *Handler) UpdateReport(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var patch model.ReportPatch
	if !bindPatch(c, &patch) {
		return
	}

	report, err := h.reports.UpdateReport(c.Request.Context(), p, id, patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) DeleteReport(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.reports.DeleteReport(c.Request.Context(), p, id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetReport(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	view, err := h.reports.GetReport(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) ListReports(c *gin.Context) {
	offset, ok := queryInt(c, "offset")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}

	views, err := h.reports.ListReports(c.Request.Context(), offset, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (h *Handler) GetMostRecentSubmitted(c *gin.Context) {
	view, err := h.reports.GetMostRecentSubmitted(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) GetHistory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	events, err := h.reports.GetHistory(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

func (h *Handler) UpsertReporter(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var patch model.ReporterPatch
	if !bindPatch(c, &patch) {
		return
	}

	reporter, err := h.reports.UpsertReporter(c.Request.Context(), p, id, patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reporter)
}

func (h *Handler) UpsertPatient(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var patch model.PatientPatch
	if !bindPatch(c, &patch) {
		return
	}

	patient, err := h.reports.UpsertPatient(c.Request.Context(), p, id, patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, patient)
}

func (h *Handler) UpsertDisease(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var patch model.DiseasePatch
	if !bindPatch(c, &patch) {
		return
	}

	disease, err := h.reports.UpsertDisease(c.Request.Context(), p, id, patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, disease)
}

func (h *Handler) GetReporter(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	reporter, err := h.reports.GetReporter(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reporter)
}

func (h *Handler) GetPatient(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	patient, err := h.reports.GetPatient(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, patient)
}

func (h *Handler) GetDisease(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	disease, err := h.reports.GetDisease(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, disease)
}
