package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/vial-compliance-api/internal/dto"
	"github.com/noah-isme/vial-compliance-api/internal/models"
	"github.com/noah-isme/vial-compliance-api/internal/service"
	appErrors "github.com/noah-isme/vial-compliance-api/pkg/errors"
	"github.com/noah-isme/vial-compliance-api/pkg/response"
)

// DirectoryHandler serves persons, courses, inspectors and judges.
type DirectoryHandler struct {
	service *service.DirectoryService
}

// NewDirectoryHandler constructs DirectoryHandler.
func NewDirectoryHandler(svc *service.DirectoryService) *DirectoryHandler {
	return &DirectoryHandler{service: svc}
}

func directoryFilter(c *gin.Context) models.DirectoryFilter {
	filter := models.DirectoryFilter{
		Search:    c.Query("search"),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	filter.Page, filter.PageSize = pageParams(c)
	return filter
}

// ListPersons godoc
// @Summary List persons
// @Tags Directory
// @Produce json
// @Param search query string false "Name or DNI"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /persons [get]
func (h *DirectoryHandler) ListPersons(c *gin.Context) {
	items, pagination, err := h.service.ListPersons(c.Request.Context(), directoryFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// GetPerson godoc
// @Summary Get person
// @Tags Directory
// @Produce json
// @Param id path string true "Person ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /persons/{id} [get]
func (h *DirectoryHandler) GetPerson(c *gin.Context) {
	person, err := h.service.GetPerson(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, person, nil)
}

// CreatePerson godoc
// @Summary Register person
// @Tags Directory
// @Accept json
// @Produce json
// @Param payload body dto.PersonRequest true "Person"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /persons [post]
func (h *DirectoryHandler) CreatePerson(c *gin.Context) {
	var req dto.PersonRequest
	actor, ok := h.bind(c, &req)
	if !ok {
		return
	}
	person, err := h.service.CreatePerson(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, person)
}

// UpdatePerson godoc
// @Summary Update person
// @Tags Directory
// @Accept json
// @Produce json
// @Param id path string true "Person ID"
// @Param payload body dto.PersonRequest true "Person"
// @Success 200 {object} response.Envelope
// @Router /persons/{id} [put]
func (h *DirectoryHandler) UpdatePerson(c *gin.Context) {
	var req dto.PersonRequest
	actor, ok := h.bind(c, &req)
	if !ok {
		return
	}
	person, err := h.service.UpdatePerson(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, person, nil)
}

// DeletePerson godoc
// @Summary Delete person
// @Tags Directory
// @Param id path string true "Person ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /persons/{id} [delete]
func (h *DirectoryHandler) DeletePerson(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.DeletePerson(c.Request.Context(), c.Param("id"), actor); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListCourses godoc
// @Summary List courses
// @Tags Directory
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *DirectoryHandler) ListCourses(c *gin.Context) {
	items, pagination, err := h.service.ListCourses(c.Request.Context(), directoryFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// GetCourse godoc
// @Summary Get course
// @Tags Directory
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *DirectoryHandler) GetCourse(c *gin.Context) {
	course, err := h.service.GetCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// CreateCourse godoc
// @Summary Register course
// @Tags Directory
// @Accept json
// @Produce json
// @Param payload body dto.CourseRequest true "Course"
// @Success 201 {object} response.Envelope
// @Router /courses [post]
func (h *DirectoryHandler) CreateCourse(c *gin.Context) {
	var req dto.CourseRequest
	actor, ok := h.bind(c, &req)
	if !ok {
		return
	}
	course, err := h.service.CreateCourse(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// UpdateCourse godoc
// @Summary Update course
// @Tags Directory
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body dto.CourseRequest true "Course"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [put]
func (h *DirectoryHandler) UpdateCourse(c *gin.Context) {
	var req dto.CourseRequest
	actor, ok := h.bind(c, &req)
	if !ok {
		return
	}
	course, err := h.service.UpdateCourse(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// DeleteCourse godoc
// @Summary Delete course
// @Tags Directory
// @Param id path string true "Course ID"
// @Success 204
// @Router /courses/{id} [delete]
func (h *DirectoryHandler) DeleteCourse(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.DeleteCourse(c.Request.Context(), c.Param("id"), actor); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListOfficials serves GET /inspectors and GET /judges.
func (h *DirectoryHandler) ListOfficials(kind models.OfficialKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, pagination, err := h.service.ListOfficials(c.Request.Context(), kind, directoryFilter(c))
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, items, pagination)
	}
}

// GetOfficial serves GET /inspectors/:id and GET /judges/:id.
func (h *DirectoryHandler) GetOfficial(kind models.OfficialKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		official, err := h.service.GetOfficial(c.Request.Context(), kind, c.Param("id"))
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, official, nil)
	}
}

// CreateOfficial serves POST /inspectors and POST /judges.
func (h *DirectoryHandler) CreateOfficial(kind models.OfficialKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dto.OfficialRequest
		actor, ok := h.bind(c, &req)
		if !ok {
			return
		}
		official, err := h.service.CreateOfficial(c.Request.Context(), kind, req, actor)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Created(c, official)
	}
}

// UpdateOfficial serves PUT /inspectors/:id and PUT /judges/:id.
func (h *DirectoryHandler) UpdateOfficial(kind models.OfficialKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dto.OfficialRequest
		actor, ok := h.bind(c, &req)
		if !ok {
			return
		}
		official, err := h.service.UpdateOfficial(c.Request.Context(), kind, c.Param("id"), req, actor)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, official, nil)
	}
}

// DeleteOfficial serves DELETE /inspectors/:id and DELETE /judges/:id.
func (h *DirectoryHandler) DeleteOfficial(kind models.OfficialKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		if err := h.service.DeleteOfficial(c.Request.Context(), kind, c.Param("id"), actor); err != nil {
			response.Error(c, err)
			return
		}
		response.NoContent(c)
	}
}

func (h *DirectoryHandler) bind(c *gin.Context, dest interface{}) (service.Actor, bool) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return service.Actor{}, false
	}
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return service.Actor{}, false
	}
	return actor, true
}
